// Package mocks provides test doubles for the store interfaces. Each mock
// keeps working in-memory state by default; tests override individual calls
// through the Fn fields and inspect the recorded calls afterwards.
package mocks
