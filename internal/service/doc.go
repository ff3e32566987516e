// Package service contains the application use cases that sit between the
// HTTP handlers and the stores. Services receive their dependencies through
// constructors and depend on store interfaces, never on a database driver.
package service
