// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels. Request-scoped attributes such as a trace id or an
// import task id are attached to a context with WithAttrs and emitted by ContextHandler.
package logger
