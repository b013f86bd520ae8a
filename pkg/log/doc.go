// Package log provides the logging abstraction used across evlink.
//
// This package defines a Logger interface that can be implemented by any
// logging library. A zerolog adapter is provided for binaries and a no-op
// logger for embedding and tests; the library never logs unless a caller
// hands it a Logger.
//
// # Usage
//
// Use the provided zerolog adapter:
//
//	logger := log.NewZerologAdapter()
//
// Or stay silent:
//
//	logger := log.NewNop()
//
// # Custom Loggers
//
// Implement the Logger interface to integrate with existing logging
// infrastructure:
//
//	type MyLogger struct { ... }
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Warn(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Error(msg string, fields ...log.Field) { ... }
package log
