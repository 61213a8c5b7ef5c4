// Package logger wraps zap with a global sugared logger and context scoping.
// Components take a context and log through the logger stored in it, so a
// name or key-value pairs attached once (WithName, WithKV) follow every line.
package logger
