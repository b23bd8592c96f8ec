// Package logger configures log/slog for the service and carries request
// scoped loggers (with trace IDs) through context.
package logger
