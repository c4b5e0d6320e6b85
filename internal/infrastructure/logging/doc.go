// Package logging provides structured logging for notify-core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("tenant onboarded", "tenant", tenantID)
//	logger.Error("token request failed", "error", err)
//
// # Security
//
// Never log token strings, passwords, or credentials. Log token expiry
// and subscriber scope instead of the bearer value itself.
package logging
