// Package logging provides structured logging for AdvisorPro.
//
// This package wraps github.com/rs/zerolog behind a small key/value
// facade so call sites read the same across the codebase.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Console text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("failed to connect", "error", err)
//
// # Security
//
// Never log passwords, refresh secrets, or signed tokens. Log record
// and subject identifiers instead.
package logging
