// Package logging provides structured logging for netdiag.
//
// It wraps log/slog with a JSON or text handler chosen by configuration
// and stamps every entry with service and version fields:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "port", 8000)
//	logger.Component("topology").Error("mutation failed", "error", err)
//
// Never log secrets, tokens or password hashes.
package logging
