// Package logging provides structured logging for feedwatch.
//
// This package wraps Go's standard log/slog package so every component
// (topic clients, supervisor, relays, status API) logs with the same
// default fields and level filtering.
//
// # Features
//
//   - Text output for terminals, JSON for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// Logs go to stderr by default because stdout carries the printed feed.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("subscribed", "topic", "tag:go")
//	logger.Warn("connection lost", "error", err)
//
// Never log secrets such as broker passwords or InfluxDB tokens.
package logging
