// Package logging provides structured logging with per-module log level configuration.
//
// The logging system uses Go's slog package with automatic output routing:
//   - systemd journal when available (Linux systems with journald)
//   - stdout when a terminal, pipe, or file is connected
//   - an in-memory ring buffer served through the HTTP API
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"stack":  "debug", // Per-module overrides
//			"ports":  "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("stack")
//	logger.Info("Service started", "service", "kafka", "port", 9092)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("stack").With("service", id)
//	logger.Info("Ready") // Includes service in all logs
//
// When running under systemd the journal entries carry the identifier
// "demostack":
//
//	journalctl -t demostack -f
//	journalctl -t demostack MODULE=stack SERVICE=kafka
//
// Example TOML configuration, where "level" and "format" are reserved
// and every other key names a module:
//
//	[logging]
//	level = "info"
//	format = "text"
//	stack = "debug"
//	dashboard = "warn"
package logging
