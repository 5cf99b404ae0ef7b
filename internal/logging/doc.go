// Package logging provides structured logging for pktlink.
//
// The package wraps a zap logger with package-level helpers so the engine,
// the transfer protocol and the server log through one sink without passing
// a logger around.
//
// # Log Levels
//
//   - Debug: wire bytes, per-segment state transitions, signals
//   - Info: connections, completed transfers
//   - Warn: retries, rejected packets
//   - Error: failed transfers, listener errors
//
// # Configuration
//
// Logging is silent until initialised. CLI commands call InitializeFromEnv,
// which reads PKTLINK_LOG_LEVEL, or Initialize with the --log-level flag:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Output goes to stderr so it never interleaves with transfer progress on
// stdout.
package logging
