// Package logging provides structured logging for sipchat.
//
// The console owns the terminal, so diagnostic output never goes to stdout.
// Logs are JSON lines written to a file in the configured log directory
// (or to stderr when no directory is configured).
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("session accepted", "streams", "audio,chat")
//
// # Context Propagation
//
//	accountLogger := logger.WithAccount("alice@example.com")
//	sessionLogger := accountLogger.WithSession("3f2a9c")
//	sessionLogger.Info("hold requested")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"hold requested","account":"alice@example.com","session_id":"3f2a9c"}
//
// # Runtime Level Changes
//
// Child loggers share their parent's level, so [Logger.SetLevel] on the root
// logger takes effect everywhere. The command layer calls it when the config
// file changes on disk.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a
// bytes.Buffer to assert on log lines.
package logging
