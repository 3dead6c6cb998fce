// Package logging provides structured logging for piper pipelines.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation support. Every pipeline run gets an ID, and every
// stage log entry carries its position and command name, so a run can be
// reconstructed from the log file after the fact.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer and the log file;
// closing any of them closes the file for all.
//
// # Basic Usage
//
// Create a logger writing to a directory:
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("pipeline started", "stages", 3)
//
// # Context Propagation
//
//	runLogger := logger.WithPipeline("5f0c...")
//	stageLogger := runLogger.WithStage(2, "grep")
//	stageLogger.Info("stage exited", "exit_code", 1)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"stage exited","pid":4242,"pipeline_id":"5f0c...","stage":2,"command":"grep","exit_code":1}
//
// The pid attribute tells apart piper processes appending to the same file.
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output.
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  dir: ~/.local/state/piper
package logging
