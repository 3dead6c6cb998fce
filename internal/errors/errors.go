// Package errors provides centralized error definitions and error handling utilities
// for piper. It defines the pipeline error taxonomy, semantic error types, error
// constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of the pipeline engine:
//   - SpawnError: a stage could not be started (command not found, exec failure)
//   - StreamError: I/O failure on a stage's stdin, stdout or stderr
//   - LifecycleError: a stage was mutated after it had started
//   - AggregateError: every stage of a pipeline failed to spawn
//   - FileError: a redirection target could not be opened
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or state
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewSpawnError("grep", cause).WithStage(2)
//	err := errors.NewFileError("open redirection target", cause).WithPath("/tmp/out").WithMode("w")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrCommandNotFound) { ... }
//
//	var spawnErr *errors.SpawnError
//	if errors.As(err, &spawnErr) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Stage-related sentinel errors
var (
	// ErrCommandNotFound indicates that a stage's executable could not be located.
	ErrCommandNotFound = New("command not found")
	// ErrSpawnFailed indicates that the OS refused to start a stage.
	ErrSpawnFailed = New("spawn failed")
	// ErrAlreadyStarted indicates a stage was mutated after it began running.
	ErrAlreadyStarted = New("stage already started")
)

// Pipeline-related sentinel errors
var (
	// ErrNoStages indicates a pipeline was built from an empty stage list.
	ErrNoStages = New("pipeline has no stages")
	// ErrAllStagesFailed indicates that no stage of a pipeline could be spawned.
	ErrAllStagesFailed = New("all stages failed to spawn")
	// ErrBrokenPipe indicates a write into a stream whose reader has gone away.
	ErrBrokenPipe = New("broken pipe")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PiperError is the base interface for all piper errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type PiperError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SpawnError reports a stage that could not be started. The stage is dropped
// from the chain; the pipeline keeps going with its remaining stages.
//
// Example:
//
//	err := errors.NewSpawnError("nonexistent", exec.ErrNotFound).WithStage(2)
//	fmt.Println(err) // "spawn error [stage=2, command=nonexistent]: failed to start command: ..."
type SpawnError struct {
	baseError
	Stage   int // 1-indexed position in the declared pipeline, 0 when unknown
	Command string
}

// NewSpawnError creates a new SpawnError for command.
func NewSpawnError(command string, cause error) *SpawnError {
	return &SpawnError{
		baseError: baseError{
			message:    "failed to start command",
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Command: command,
	}
}

// WithStage adds the stage position to the error context.
func (e *SpawnError) WithStage(stage int) *SpawnError {
	e.Stage = stage
	return e
}

// Error returns the formatted error message.
func (e *SpawnError) Error() string {
	var parts []string
	if e.Stage > 0 {
		parts = append(parts, fmt.Sprintf("stage=%d", e.Stage))
	}
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%s", e.Command))
	}
	return e.format("spawn error", parts)
}

// Is checks if this error matches the target.
func (e *SpawnError) Is(target error) bool {
	if _, ok := target.(*SpawnError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// StreamError reports an I/O failure on one of a stage's standard streams.
// Stream errors never unwind other stages.
//
// Example:
//
//	err := errors.NewStreamError("copy to downstream", cause).WithStage(1).WithStream("stdout")
type StreamError struct {
	baseError
	Stage   int
	Command string
	Stream  string // "stdin", "stdout" or "stderr"
}

// NewStreamError creates a new StreamError.
func NewStreamError(message string, cause error) *StreamError {
	return &StreamError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithStage adds the stage position to the error context.
func (e *StreamError) WithStage(stage int) *StreamError {
	e.Stage = stage
	return e
}

// WithCommand adds the command name to the error context.
func (e *StreamError) WithCommand(command string) *StreamError {
	e.Command = command
	return e
}

// WithStream adds the stream name to the error context.
func (e *StreamError) WithStream(stream string) *StreamError {
	e.Stream = stream
	return e
}

// Error returns the formatted error message.
func (e *StreamError) Error() string {
	var parts []string
	if e.Stage > 0 {
		parts = append(parts, fmt.Sprintf("stage=%d", e.Stage))
	}
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%s", e.Command))
	}
	if e.Stream != "" {
		parts = append(parts, fmt.Sprintf("stream=%s", e.Stream))
	}
	return e.format("stream error", parts)
}

// Is checks if this error matches the target.
func (e *StreamError) Is(target error) bool {
	if _, ok := target.(*StreamError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LifecycleError reports a contract violation: mutating a stage after it has
// started. It is surfaced synchronously to the caller.
//
// Example:
//
//	err := errors.NewLifecycleError("grep", "OutputTo")
//	fmt.Println(err) // "lifecycle error [command=grep, op=OutputTo]: cannot modify stage after it has started: stage already started"
type LifecycleError struct {
	baseError
	Command   string
	Operation string
}

// NewLifecycleError creates a new LifecycleError for the given operation.
func NewLifecycleError(command, operation string) *LifecycleError {
	return &LifecycleError{
		baseError: baseError{
			message:    "cannot modify stage after it has started",
			cause:      ErrAlreadyStarted,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
		Command:   command,
		Operation: operation,
	}
}

// Error returns the formatted error message.
func (e *LifecycleError) Error() string {
	var parts []string
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%s", e.Command))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	return e.format("lifecycle error", parts)
}

// Is checks if this error matches the target.
func (e *LifecycleError) Is(target error) bool {
	if _, ok := target.(*LifecycleError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AggregateError is reported once when no stage of a pipeline could be
// spawned, so no usable result exists. It carries the individual spawn
// failures.
type AggregateError struct {
	baseError
	Errors []error
}

// NewAggregateError creates a new AggregateError from the per-stage failures.
func NewAggregateError(errs []error) *AggregateError {
	return &AggregateError{
		baseError: baseError{
			message:    "no stage could be started",
			cause:      ErrAllStagesFailed,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Errors: errs,
	}
}

// Error returns the formatted error message.
func (e *AggregateError) Error() string {
	msg := e.format("aggregate error", []string{fmt.Sprintf("stages=%d", len(e.Errors))})
	for _, err := range e.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Unwrap returns the sentinel cause followed by every stage failure so that
// errors.Is and errors.As see through the aggregate.
func (e *AggregateError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors)+1)
	out = append(out, e.cause)
	return append(out, e.Errors...)
}

// Is checks if this error matches the target.
func (e *AggregateError) Is(target error) bool {
	if _, ok := target.(*AggregateError); ok {
		return true
	}
	return target == ErrAllStagesFailed
}

// FileError reports a redirection target that could not be opened.
//
// Example:
//
//	err := errors.NewFileError("open redirection target", fs.ErrNotExist).WithPath("in.txt").WithMode("r")
type FileError struct {
	baseError
	Path string
	Mode string // "r" or "w"
}

// NewFileError creates a new FileError.
func NewFileError(message string, cause error) *FileError {
	return &FileError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithPath adds the file path to the error context.
func (e *FileError) WithPath(path string) *FileError {
	e.Path = path
	return e
}

// WithMode adds the open mode to the error context.
func (e *FileError) WithMode(mode string) *FileError {
	e.Mode = mode
	return e
}

// Error returns the formatted error message.
func (e *FileError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	if e.Mode != "" {
		parts = append(parts, fmt.Sprintf("mode=%s", e.Mode))
	}
	return e.format("file error", parts)
}

// Is checks if this error matches the target.
func (e *FileError) Is(target error) bool {
	if _, ok := target.(*FileError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("command cannot be empty").WithField("stages[0].command")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			cause:      ErrInvalidInput,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation error")
	if e.Field != "" {
		sb.WriteString(fmt.Sprintf(" [field=%s]", e.Field))
	}
	sb.WriteString(": ")
	sb.WriteString(e.message)
	if e.Value != nil {
		sb.WriteString(fmt.Sprintf(" (got: %v)", e.Value))
	}
	return sb.String()
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether err (or anything it wraps) is a retryable
// PiperError.
func IsRetryable(err error) bool {
	var pe PiperError
	if As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

// IsUserFacing reports whether err's message is safe to show to end users.
// Errors that are not PiperErrors are treated as internal.
func IsUserFacing(err error) bool {
	var pe PiperError
	if As(err, &pe) {
		return pe.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity of err, defaulting to SeverityError for
// errors that carry no classification.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var pe PiperError
	if As(err, &pe) {
		return pe.Severity()
	}
	return SeverityError
}

// Wrap annotates err with a message, preserving the chain. It returns nil if
// err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Compile-time interface checks.
var (
	_ PiperError = (*SpawnError)(nil)
	_ PiperError = (*StreamError)(nil)
	_ PiperError = (*LifecycleError)(nil)
	_ PiperError = (*FileError)(nil)
	_ PiperError = (*ValidationError)(nil)
)
