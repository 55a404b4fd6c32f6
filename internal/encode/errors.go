package encode

import "fmt"

// ErrorKind classifies invoker failures for per-job reporting.
type ErrorKind string

const (
	// ErrorKindMissingAsset means a referenced input file was absent at
	// dispatch time; the external process was never spawned.
	ErrorKindMissingAsset ErrorKind = "missing_asset"
	// ErrorKindEncodeFailed means the external process exited non-zero.
	ErrorKindEncodeFailed ErrorKind = "encode_failed"
	// ErrorKindEnvironment means the temp directory or output location is
	// unusable. Not retryable; usually a broken install or bad permissions.
	ErrorKindEnvironment ErrorKind = "environment"
)

// InvokeError is a kind-aware encode failure with optional command context.
type InvokeError struct {
	Kind       ErrorKind  `json:"kind"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats invoker failures for logs and UI.
func (e *InvokeError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Kind,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *InvokeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FailureReason returns the stable operator-facing reason for this failure.
func (e *InvokeError) FailureReason() string {
	switch e.Kind {
	case ErrorKindMissingAsset:
		return "missing asset"
	case ErrorKindEncodeFailed:
		return "encode failed"
	case ErrorKindEnvironment:
		return "environment error"
	default:
		return string(e.Kind)
	}
}

// DiagnosticOutput returns captured process output for operator diagnosis.
func (e *InvokeError) DiagnosticOutput() string {
	if e.CommandLog.Stderr != "" {
		return e.CommandLog.Stderr
	}
	return e.Message
}
