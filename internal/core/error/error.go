package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// SQLiteErrorMessage describes SQLite related failures.
	SQLiteErrorMessage = "sqlite operation failed"
	// MCPErrorMessage describes failures talking to the MCP tool server.
	MCPErrorMessage = "mcp tool call failed"
	// LLMErrorMessage describes failures of the language model gateway.
	LLMErrorMessage = "language model call failed"
)

// Kind classifies an AppError. The workflow kinds are resolved locally by the
// orchestrator and become a single assistant message; infrastructure kinds abort a turn.
type Kind string

const (
	KindUnknown Kind = ""

	KindClassificationUnrecognized Kind = "classification_unrecognized"
	KindClarificationExhausted     Kind = "clarification_exhausted"
	KindValidationToolUnavailable  Kind = "validation_tool_unavailable"
	KindValidationFailed           Kind = "validation_failed"
	KindRetryExhausted             Kind = "retry_exhausted"
	KindExecutionToolUnavailable   Kind = "execution_tool_unavailable"
	KindExecutionFailed            Kind = "execution_failed"
	KindExecutionEmpty             Kind = "execution_empty"

	KindPersistence Kind = "persistence"
	KindLLM         Kind = "llm"
	KindTool        Kind = "tool"
	KindConfig      Kind = "config"
)

// Fatal reports whether errors of this kind must abort the current turn.
func (k Kind) Fatal() bool {
	switch k {
	case KindPersistence, KindLLM, KindConfig, KindUnknown:
		return true
	default:
		return false
	}
}

var (
	// ErrToolUnavailable is returned by a toolbox when the requested tool is not offered.
	ErrToolUnavailable = errors.New("tool not available")
	// ErrThreadNotFound is returned by checkpoint stores for unknown thread ids.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrCheckpointConflict is returned when a checkpoint was written concurrently.
	ErrCheckpointConflict = errors.New("checkpoint version conflict")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WithKind returns a new AppError of the given kind.
func WithKind(kind Kind, err error, message string) *AppError {
	status := http.StatusInternalServerError
	switch kind {
	case KindPersistence, KindTool, KindLLM:
		status = http.StatusBadGateway
	case KindConfig:
		status = http.StatusInternalServerError
	case KindClassificationUnrecognized, KindValidationFailed, KindExecutionFailed:
		status = http.StatusUnprocessableEntity
	case KindExecutionEmpty:
		status = http.StatusOK
	case KindValidationToolUnavailable, KindExecutionToolUnavailable:
		status = http.StatusServiceUnavailable
	case KindClarificationExhausted, KindRetryExhausted:
		status = http.StatusTooManyRequests
	}
	return &AppError{Err: err, Status: status, Message: message, Kind: kind}
}

// KindOf returns the Kind of the first AppError in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// WrapLLM wraps a language model failure.
func WrapLLM(err error) error {
	if err == nil {
		return nil
	}
	return WithKind(KindLLM, err, LLMErrorMessage)
}

// WrapMCP wraps an MCP transport or protocol failure. Missing tools keep the
// ErrToolUnavailable identity so callers can branch on errors.Is.
func WrapMCP(err error) error {
	if err == nil {
		return nil
	}
	return WithKind(KindTool, err, MCPErrorMessage)
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// ThreadNotFound reports a thread with no saved checkpoint.
func ThreadNotFound(threadID string) error {
	e := New(fmt.Errorf("%w: %s", ErrThreadNotFound, threadID), http.StatusNotFound, "thread not found")
	e.Kind = KindPersistence
	return e
}

// CheckpointConflict reports a save whose version does not follow the stored one.
func CheckpointConflict(threadID string, stored, got int64) error {
	e := New(fmt.Errorf("%w: thread %s at version %d, save carried %d", ErrCheckpointConflict, threadID, stored, got), http.StatusConflict, "checkpoint version conflict")
	e.Kind = KindPersistence
	return e
}
