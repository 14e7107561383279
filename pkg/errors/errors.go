package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so transports can map it to a response without
// inspecting messages.
type Kind string

const (
	KindProtocolViolation        Kind = "protocol_violation"
	KindInvalidChunkIndex        Kind = "invalid_chunk_index"
	KindSessionNotFound          Kind = "session_not_found"
	KindSessionExpired           Kind = "session_expired"
	KindIncompleteUpload         Kind = "incomplete_upload"
	KindSegmentationError        Kind = "segmentation_error"
	KindProviderFailure          Kind = "provider_failure"
	KindSummarizationFormatError Kind = "summarization_format_error"
	KindPersistenceFailure       Kind = "persistence_failure"
	KindInternal                 Kind = "internal"
)

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrProtocolViolation        = &Error{Kind: KindProtocolViolation}
	ErrInvalidChunkIndex        = &Error{Kind: KindInvalidChunkIndex}
	ErrSessionNotFound          = &Error{Kind: KindSessionNotFound}
	ErrSessionExpired           = &Error{Kind: KindSessionExpired}
	ErrIncompleteUpload         = &Error{Kind: KindIncompleteUpload}
	ErrSegmentationError        = &Error{Kind: KindSegmentationError}
	ErrProviderFailure          = &Error{Kind: KindProviderFailure}
	ErrSummarizationFormatError = &Error{Kind: KindSummarizationFormatError}
	ErrPersistenceFailure       = &Error{Kind: KindPersistenceFailure}
)

// Error is the error type shared by the session layer and the pipeline.
// Stage is set for failures raised while a pipeline run is in progress.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	cause   error
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to err. A nil err yields nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

// WithStage tags err with a pipeline stage. Errors that are not *Error are
// wrapped as the fallback kind; an *Error keeps its kind and gains the stage
// unless it already carries one.
func WithStage(err error, stage string, fallback Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e.Stage != "" {
			return e
		}
		tagged := *e
		tagged.Stage = stage
		return &tagged
	}
	return &Error{Kind: fallback, Stage: stage, Message: err.Error(), cause: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.cause != nil && e.cause.Error() != e.Message {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StageOf returns the pipeline stage recorded on err, if any.
func StageOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// IsClientError reports whether the kind is caused by caller input.
func IsClientError(kind Kind) bool {
	return HTTPStatus(kind) < http.StatusInternalServerError
}

// HTTPStatus returns the status code for a kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindProtocolViolation, KindInvalidChunkIndex:
		return http.StatusBadRequest
	case KindSessionNotFound:
		return http.StatusNotFound
	case KindSessionExpired:
		return http.StatusGone
	case KindProviderFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
