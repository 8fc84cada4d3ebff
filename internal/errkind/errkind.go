// Package errkind defines the stable machine-readable error categories used
// at waveline's external boundaries. Callers branch on Kind, never on error
// message text or vendor error shapes.
package errkind

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is a stable machine-readable error category.
type Kind string

const (
	// KindValidation covers client-correctable input problems: missing
	// fields, bad identity syntax, unsupported format selectors.
	KindValidation Kind = "validation"
	// KindFormatRejected marks uploads lacking the required audio codec.
	KindFormatRejected Kind = "format_rejected"
	// KindNotFound marks an absent ingestion record.
	KindNotFound Kind = "record_not_found"
	// KindNotReady marks a derived variant requested before it was produced.
	KindNotReady Kind = "variant_not_ready"
	// KindObjectMissing marks a record whose stored object is absent from
	// the blob store, distinct from the record itself being absent.
	KindObjectMissing Kind = "object_missing"
	// KindConflict marks state transitions rejected because the record is
	// already terminal.
	KindConflict Kind = "conflict"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// Error tags an error with a Kind and optional structured details for the
// response envelope.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error from a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a tagged error from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error while keeping it available for errors.Is/As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetail attaches a structured detail value and returns the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 2)
	}
	e.Details[key] = value
	return e
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// DetailsOf returns the structured details from err, or nil.
func DetailsOf(err error) map[string]any {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Details
	}
	return nil
}

// MessageOf returns the caller-safe message for err. Untagged errors map to a
// generic message so internal diagnostics never leak into responses.
func MessageOf(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) && strings.TrimSpace(tagged.Message) != "" {
		return tagged.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind onto the status code the API layer responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindFormatRejected:
		return http.StatusUnprocessableEntity
	case KindNotFound, KindObjectMissing:
		return http.StatusNotFound
	case KindNotReady, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
