package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is a stable machine-checkable error code carried through service
// boundaries and into HTTP responses.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindAuthorization   Kind = "authorization_error"
	KindNotFound        Kind = "not_found"
	KindEmbedding       Kind = "embedding_failure"
	KindGeneration      Kind = "generation_failure"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindMalformedOutput Kind = "malformed_provider_output"
	KindInternal        Kind = "internal_error"
)

type Error struct {
	Status int
	Kind   Kind
	Err    error

	// RetryAfter is a provider-supplied hint, zero when unknown.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Kind != "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, kind Kind, err error) *Error {
	return &Error{Status: status, Kind: kind, Err: err}
}

func Validation(err error) *Error {
	return New(http.StatusBadRequest, KindValidation, err)
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Errorf(format, args...))
}

func Authorization(err error) *Error {
	return New(http.StatusForbidden, KindAuthorization, err)
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, KindNotFound, err)
}

func Embedding(err error) *Error {
	return New(http.StatusBadGateway, KindEmbedding, err)
}

func Generation(err error) *Error {
	return New(http.StatusBadGateway, KindGeneration, err)
}

func Quota(err error, retryAfter time.Duration) *Error {
	return &Error{
		Status:     http.StatusTooManyRequests,
		Kind:       KindQuotaExceeded,
		Err:        err,
		RetryAfter: retryAfter,
	}
}

func MalformedOutput(err error) *Error {
	return New(http.StatusBadGateway, KindMalformedOutput, err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, KindInternal, err)
}

// KindOf reports the Kind of err, or KindInternal for non-apierr errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != "" {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// From returns the apierr in err's chain, wrapping unknown errors as
// internal so callers always have a Status and Kind to respond with.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
