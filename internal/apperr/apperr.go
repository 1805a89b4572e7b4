// Package apperr defines the typed error taxonomy shared by the intake pipeline.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure so callers can react to it.
type Kind string

const (
	KindInvalidContent   Kind = "invalid_content"
	KindInvalidURL       Kind = "invalid_url"
	KindTimeout          Kind = "timeout"
	KindRateLimited      Kind = "rate_limited"
	KindAccessDenied     Kind = "access_denied"
	KindNetwork          Kind = "network_error"
	KindParsing          Kind = "parsing_error"
	KindInvalidResponse  Kind = "invalid_response"
	KindDuplicate        Kind = "duplicate"
	KindScrapeFailed     Kind = "scrape_failed"
	KindExtractionFailed Kind = "extraction_failed"
	KindUnknown          Kind = "unknown"
)

// Conflict identifies the existing record a duplicate submission collided with.
type Conflict struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	CompanyName string `json:"company_name"`
	JobTitle    string `json:"job_title"`
}

// Error is a classified pipeline failure with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// RequiresManual is set when the caller should retry with pasted content.
	RequiresManual bool
	// Guidance is site-specific advice shown alongside RequiresManual.
	Guidance string
	// Conflict is set for KindDuplicate when the colliding record is known.
	Conflict *Conflict
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err under kind with a user-facing message.
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindUnknown when err is unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var ae *Error
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Kind == kind {
			return true
		}
		err = ae.Err
	}
	return false
}

// HTTPStatus maps a kind to the status code the request layer returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindDuplicate:
		return http.StatusConflict
	case KindInvalidContent, KindInvalidURL:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
