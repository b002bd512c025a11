package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure for propagation and reporting.
type ErrorKind string

// Error taxonomy.
const (
	ErrKindAuthFailed            ErrorKind = "auth_failed"
	ErrKindRateLimited           ErrorKind = "rate_limited"
	ErrKindQuotaExhausted        ErrorKind = "quota_exhausted"
	ErrKindUpstream5xx           ErrorKind = "upstream_5xx"
	ErrKindUpstream4xxOther      ErrorKind = "upstream_4xx_other"
	ErrKindTimeout               ErrorKind = "timeout"
	ErrKindCancelled             ErrorKind = "cancelled"
	ErrKindParseError            ErrorKind = "parse_error"
	ErrKindLLMInvalidOutput      ErrorKind = "llm_invalid_output"
	ErrKindLLMRefusal            ErrorKind = "llm_refusal"
	ErrKindNotApplicable         ErrorKind = "integration_not_applicable"
	ErrKindConfigMissing         ErrorKind = "config_missing"
	ErrKindDeadlineExceeded      ErrorKind = "deadline_exceeded"
	ErrKindCriticalSourceFailure ErrorKind = "critical_source_failure"
)

// SourceError is the classified error carried inside QueryResult.
type SourceError struct {
	Kind     ErrorKind `json:"kind"`
	SourceID string    `json:"source_id,omitempty"`
	Message  string    `json:"message"`
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.SourceID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.SourceID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewSourceError builds a classified error for a source.
func NewSourceError(kind ErrorKind, sourceID, format string, args ...any) *SourceError {
	return &SourceError{
		Kind:     kind,
		SourceID: sourceID,
		Message:  fmt.Sprintf(format, args...),
	}
}

// ClassifyHTTPStatus maps an upstream HTTP status to an error kind.
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrKindAuthFailed
	case status == http.StatusTooManyRequests:
		return ErrKindRateLimited
	case status >= 500:
		return ErrKindUpstream5xx
	case status >= 400:
		return ErrKindUpstream4xxOther
	default:
		return ErrKindParseError
	}
}

// ClassifyError maps a Go error (typically from an HTTP round trip or a
// cancelled context) to a SourceError for the given source.
func ClassifyError(sourceID string, err error) *SourceError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return NewSourceError(ErrKindTimeout, sourceID, "deadline exceeded: %v", err)
	case errors.Is(err, context.Canceled):
		return NewSourceError(ErrKindCancelled, sourceID, "cancelled: %v", err)
	default:
		var se *SourceError
		if errors.As(err, &se) {
			return se
		}
		return NewSourceError(ErrKindUpstream5xx, sourceID, "%v", err)
	}
}
