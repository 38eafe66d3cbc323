// Package errs provides structured error types for upstream exchange failures.
package errs

import (
	"strconv"
	"strings"
)

// Code identifies an upstream error category.
type Code string

const (
	// CodeRateLimited indicates that the request exceeded the exchange rate limit.
	CodeRateLimited Code = "rate_limited"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeExchange indicates an exchange-side failure (non-429 4xx/5xx).
	CodeExchange Code = "exchange_error"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeRetryExhausted indicates a transient failure persisted past the retry ceiling.
	CodeRetryExhausted Code = "retry_exhausted"
	// CodeConflict indicates a store-level data integrity conflict.
	CodeConflict Code = "conflict"
)

// E captures structured error information for a failed upstream operation.
type E struct {
	Exchange string
	Code     Code
	HTTP     int
	Body     string
	Message  string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the exchange and error code.
func New(exchange string, code Code, opts ...Option) *E {
	e := &E{
		Exchange: strings.TrimSpace(exchange),
		Code:     code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated upstream HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithBody captures the raw upstream response body.
func WithBody(body string) Option {
	return func(e *E) {
		e.Body = body
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	exchange := strings.TrimSpace(e.Exchange)
	if exchange == "" {
		exchange = "unknown"
	}
	parts = append(parts, "exchange="+exchange)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Body != "" {
		parts = append(parts, "body="+strconv.Quote(e.Body))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// IsRetryable reports whether the failure may succeed on a later attempt.
func (e *E) IsRetryable() bool {
	if e == nil {
		return false
	}
	return e.Code == CodeRateLimited || e.Code == CodeNetwork
}
