package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// TransientError marks an error as retryable.
type TransientError struct {
	Err     error
	Message string // caller-facing message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an error as not retryable.
type PermanentError struct {
	Err     error
	Message string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable with a caller-facing message.
func NewTransientError(err error, message string) error {
	return &TransientError{Err: err, Message: message}
}

// NewPermanentError wraps err as non-retryable with a caller-facing message.
func NewPermanentError(err error, message string) error {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"429", "rate limit",
		"500", "internal server error",
		"502", "bad gateway",
		"503", "service unavailable",
		"504", "gateway timeout",
		"connection refused", "connection reset", "broken pipe",
		"timeout", "temporarily unavailable",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// IsPermanent reports whether an error is explicitly not retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return true
	}
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return false
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"401", "unauthorized",
		"403", "forbidden",
		"404", "not found",
		"400", "bad request",
		"invalid", "permission denied",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
