// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrPinned reports an automatic write skipped because the stored
	// assignment is pinned.
	ErrPinned = errors.New("assignment is pinned")

	// Subject errors.
	ErrInvalidSubject = errors.New("invalid classification subject")

	// Classification errors.
	ErrNoSubjects           = errors.New("no subjects to classify")
	ErrClassificationFailed = errors.New("classification failed")
	ErrUnknownCategory      = errors.New("unknown category")

	// AI provider errors.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrNoProviders         = errors.New("no AI provider available")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// InvalidSubjectError describes why a subject was rejected before classification.
type InvalidSubjectError struct {
	SubjectID string
	Reason    string
}

func (e *InvalidSubjectError) Error() string {
	return fmt.Sprintf("subject %q: %s", e.SubjectID, e.Reason)
}

// Is lets callers match with errors.Is(err, ErrInvalidSubject).
func (e *InvalidSubjectError) Is(target error) bool {
	return target == ErrInvalidSubject
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
