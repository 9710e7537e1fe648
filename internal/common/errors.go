// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Store errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrWriteFailed    = errors.New("write failed")

	// Live feed errors.
	ErrSubscriptionLost = errors.New("subscription lost")
	ErrOffline          = errors.New("store offline")
	ErrClosed           = errors.New("closed")
	ErrNotSpeculative   = errors.New("entity id is not a speculative placeholder")

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

// DraftError is returned when a speculative write is retracted. Draft holds
// the text the user typed so the caller can put it back in the input.
type DraftError struct {
	Err   error
	Draft string
}

func (e *DraftError) Error() string {
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e *DraftError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrSubscriptionLost) ||
		errors.Is(err, ErrOffline) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
