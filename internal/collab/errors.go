package collab

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates the backend is down, unreachable or timed out.
// It is transient: the caller may offer a retry.
type ErrUnavailable struct {
	Err error
}

func (e *ErrUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend unavailable: %v", e.Err)
	}
	return "backend unavailable"
}

func (e *ErrUnavailable) Unwrap() error { return e.Err }

// ErrNotFound indicates the requested resource does not exist (HTTP 404).
type ErrNotFound struct {
	Resource string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// ErrSessionRequired indicates the backend has no active session for the
// learner. It is recovered by starting a session and retrying once.
type ErrSessionRequired struct{}

func (e *ErrSessionRequired) Error() string {
	return "no active session"
}

// ErrAuthRequired indicates missing or rejected credentials.
type ErrAuthRequired struct {
	Status int
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("authentication required (HTTP %d)", e.Status)
}

// ErrCooldownActive indicates the backend refused an action because the
// learner's cooldown has not elapsed (HTTP 429).
type ErrCooldownActive struct {
	Remaining time.Duration
}

func (e *ErrCooldownActive) Error() string {
	return fmt.Sprintf("cooldown active (%s remaining)", e.Remaining.Round(time.Second))
}

// ErrUnexpectedStatus covers responses no other error describes.
type ErrUnexpectedStatus struct {
	Status int
	Body   string
}

func (e *ErrUnexpectedStatus) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// IsTransient reports whether err is a retryable connectivity failure.
func IsTransient(err error) bool {
	var unavail *ErrUnavailable
	return errors.As(err, &unavail)
}

// IsNotFound reports whether err is an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// IsSessionRequired reports whether err is an *ErrSessionRequired.
func IsSessionRequired(err error) bool {
	var sr *ErrSessionRequired
	return errors.As(err, &sr)
}
