package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrSettingNotFound    = errors.New("setting not found")
	ErrRunNotAllowed      = errors.New("update not allowed yet")
	ErrMissingCredentials = errors.New("remote api credentials not configured")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// RemoteError reports a failed call against the remote achievement API.
// Status is zero when the response arrived but could not be decoded.
type RemoteError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: request failed with status code %d", e.Endpoint, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("remote %s: request failed", e.Endpoint)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// RunNotAllowedError is returned while the update cooldown has not elapsed
type RunNotAllowedError struct {
	LastRun time.Time
	Elapsed string
}

func (e *RunNotAllowedError) Error() string {
	return fmt.Sprintf("update not allowed yet, last run %s", e.Elapsed)
}

// Is lets callers match with errors.Is(err, ErrRunNotAllowed)
func (e *RunNotAllowedError) Is(target error) bool {
	return target == ErrRunNotAllowed
}

// IsRemoteError checks if an error came from the remote API
func IsRemoteError(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}
