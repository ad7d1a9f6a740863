package remote

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the backend has no save for the user.
type ErrNotFound struct{}

func (e *ErrNotFound) Error() string {
	return "save not found"
}

func IsNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}

// ErrOffline is returned when the device has no network connection at all.
type ErrOffline struct{}

func (e *ErrOffline) Error() string {
	return "device is offline"
}

func IsOffline(err error) bool {
	var offline *ErrOffline
	return errors.As(err, &offline)
}

// ErrUnreachable is returned when the device is online but the backend
// cannot be reached or does not answer.
type ErrUnreachable struct {
	Err error
}

func (e *ErrUnreachable) Error() string {
	return fmt.Sprintf("backend unreachable: %v", e.Err)
}

func (e *ErrUnreachable) Unwrap() error {
	return e.Err
}

func IsUnreachable(err error) bool {
	var unreachable *ErrUnreachable
	return errors.As(err, &unreachable)
}
