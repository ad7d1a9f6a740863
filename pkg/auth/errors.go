package auth

import "errors"

type ErrNotConfigured struct {
}

func (e *ErrNotConfigured) Error() string {
	return "auth backend is not configured"
}

func IsNotConfigured(err error) bool {
	var notConfigured *ErrNotConfigured
	return errors.As(err, &notConfigured)
}

type ErrNotAuthenticated struct {
}

func (e *ErrNotAuthenticated) Error() string {
	return "not authenticated"
}

func IsNotAuthenticated(err error) bool {
	var notAuthenticated *ErrNotAuthenticated
	return errors.As(err, &notAuthenticated)
}
