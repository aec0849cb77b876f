package domain

import "github.com/cockroachdb/errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidDate        = errors.New("invalid date")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrClosed             = errors.New("closed")
	ErrAlreadySubscribed  = errors.New("already subscribed")
)
