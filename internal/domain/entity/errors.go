package entity

import "errors"

var (
	// ErrNotAuthenticated is returned by mutating operations issued without an identity
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrChannelWriteFailed wraps transient write failures of the data channel
	ErrChannelWriteFailed = errors.New("channel write failed")

	// ErrChannelSubscribeFailed wraps failures to open a live feed
	ErrChannelSubscribeFailed = errors.New("channel subscribe failed")

	// ErrMaxRetriesExceeded marks a queued message moved to the dead-letter log
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrCreateFailed is returned when a room record could not be written
	ErrCreateFailed = errors.New("create failed")

	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
)
