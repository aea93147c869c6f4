package services

import (
	"errors"
	"fmt"
)

var (
	ErrSnapshot         = errors.New("snapshot load failed")
	ErrChannel          = errors.New("channel failure")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAPI              = errors.New("api request failed")
	ErrUnknownMonitor   = errors.New("unknown monitor")
	ErrNotStarted       = errors.New("session not started")
)

// SnapshotError is returned when a bulk fetch fails on the network, on
// auth, or while decoding the payload.
type SnapshotError struct {
	Op     string
	Status int
	Err    error
}

func (e *SnapshotError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SnapshotError) Unwrap() []error {
	return []error{ErrSnapshot, e.Err}
}

// ChannelError wraps a connect or transport failure on the push channel
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() []error {
	return []error{ErrChannel, e.Err}
}

// APIError carries the backend message of a failed REST call
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Error Code: %d", e.Status)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}
