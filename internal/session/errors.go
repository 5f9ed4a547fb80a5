package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is returned by commands issued before Start succeeded.
	ErrNotStarted = errors.New("session not started")
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("session closed")
	// ErrNoTarget is returned by ConnectConfigured when no bike address is configured.
	ErrNoTarget = errors.New("no bike address configured")
)

// InvalidStateError rejects a command that is not allowed in the current state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

// AlreadyInProgressError rejects a command whose operation is already running.
type AlreadyInProgressError struct {
	Op      string
	Address string
}

func (e *AlreadyInProgressError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("%s already in progress", e.Op)
	}
	return fmt.Sprintf("%s to %s already in progress", e.Op, e.Address)
}
