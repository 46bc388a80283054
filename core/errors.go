package core

import "errors"

var (
	// ErrBrokerClosed is returned when operations are attempted on a closed broker.
	ErrBrokerClosed = errors.New("gatemux: broker is closed")

	// ErrNotConnected is returned when a publish or subscribe is attempted
	// while no broker connection is live.
	ErrNotConnected = errors.New("gatemux: not connected")

	// ErrSupervisorStopped is returned from Start on a stopped supervisor,
	// and passed to disconnect callbacks when Stop tears down a live connection.
	ErrSupervisorStopped = errors.New("gatemux: supervisor stopped")

	// ErrNoHandler is returned when no handler is registered for a topic.
	ErrNoHandler = errors.New("gatemux: no handler registered for topic")
)
