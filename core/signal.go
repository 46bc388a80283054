package core

import "sync"

// ReadySignal is a single-assignment readiness flag. A broker handshake
// completes asynchronously after the transport socket opens, and the network
// may be faster than local bookkeeping: an observer must see a signal that is
// either already resolved or not yet resolved, never resolved twice.
type ReadySignal struct {
	once sync.Once
	ch   chan struct{}
}

func NewReadySignal() *ReadySignal {
	return &ReadySignal{ch: make(chan struct{})}
}

// Resolve marks the signal ready. Calls after the first are no-ops.
func (s *ReadySignal) Resolve() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel closed once the signal resolves. If the signal
// resolved before Done was called, the channel is already closed.
func (s *ReadySignal) Done() <-chan struct{} {
	return s.ch
}

// Resolved reports whether the signal has resolved without blocking.
func (s *ReadySignal) Resolved() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
