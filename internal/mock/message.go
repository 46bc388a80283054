package mock

import "sync/atomic"

// Message is a simple core.Message implementation for testing.
type Message struct {
	K       []byte
	V       []byte
	H       map[string]string
	acked   atomic.Bool
	nacked  atomic.Bool
	AckErr  error
	NackErr error
}

func (m *Message) Key() []byte                { return m.K }
func (m *Message) Value() []byte              { return m.V }
func (m *Message) Headers() map[string]string { return m.H }

func (m *Message) Ack() error {
	m.acked.Store(true)
	return m.AckErr
}

func (m *Message) Nack() error {
	m.nacked.Store(true)
	return m.NackErr
}

// Acked reports whether Ack was called.
func (m *Message) Acked() bool { return m.acked.Load() }

// Nacked reports whether Nack was called.
func (m *Message) Nacked() bool { return m.nacked.Load() }
