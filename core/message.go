package core

import "context"

// Message is the broker-agnostic raw message abstraction.
// Implementations are provided by broker plugins.
type Message interface {
	Key() []byte
	Value() []byte
	Headers() map[string]string
	Ack() error
	Nack() error
}

// Handler is the handler invoked by broker subscriptions for each delivery.
type Handler func(ctx context.Context, msg Message) error

// Raw is a plain Message used on the publish side, where no broker delivery
// backs the message. Ack and Nack are no-ops.
type Raw struct {
	K []byte
	V []byte
	H map[string]string
}

func (m *Raw) Key() []byte                { return m.K }
func (m *Raw) Value() []byte              { return m.V }
func (m *Raw) Headers() map[string]string { return m.H }
func (m *Raw) Ack() error                 { return nil }
func (m *Raw) Nack() error                { return nil }
