package nats

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/nats-io/nats.go/jetstream"
)

// jsMessage adapts a JetStream delivery to core.Message. The server rejects
// double acknowledgment of the same delivery, so settlement is guarded here
// rather than surfacing a confusing server error to the worker.
type jsMessage struct {
	msg     jetstream.Msg
	settled atomic.Bool
}

func (m *jsMessage) Key() []byte   { return []byte(m.msg.Subject()) }
func (m *jsMessage) Value() []byte { return m.msg.Data() }

// Headers flattens the message headers and adds the server-side delivery
// count, letting handlers and failure records see how often a message has
// already bounced.
func (m *jsMessage) Headers() map[string]string {
	raw := m.msg.Headers()
	h := make(map[string]string, len(raw)+1)
	for k, v := range raw {
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	if md, err := m.msg.Metadata(); err == nil {
		h["Nats-Delivery-Attempt"] = strconv.FormatUint(md.NumDelivered, 10)
	}
	return h
}

// Ack marks the delivery processed.
func (m *jsMessage) Ack() error {
	if !m.settled.CompareAndSwap(false, true) {
		return nil
	}
	if err := m.msg.Ack(); err != nil {
		return fmt.Errorf("gatemux/nats: ack: %w", err)
	}
	return nil
}

// Nack asks the server to redeliver, up to the consumer's MaxDeliver limit.
func (m *jsMessage) Nack() error {
	if !m.settled.CompareAndSwap(false, true) {
		return nil
	}
	if err := m.msg.Nak(); err != nil {
		return fmt.Errorf("gatemux/nats: nack: %w", err)
	}
	return nil
}
