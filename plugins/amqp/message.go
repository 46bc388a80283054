package amqp

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// delivery adapts an amqp.Delivery to core.Message.
type delivery struct {
	d       amqp.Delivery
	requeue bool
}

func (m *delivery) Key() []byte   { return []byte(m.d.RoutingKey) }
func (m *delivery) Value() []byte { return m.d.Body }

func (m *delivery) Headers() map[string]string {
	h := make(map[string]string, len(m.d.Headers))
	for k, v := range m.d.Headers {
		if s, ok := v.(string); ok {
			h[k] = s
		} else {
			h[k] = fmt.Sprintf("%v", v)
		}
	}
	return h
}

// Ack acknowledges the delivery, removing it from the queue.
func (m *delivery) Ack() error {
	if err := m.d.Ack(false); err != nil {
		return fmt.Errorf("gatemux/amqp: ack: %w", err)
	}
	return nil
}

// Nack negatively acknowledges the delivery. If requeue is enabled, the
// message is returned to the queue for redelivery.
func (m *delivery) Nack() error {
	if err := m.d.Nack(false, m.requeue); err != nil {
		return fmt.Errorf("gatemux/amqp: nack: %w", err)
	}
	return nil
}
