package kafka

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
)

// fetchedMessage adapts one fetched record to core.Message. A delivery is
// settled at most once: the transport worker acks every delivery it finishes
// with, and a second settlement must not move the committed offset.
type fetchedMessage struct {
	raw     kafka.Message
	commit  func(kafka.Message) error
	settled atomic.Bool
}

func (m *fetchedMessage) Key() []byte   { return m.raw.Key }
func (m *fetchedMessage) Value() []byte { return m.raw.Value }

// Headers exposes the record headers plus the partition and offset, so
// failure records and logs can locate the exact source record.
func (m *fetchedMessage) Headers() map[string]string {
	h := make(map[string]string, len(m.raw.Headers)+2)
	for _, kh := range m.raw.Headers {
		h[kh.Key] = string(kh.Value)
	}
	h["Kafka-Partition"] = strconv.Itoa(m.raw.Partition)
	h["Kafka-Offset"] = strconv.FormatInt(m.raw.Offset, 10)
	return h
}

// Ack commits the record's offset.
func (m *fetchedMessage) Ack() error {
	if !m.settled.CompareAndSwap(false, true) {
		return nil
	}
	if err := m.commit(m.raw); err != nil {
		return fmt.Errorf("gatemux/kafka: commit offset: %w", err)
	}
	return nil
}

// Nack settles the delivery without committing. The uncommitted offset is the
// redelivery mechanism: the record comes back on the next rebalance or
// restart, and a later stray Ack cannot commit past it.
func (m *fetchedMessage) Nack() error {
	m.settled.Store(true)
	return nil
}
