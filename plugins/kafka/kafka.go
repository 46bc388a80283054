// Package kafka implements the broker contract on Apache Kafka via
// segmentio/kafka-go. Routing keys map to topics; consumer groups provide
// the per-connector outbound queue semantics.
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/broker"
	"github.com/miladsoleymani/gatemux/core"
)

func init() {
	broker.Register("kafka", func(cfg broker.Config) (core.Broker, error) {
		return New(cfg.Brokers, cfg.Group, optsFromConfig(cfg)...)
	})
}

// Broker implements core.Broker for Kafka.
//
// One writer is shared across all Publish calls; each Subscribe runs its own
// reader. Ack() commits the offset; an uncommitted offset is redelivered
// after rebalance or restart, which stands in for Nack.
type Broker struct {
	brokers []string
	group   string
	opts    options
	log     *logrus.Entry

	writer  *kafka.Writer
	readers []*kafka.Reader
	mu      sync.Mutex
	closed  bool
}

// New creates a Kafka broker.
func New(brokers []string, group string, fns ...Option) (*Broker, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("gatemux/kafka: at least one broker address is required")
	}
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     opts.balancer,
		BatchSize:    opts.batchSize,
		RequiredAcks: kafka.RequireAll,
	}
	if opts.dialer != nil {
		w.Transport = &kafka.Transport{
			TLS:  opts.dialer.TLS,
			SASL: opts.dialer.SASLMechanism,
		}
	}

	return &Broker{
		brokers: brokers,
		group:   group,
		opts:    opts,
		log:     opts.logger.WithField("component", "kafka"),
		writer:  w,
	}, nil
}

// Publish sends a message to the given topic.
func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return core.ErrBrokerClosed
	}
	b.mu.Unlock()

	km := kafka.Message{
		Topic:   topic,
		Key:     msg.Key(),
		Value:   msg.Value(),
		Headers: toHeaders(msg.Headers()),
	}
	if err := b.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("gatemux/kafka: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe consumes the topic until the context is cancelled.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	cfg := kafka.ReaderConfig{
		Brokers:  b.brokers,
		Topic:    topic,
		GroupID:  b.group,
		MinBytes: b.opts.minBytes,
		MaxBytes: b.opts.maxBytes,
		MaxWait:  b.opts.maxWait,
	}
	if b.opts.dialer != nil {
		cfg.Dialer = b.opts.dialer
	}
	if b.group == "" {
		cfg.StartOffset = kafka.LastOffset
	}
	r := kafka.NewReader(cfg)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		r.Close()
		return core.ErrBrokerClosed
	}
	b.readers = append(b.readers, r)
	b.mu.Unlock()

	for {
		raw, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gatemux/kafka: fetch: %w", err)
		}
		msg := &fetchedMessage{raw: raw, commit: func(m kafka.Message) error {
			return r.CommitMessages(ctx, m)
		}}
		if err := handler(ctx, msg); err != nil {
			// Offset not committed; the message is redelivered later.
			b.log.WithError(err).WithField("topic", topic).Warn("handler failed")
		}
	}
}

// Close flushes the writer and closes all readers.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("gatemux/kafka: close writer: %w", err))
	}
	for _, r := range b.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gatemux/kafka: close reader: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// toHeaders converts a string map to Kafka headers.
func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	headers := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}
