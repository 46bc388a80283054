package nats

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/broker"
)

// Option configures the NATS broker.
type Option func(*options)

type options struct {
	// Stream
	storage jetstream.StorageType
	maxAge  time.Duration

	// Consumer
	ackWait    time.Duration
	maxDeliver int

	// Connection
	reconnectWait time.Duration
	logger        *logrus.Logger
}

func defaults() options {
	return options{
		storage:       jetstream.FileStorage,
		ackWait:       30 * time.Second,
		maxDeliver:    5,
		reconnectWait: 2 * time.Second,
		logger:        logrus.StandardLogger(),
	}
}

// WithStorage sets the stream storage type (file or memory).
func WithStorage(s jetstream.StorageType) Option {
	return func(o *options) { o.storage = s }
}

// WithMaxAge sets the maximum age of messages in the stream.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) { o.maxAge = d }
}

// WithAckWait sets how long the server waits for an ack before redelivering.
func WithAckWait(d time.Duration) Option {
	return func(o *options) { o.ackWait = d }
}

// WithMaxDeliver sets the maximum number of delivery attempts.
func WithMaxDeliver(n int) Option {
	return func(o *options) { o.maxDeliver = n }
}

// WithReconnectWait sets the delay between client reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(o *options) { o.reconnectWait = d }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["max_deliver"].(int); ok {
		opts = append(opts, WithMaxDeliver(v))
	}
	if v, ok := cfg.Extra["memory_storage"].(bool); ok && v {
		opts = append(opts, WithStorage(jetstream.MemoryStorage))
	}
	return opts
}
