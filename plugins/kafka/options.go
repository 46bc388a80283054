package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/broker"
)

// Option configures the Kafka broker.
type Option func(*options)

type options struct {
	// Writer
	balancer  kafka.Balancer
	batchSize int

	// Reader
	minBytes int
	maxBytes int
	maxWait  time.Duration

	// General
	dialer *kafka.Dialer
	logger *logrus.Logger
}

func defaults() options {
	return options{
		balancer:  &kafka.LeastBytes{},
		batchSize: 100,
		minBytes:  1,
		maxBytes:  10e6, // 10 MB
		maxWait:   500 * time.Millisecond,
		logger:    logrus.StandardLogger(),
	}
}

// WithBalancer sets the partition balancer for the writer.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBatchSize sets the maximum batch size for writes.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithDialer sets a custom dialer for TLS/SASL connections.
func WithDialer(d *kafka.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// optsFromConfig extracts options from the broker.Config.Extra map.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["batch_size"].(int); ok {
		opts = append(opts, WithBatchSize(v))
	}
	if v, ok := cfg.Extra["max_bytes"].(int); ok {
		opts = append(opts, WithMaxBytes(v))
	}
	return opts
}
