package amqp

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/broker"
	"github.com/miladsoleymani/gatemux/core"
)

const consumerRetryDelay = 500 * time.Millisecond

func retryTimer() *time.Timer { return time.NewTimer(consumerRetryDelay) }

// Option configures the AMQP client.
type Option func(*options)

type options struct {
	// Exchange settings
	exchange     string
	exchangeType string

	// Queue settings
	durable    bool
	autoDelete bool
	exclusive  bool

	// Consumer / publisher settings
	prefetchCount int
	requeueOnNack bool
	persistent    bool

	// Connection settings
	dialTimeout time.Duration
	policy      core.ReconnectPolicy
	logger      *logrus.Logger
}

func defaults() options {
	return options{
		exchange:      "", // default exchange
		exchangeType:  "direct",
		durable:       true,
		prefetchCount: 10,
		requeueOnNack: true,
		persistent:    true,
		dialTimeout:   10 * time.Second,
		policy:        core.DefaultReconnectPolicy(),
		logger:        logrus.StandardLogger(),
	}
}

// WithExchange sets the exchange name and type. The exchange is declared on
// every connect cycle.
func WithExchange(name, kind string) Option {
	return func(o *options) {
		o.exchange = name
		o.exchangeType = kind
	}
}

// WithDurable controls whether queues and exchanges survive broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
}

// WithPrefetchCount sets how many messages are delivered before requiring ack.
func WithPrefetchCount(n int) Option {
	return func(o *options) { o.prefetchCount = n }
}

// WithRequeueOnNack controls whether nacked messages are requeued.
func WithRequeueOnNack(requeue bool) Option {
	return func(o *options) { o.requeueOnNack = requeue }
}

// WithAutoDelete causes queues to be deleted when the last consumer disconnects.
func WithAutoDelete(d bool) Option {
	return func(o *options) { o.autoDelete = d }
}

// WithPersistent controls the delivery mode of published messages.
func WithPersistent(p bool) Option {
	return func(o *options) { o.persistent = p }
}

// WithDialTimeout bounds the transport-level dial.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithReconnectPolicy sets the backoff applied between reconnect attempts.
func WithReconnectPolicy(p core.ReconnectPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger sets the logger used by the client and its supervisor.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if ex, ok := cfg.Extra["exchange"].(string); ok {
		kind := "direct"
		if k, ok := cfg.Extra["exchange_type"].(string); ok {
			kind = k
		}
		opts = append(opts, WithExchange(ex, kind))
	}
	if pf, ok := cfg.Extra["prefetch_count"].(int); ok {
		opts = append(opts, WithPrefetchCount(pf))
	}
	if d, ok := cfg.Extra["durable"].(bool); ok {
		opts = append(opts, WithDurable(d))
	}
	return opts
}
