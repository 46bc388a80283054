// Package nats implements the broker contract on NATS JetStream. JetStream
// gives the at-least-once, durable-consumer semantics the routing convention
// assumes, so transports can run against NATS unchanged.
package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/broker"
	"github.com/miladsoleymani/gatemux/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config) (core.Broker, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("gatemux/nats: at least one broker URL is required")
		}
		return New(cfg.Brokers[0], cfg.Group, optsFromConfig(cfg)...)
	})
}

// Broker implements core.Broker for NATS JetStream.
//
// Each Subscribe call creates (or updates) a stream and a durable consumer;
// Ack() acknowledges explicitly and Nack() triggers server-side redelivery.
type Broker struct {
	conn  *nats.Conn
	js    jetstream.JetStream
	group string
	opts  options
	log   *logrus.Entry

	mu     sync.Mutex
	closed bool
	subs   []jetstream.ConsumeContext
}

// New creates a JetStream broker. url is a standard NATS URL (nats://host:port).
func New(url, group string, fns ...Option) (*Broker, error) {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(opts.reconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("gatemux/nats: connect to %q: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("gatemux/nats: init jetstream: %w", err)
	}

	return &Broker{
		conn:  nc,
		js:    js,
		group: group,
		opts:  opts,
		log:   opts.logger.WithField("component", "nats"),
	}, nil
}

// Publish sends a message to the given subject via JetStream.
func (b *Broker) Publish(ctx context.Context, topic string, msg core.Message) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}

	headers := nats.Header{}
	for k, v := range msg.Headers() {
		headers.Set(k, v)
	}
	nm := &nats.Msg{
		Subject: topic,
		Data:    msg.Value(),
		Header:  headers,
	}
	if _, err := b.js.PublishMsg(ctx, nm); err != nil {
		return fmt.Errorf("gatemux/nats: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe consumes the subject through a durable consumer until the context
// is cancelled.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	if b.isClosed() {
		return core.ErrBrokerClosed
	}

	streamName := streamNameFor(topic)
	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{topic},
		Retention: jetstream.LimitsPolicy,
		Storage:   b.opts.storage,
		MaxAge:    b.opts.maxAge,
	})
	if err != nil {
		return fmt.Errorf("gatemux/nats: create stream %q: %w", streamName, err)
	}

	consumerName := b.group
	if consumerName == "" {
		consumerName = "gatemux-" + streamName
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    consumerName,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    b.opts.ackWait,
		MaxDeliver: b.opts.maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("gatemux/nats: create consumer %q: %w", consumerName, err)
	}

	cc, err := cons.Consume(func(jsMsg jetstream.Msg) {
		msg := &jsMessage{msg: jsMsg}
		if err := handler(ctx, msg); err != nil {
			b.log.WithError(err).WithField("subject", topic).Warn("handler failed")
			_ = jsMsg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("gatemux/nats: start consume on %q: %w", consumerName, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, cc)
	b.mu.Unlock()

	<-ctx.Done()
	cc.Stop()
	return nil
}

// Close stops all consumers and closes the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, s := range b.subs {
		s.Stop()
	}
	b.conn.Close()
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// streamNameFor converts a subject to a valid stream name.
func streamNameFor(topic string) string {
	buf := make([]byte, len(topic))
	for i := 0; i < len(topic); i++ {
		c := topic[i]
		if c == '.' || c == '*' || c == '>' {
			buf[i] = '-'
		} else {
			buf[i] = c
		}
	}
	return string(buf)
}
