// Package amqp binds the connection supervisor to an AMQP 0.9.1 broker via
// amqp091-go. A Client is a supervised, reconnecting connection: it survives
// network failures, replays its topology after every reconnect, and exposes
// a combined readiness signal ("socket open AND handshake complete") to
// registered connect callbacks.
package amqp

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/broker"
	"github.com/miladsoleymani/gatemux/core"
)

func init() {
	broker.Register("amqp", func(cfg broker.Config) (core.Broker, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("gatemux/amqp: at least one broker URI is required")
		}
		uri, err := amqp.ParseURI(cfg.Brokers[0])
		if err != nil {
			return nil, fmt.Errorf("gatemux/amqp: parse uri: %w", err)
		}
		ep := core.Endpoint{
			Host:     uri.Host,
			Port:     uri.Port,
			Username: uri.Username,
			Password: uri.Password,
			VHost:    uri.Vhost,
		}
		c := NewClient(ep, optsFromConfig(cfg)...)
		if err := c.Start(); err != nil {
			return nil, err
		}
		return c, nil
	})
}

// Client implements core.Broker over a supervised AMQP connection.
//
// Design decisions:
//   - One connection, one channel per Client; the supervisor owns the
//     connection lifecycle and the client rebinds on every cycle.
//   - Manual ack mode; consumers call Ack() or Nack() explicitly.
//   - Durable queues by default.
//   - Subscribe survives reconnects: it waits for readiness, redeclares its
//     queue, and resumes consuming after every connection loss.
type Client struct {
	endpoint core.Endpoint
	opts     options
	sup      *core.Supervisor
	log      *logrus.Entry

	mu            sync.Mutex
	conn          *amqp.Connection
	ch            *amqp.Channel
	ready         *core.ReadySignal
	connectCbs    []func(*amqp.Channel)
	disconnectCbs []func(error)
}

// NewClient creates a supervised client for the endpoint. No connection is
// attempted until Start.
func NewClient(ep core.Endpoint, fns ...Option) *Client {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	c := &Client{
		endpoint: ep,
		opts:     opts,
		ready:    core.NewReadySignal(),
		log: opts.logger.WithFields(logrus.Fields{
			"component": "amqp",
			"endpoint":  ep.Addr(),
		}),
	}
	c.sup = core.NewSupervisor(ep, c.dial, opts.policy, core.Callbacks{
		OnConnected:    c.handleConnected,
		OnDisconnected: c.handleDisconnected,
	})
	c.sup.SetLogger(opts.logger)
	return c
}

// Start begins connecting. Idempotent.
func (c *Client) Start() error { return c.sup.Start() }

// Stop permanently tears down the connection and halts reconnection.
func (c *Client) Stop() { c.sup.Stop() }

// Close implements core.Broker by stopping the supervisor.
func (c *Client) Close() error {
	c.Stop()
	return nil
}

// State exposes the supervisor's lifecycle state.
func (c *Client) State() core.SupervisorState { return c.sup.State() }

// OnConnect registers a callback invoked with the live channel on every
// connect cycle, once the broker handshake has completed. If the client is
// already ready when the callback is registered (the network may be faster
// than local bookkeeping), the callback fires immediately.
func (c *Client) OnConnect(fn func(*amqp.Channel)) {
	c.mu.Lock()
	c.connectCbs = append(c.connectCbs, fn)
	ch := c.ch
	resolved := c.ready.Resolved()
	c.mu.Unlock()
	if resolved && ch != nil {
		fn(ch)
	}
}

// OnDisconnect registers a callback invoked exactly once per disconnect,
// with the reason, before any reconnect attempt begins.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.disconnectCbs = append(c.disconnectCbs, fn)
	c.mu.Unlock()
}

// Ready returns the readiness signal for the current connect cycle.
func (c *Client) Ready() *core.ReadySignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// dial is the supervisor's ConnectFunc: transport dial plus AMQP handshake.
func (c *Client) dial(ctx context.Context, ep core.Endpoint) (core.Conn, error) {
	uri := amqp.URI{
		Scheme:   "amqp",
		Host:     ep.Host,
		Port:     ep.Port,
		Username: ep.Username,
		Password: ep.Password,
		Vhost:    ep.VHost,
	}
	conn, err := amqp.DialConfig(uri.String(), amqp.Config{
		Dial: amqp.DefaultDial(c.opts.dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("gatemux/amqp: dial %s: %w", ep.Addr(), err)
	}
	return newSupConn(conn), nil
}

// handleConnected completes the cycle: channel open, prefetch, exchange
// declaration, then readiness resolution and connect callbacks.
func (c *Client) handleConnected(conn core.Conn) {
	sc := conn.(*supConn)
	ch, err := sc.conn.Channel()
	if err != nil {
		c.log.WithError(err).Error("opening channel")
		_ = conn.Close()
		return
	}
	if err := c.setupChannel(ch); err != nil {
		_ = conn.Close()
		return
	}
	c.bindChannel(sc.conn, ch)
}

func (c *Client) setupChannel(ch *amqp.Channel) error {
	if err := ch.Qos(c.opts.prefetchCount, 0, false); err != nil {
		c.log.WithError(err).Error("setting qos")
		return err
	}
	if c.opts.exchange != "" {
		err := ch.ExchangeDeclare(
			c.opts.exchange,
			c.opts.exchangeType,
			c.opts.durable,
			false, // autoDelete
			false, // internal
			false, // noWait
			nil,
		)
		if err != nil {
			c.log.WithError(err).Error("declaring exchange")
			return err
		}
	}
	return nil
}

// bindChannel publishes the live channel and fires connect callbacks.
// Readiness resolution and the callback snapshot happen in the same critical
// section OnConnect uses, so a registration either lands in the snapshot or
// observes a resolved signal and fires immediately. Without that, a callback
// registered between the snapshot and resolution would be lost for the cycle.
func (c *Client) bindChannel(conn *amqp.Connection, ch *amqp.Channel) {
	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.ready.Resolve()
	cbs := make([]func(*amqp.Channel), len(c.connectCbs))
	copy(cbs, c.connectCbs)
	c.mu.Unlock()

	for _, fn := range cbs {
		fn(ch)
	}
}

// handleDisconnected invalidates the handle and notifies observers. A fresh
// readiness signal is armed for the next cycle.
func (c *Client) handleDisconnected(reason error) {
	c.mu.Lock()
	c.conn = nil
	c.ch = nil
	c.ready = core.NewReadySignal()
	cbs := make([]func(error), len(c.disconnectCbs))
	copy(cbs, c.disconnectCbs)
	c.mu.Unlock()

	for _, fn := range cbs {
		fn(reason)
	}
}

func (c *Client) channel() *amqp.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch
}

// Publish sends a message to the given routing key on the configured
// exchange (default exchange when none is set).
func (c *Client) Publish(ctx context.Context, topic string, msg core.Message) error {
	ch := c.channel()
	if ch == nil {
		return core.ErrNotConnected
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers() {
		headers[k] = v
	}
	deliveryMode := amqp.Transient
	if c.opts.persistent {
		deliveryMode = amqp.Persistent
	}
	err := ch.PublishWithContext(ctx, c.opts.exchange, topic, false, false, amqp.Publishing{
		Body:         msg.Value(),
		Headers:      headers,
		DeliveryMode: deliveryMode,
		ContentType:  "application/json",
	})
	if err != nil {
		return fmt.Errorf("gatemux/amqp: publish to %q: %w", topic, err)
	}
	return nil
}

// Subscribe declares a durable queue for the topic and consumes until the
// context is cancelled. Connection losses are absorbed: the consumer waits
// for the next ready cycle and redeclares its queue.
func (c *Client) Subscribe(ctx context.Context, topic string, handler core.Handler) error {
	for {
		ready := c.Ready()
		select {
		case <-ctx.Done():
			return nil
		case <-ready.Done():
		}

		ch := c.channel()
		if ch == nil {
			// Lost the connection between readiness and here.
			if !waitRetry(ctx) {
				return nil
			}
			continue
		}

		deliveries, err := c.openConsumer(ch, topic)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.WithError(err).WithField("topic", topic).Warn("consumer setup failed")
			if !waitRetry(ctx) {
				return nil
			}
			continue
		}

		if done := c.consumeLoop(ctx, deliveries, handler); done {
			return nil
		}
		// Deliveries channel closed: connection lost, go around.
	}
}

func (c *Client) openConsumer(ch *amqp.Channel, topic string) (<-chan amqp.Delivery, error) {
	q, err := ch.QueueDeclare(
		topic,
		c.opts.durable,
		c.opts.autoDelete,
		c.opts.exclusive,
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("gatemux/amqp: declare queue %q: %w", topic, err)
	}
	if c.opts.exchange != "" {
		if err := ch.QueueBind(q.Name, topic, c.opts.exchange, false, nil); err != nil {
			return nil, fmt.Errorf("gatemux/amqp: bind queue %q: %w", q.Name, err)
		}
	}
	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag (auto-generated)
		false, // autoAck — manual ack mode
		c.opts.exclusive,
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("gatemux/amqp: consume %q: %w", q.Name, err)
	}
	return deliveries, nil
}

// consumeLoop processes deliveries until context cancellation (returns true)
// or channel close (returns false).
func (c *Client) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, handler core.Handler) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case d, ok := <-deliveries:
			if !ok {
				return false
			}
			msg := &delivery{d: d, requeue: c.opts.requeueOnNack}
			if err := handler(ctx, msg); err != nil {
				_ = d.Nack(false, c.opts.requeueOnNack)
			}
		}
	}
}

// supConn adapts an amqp connection to the supervisor's Conn contract,
// bridging NotifyClose into the drop signal.
type supConn struct {
	conn   *amqp.Connection
	closed chan error
}

func newSupConn(conn *amqp.Connection) *supConn {
	sc := &supConn{conn: conn, closed: make(chan error, 1)}
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		amqpErr, _ := <-notify
		if amqpErr != nil {
			sc.closed <- amqpErr
		} else {
			sc.closed <- amqp.ErrClosed
		}
	}()
	return sc
}

func (sc *supConn) Closed() <-chan error { return sc.closed }
func (sc *supConn) Close() error         { return sc.conn.Close() }

// waitRetry pauses briefly before retrying consumer setup. Reports false if
// the context was cancelled.
func waitRetry(ctx context.Context) bool {
	t := retryTimer()
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
