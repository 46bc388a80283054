// Package transport implements the transport worker: the composition root
// that binds a broker connection, the middleware pipeline, and a
// carrier-specific send operation to the routing convention of one connector.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/core"
	"github.com/miladsoleymani/gatemux/message"
	"github.com/miladsoleymani/gatemux/pipeline"
)

// Sender is the carrier-specific send operation, supplied per transport.
// On success it returns the carrier-reported message id. Errors should be
// tagged with TemporaryFailure or PermanentFailure where the carrier
// semantics are known; untagged errors are classified by the worker.
type Sender interface {
	Send(ctx context.Context, msg *message.UserMessage) (string, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg *message.UserMessage) (string, error)

func (f SenderFunc) Send(ctx context.Context, msg *message.UserMessage) (string, error) {
	return f(ctx, msg)
}

// Config configures a transport worker.
type Config struct {
	// TransportName is the connector name; it fixes the four routing keys.
	TransportName string

	// TransportType describes the channel (for example "sms" or "ussd") and
	// is stamped onto inbound messages that omit it.
	TransportType string

	// SendTimeout bounds a single carrier send. A stuck send becomes a
	// temporary failure. Defaults to 30 seconds.
	SendTimeout time.Duration

	Logger *logrus.Logger
}

// Worker consumes outbound user messages for one connector, runs them
// through the pipeline, hands them to the carrier, and publishes acks,
// nacks, and failure records back onto the broker.
//
// Messages from the outbound queue are processed to completion one at a
// time; ack/nack order across different connectors is not guaranteed.
type Worker struct {
	cfg    Config
	broker core.Broker
	pipe   *pipeline.Pipeline
	sender Sender
	keys   message.RoutingKeys
	log    *logrus.Entry

	mu          sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	consumeDone chan struct{}
}

// New builds a worker. The broker connection must be live by the time Start
// is called.
func New(cfg Config, b core.Broker, pipe *pipeline.Pipeline, sender Sender) (*Worker, error) {
	if cfg.TransportName == "" {
		return nil, errors.New("gatemux/transport: transport name is required")
	}
	if b == nil {
		return nil, errors.New("gatemux/transport: broker is required")
	}
	if sender == nil {
		return nil, errors.New("gatemux/transport: sender is required")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if pipe == nil {
		pipe = pipeline.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	} else {
		pipe.SetLogger(logger)
	}
	return &Worker{
		cfg:    cfg,
		broker: b,
		pipe:   pipe,
		sender: sender,
		keys:   message.KeysFor(cfg.TransportName),
		log: logger.WithFields(logrus.Fields{
			"component":      "transport",
			"transport_name": cfg.TransportName,
		}),
	}, nil
}

// TransportName returns the connector name.
func (w *Worker) TransportName() string { return w.cfg.TransportName }

// RoutingKeys exposes the declared routing keys so integration tests can
// assert wiring without sending traffic.
func (w *Worker) RoutingKeys() message.RoutingKeys { return w.keys }

// Start runs pipeline setup and begins consuming from the outbound topic.
// It returns once the consumer is running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return errors.New("gatemux/transport: worker stopped")
	}
	if w.started {
		return nil
	}
	if err := w.pipe.Setup(ctx); err != nil {
		return err
	}
	w.started = true

	consumeCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.consumeDone = make(chan struct{})
	go func() {
		defer close(w.consumeDone)
		err := w.broker.Subscribe(consumeCtx, w.keys.Outbound, w.handleOutbound)
		if err != nil && consumeCtx.Err() == nil {
			w.log.WithError(err).Error("outbound consumer exited")
		}
	}()
	w.log.WithField("topic", w.keys.Outbound).Info("transport started")
	return nil
}

// Stop halts consumption and tears down the pipeline. No new messages are
// dequeued after Stop begins; an in-flight send completes first. Teardown
// runs exactly once regardless of how many times Stop is called.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	cancel := w.cancel
	done := w.consumeDone
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if !started {
		return nil
	}
	err := w.pipe.Teardown(ctx)
	w.log.Info("transport stopped")
	return err
}

// handleOutbound processes one delivery from the outbound queue: decode,
// pipeline, carrier send, then exactly one ack or exactly one failure record
// plus nack.
func (w *Worker) handleOutbound(ctx context.Context, raw core.Message) error {
	msg, err := message.DecodeUserMessage(raw.Value())
	if err != nil {
		// Undecodable payloads cannot be wrapped in a failure record;
		// drop them rather than loop on redelivery.
		w.log.WithError(err).Error("discarding malformed outbound payload")
		return raw.Ack()
	}

	// In-flight work survives Stop; the timeout still bounds the send.
	// Result publishing is detached so a timed-out send can still report
	// its failure.
	pubCtx := context.WithoutCancel(ctx)
	sendCtx, cancel := context.WithTimeout(pubCtx, w.cfg.SendTimeout)
	defer cancel()

	processed, err := w.pipe.ProcessOutbound(sendCtx, msg, w.cfg.TransportName)
	if err != nil {
		// A stage failure aborts this message only.
		w.failMessage(pubCtx, msg, message.FailurePermanent, err.Error())
		return raw.Ack()
	}
	if processed == nil {
		return raw.Ack()
	}

	sentID, err := w.sender.Send(sendCtx, processed)
	if err != nil {
		w.failMessage(pubCtx, processed, classify(err), err.Error())
		return raw.Ack()
	}

	ack, err := message.NewAck(processed.MessageID, sentID, w.cfg.TransportName)
	if err != nil {
		w.log.WithError(err).Error("building ack event")
		return raw.Ack()
	}
	if err := w.PublishEvent(pubCtx, ack); err != nil {
		w.log.WithError(err).WithField("message_id", processed.MessageID).
			Error("publishing ack event")
	}
	return raw.Ack()
}

// failMessage publishes the failure record and its nack event. Every
// undeliverable message produces exactly one of each, preserving the original
// payload for inspection or replay.
func (w *Worker) failMessage(ctx context.Context, msg *message.UserMessage, code message.FailureCode, reason string) {
	w.log.WithFields(logrus.Fields{
		"message_id":   msg.MessageID,
		"failure_code": code,
	}).Warn(reason)

	failure := message.NewFailure(msg, code, reason)
	data, err := failure.Encode()
	if err != nil {
		w.log.WithError(err).Error("encoding failure record")
		return
	}
	if err := w.broker.Publish(ctx, w.keys.Failures, &core.Raw{K: []byte(w.keys.Failures), V: data}); err != nil {
		w.log.WithError(err).Error("publishing failure record")
	}

	nack, err := message.NewNack(msg.MessageID, reason, w.cfg.TransportName)
	if err != nil {
		w.log.WithError(err).Error("building nack event")
		return
	}
	if err := w.PublishEvent(ctx, nack); err != nil {
		w.log.WithError(err).Error("publishing nack event")
	}
}

// PublishInbound runs a carrier-originated user message through the inbound
// pipeline stages and publishes it to the inbound topic unless dropped.
func (w *Worker) PublishInbound(ctx context.Context, msg *message.UserMessage) error {
	if msg.TransportName == "" {
		msg.TransportName = w.cfg.TransportName
	}
	if msg.TransportType == "" {
		msg.TransportType = w.cfg.TransportType
	}
	filled, err := message.NewUserMessage(*msg)
	if err != nil {
		return err
	}
	processed, err := w.pipe.ProcessInbound(ctx, filled, w.cfg.TransportName)
	if err != nil {
		return err
	}
	if processed == nil {
		return nil
	}
	data, err := processed.Encode()
	if err != nil {
		return err
	}
	if err := w.broker.Publish(ctx, w.keys.Inbound, &core.Raw{K: []byte(w.keys.Inbound), V: data}); err != nil {
		return fmt.Errorf("gatemux/transport: publish inbound: %w", err)
	}
	return nil
}

// PublishEvent runs an event through the event pipeline stages and publishes
// it to the event topic unless dropped.
func (w *Worker) PublishEvent(ctx context.Context, ev *message.Event) error {
	processed, err := w.pipe.ProcessEvent(ctx, ev, w.cfg.TransportName)
	if err != nil {
		return err
	}
	if processed == nil {
		return nil
	}
	data, err := processed.Encode()
	if err != nil {
		return err
	}
	if err := w.broker.Publish(ctx, w.keys.Event, &core.Raw{K: []byte(w.keys.Event), V: data}); err != nil {
		return fmt.Errorf("gatemux/transport: publish event: %w", err)
	}
	return nil
}
