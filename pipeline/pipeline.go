// Package pipeline provides the middleware pipeline applied to every message
// flowing through a connector. Stages are named, ordered, and may transform,
// annotate, or drop messages, and may hold persisted cross-message state.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/message"
)

// Stage is a named middleware unit. Setup and Teardown are scoped to the
// pipeline's lifetime: Setup runs once at worker start, Teardown once at
// worker stop. A stage that acquired resources in Setup must release them in
// Teardown.
//
// A stage additionally implements any of InboundProcessor, OutboundProcessor,
// and EventProcessor for the message directions it observes.
type Stage interface {
	Name() string
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// InboundProcessor handles carrier-originated user messages. Returning a nil
// message with a nil error drops the message: processing stops and no error
// is raised.
type InboundProcessor interface {
	ProcessInbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error)
}

// OutboundProcessor handles user messages on their way to the carrier.
// Drop semantics match InboundProcessor.
type OutboundProcessor interface {
	ProcessOutbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error)
}

// EventProcessor handles transport events. Drop semantics match
// InboundProcessor.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev *message.Event, connector string) (*message.Event, error)
}

// Pipeline applies stages in declared order. The order is uniform across all
// directions (inbound, outbound, event) and is part of the worker's
// configuration.
type Pipeline struct {
	stages []Stage
	log    *logrus.Entry
	setUp  int
}

// New builds a pipeline from stages in the order given.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{
		stages: stages,
		log:    logrus.StandardLogger().WithField("component", "pipeline"),
	}
}

// SetLogger replaces the logger. Must be called before Setup.
func (p *Pipeline) SetLogger(l *logrus.Logger) {
	p.log = l.WithField("component", "pipeline")
}

// Setup initializes each stage in order. If a later stage fails, the stages
// already set up are torn down before the error is returned, so no stage
// leaks resources.
func (p *Pipeline) Setup(ctx context.Context) error {
	for i, s := range p.stages {
		if err := s.Setup(ctx); err != nil {
			p.setUp = i
			if terr := p.Teardown(ctx); terr != nil {
				p.log.WithError(terr).Warn("teardown after failed setup")
			}
			return fmt.Errorf("gatemux/pipeline: setup stage %q: %w", s.Name(), err)
		}
	}
	p.setUp = len(p.stages)
	return nil
}

// Teardown tears down every stage that completed Setup, in declared order.
// All stages are attempted even if some fail; errors are joined.
func (p *Pipeline) Teardown(ctx context.Context) error {
	var errs []error
	for _, s := range p.stages[:p.setUp] {
		if err := s.Teardown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("gatemux/pipeline: teardown stage %q: %w", s.Name(), err))
		}
	}
	p.setUp = 0
	return errors.Join(errs...)
}

// ProcessInbound runs msg through every inbound-handling stage in order.
// A nil result with a nil error means a stage dropped the message.
func (p *Pipeline) ProcessInbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error) {
	for _, s := range p.stages {
		h, ok := s.(InboundProcessor)
		if !ok {
			continue
		}
		next, err := h.ProcessInbound(ctx, msg, connector)
		if err != nil {
			return nil, fmt.Errorf("gatemux/pipeline: stage %q inbound: %w", s.Name(), err)
		}
		if next == nil {
			p.log.WithFields(logrus.Fields{
				"stage":      s.Name(),
				"message_id": msg.MessageID,
			}).Debug("inbound message dropped")
			return nil, nil
		}
		msg = next
	}
	return msg, nil
}

// ProcessOutbound runs msg through every outbound-handling stage in order.
func (p *Pipeline) ProcessOutbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error) {
	for _, s := range p.stages {
		h, ok := s.(OutboundProcessor)
		if !ok {
			continue
		}
		next, err := h.ProcessOutbound(ctx, msg, connector)
		if err != nil {
			return nil, fmt.Errorf("gatemux/pipeline: stage %q outbound: %w", s.Name(), err)
		}
		if next == nil {
			p.log.WithFields(logrus.Fields{
				"stage":      s.Name(),
				"message_id": msg.MessageID,
			}).Debug("outbound message dropped")
			return nil, nil
		}
		msg = next
	}
	return msg, nil
}

// ProcessEvent runs ev through every event-handling stage in order.
func (p *Pipeline) ProcessEvent(ctx context.Context, ev *message.Event, connector string) (*message.Event, error) {
	for _, s := range p.stages {
		h, ok := s.(EventProcessor)
		if !ok {
			continue
		}
		next, err := h.ProcessEvent(ctx, ev, connector)
		if err != nil {
			return nil, fmt.Errorf("gatemux/pipeline: stage %q event: %w", s.Name(), err)
		}
		if next == nil {
			p.log.WithFields(logrus.Fields{
				"stage":    s.Name(),
				"event_id": ev.EventID,
			}).Debug("event dropped")
			return nil, nil
		}
		ev = next
	}
	return ev, nil
}
