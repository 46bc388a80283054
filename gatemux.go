// Package gatemux is a worker framework for building message-driven gateways
// that bridge carrier APIs (SMS, USSD) and a message broker. It provides a
// supervised broker connection with reconnect and backoff, typed message
// envelopes with a fixed routing convention, a middleware pipeline for
// cross-cutting message logic, and a transport worker that composes them.
//
// The package re-exports the most used types so callers can write:
//
//	w, err := gatemux.NewTransport(cfg, b, pipe, sender)
//	w.Start(ctx)
package gatemux

import (
	"github.com/miladsoleymani/gatemux/core"
	"github.com/miladsoleymani/gatemux/message"
	"github.com/miladsoleymani/gatemux/pipeline"
	"github.com/miladsoleymani/gatemux/transport"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Broker          = core.Broker
	Message         = core.Message
	Endpoint        = core.Endpoint
	ReconnectPolicy = core.ReconnectPolicy
	Supervisor      = core.Supervisor

	UserMessage    = message.UserMessage
	Event          = message.Event
	FailureMessage = message.FailureMessage
	RoutingKeys    = message.RoutingKeys

	Pipeline = pipeline.Pipeline
	Stage    = pipeline.Stage

	Transport       = transport.Worker
	TransportConfig = transport.Config
	Sender          = transport.Sender
	SenderFunc      = transport.SenderFunc
)

// NewPipeline builds a middleware pipeline from stages in order.
func NewPipeline(stages ...pipeline.Stage) *Pipeline {
	return pipeline.New(stages...)
}

// NewTransport builds a transport worker for one connector.
func NewTransport(cfg TransportConfig, b Broker, pipe *Pipeline, sender Sender) (*Transport, error) {
	return transport.New(cfg, b, pipe, sender)
}

// KeysFor computes the routing keys for a transport name.
func KeysFor(transportName string) RoutingKeys {
	return message.KeysFor(transportName)
}
