// Package heartbeat publishes periodic liveness messages on the well-known
// heartbeat topic, using the same publisher contract as every transport.
package heartbeat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/gatemux/core"
	"github.com/miladsoleymani/gatemux/message"
)

// DefaultPeriod is the interval between heartbeats.
const DefaultPeriod = 10 * time.Second

// AttrsFunc supplies the attributes published on each beat: host, process,
// and queue-depth facts gathered by the caller. It is invoked once per tick.
type AttrsFunc func() map[string]any

// Config configures a heartbeat publisher.
type Config struct {
	// Period between beats. The first beat fires one full period after
	// Start, not immediately. Defaults to DefaultPeriod.
	Period time.Duration

	Logger *logrus.Logger
}

// Publisher emits a self-describing message every period. A failed publish
// is logged and does not stop the periodic task.
type Publisher struct {
	period time.Duration
	attrs  AttrsFunc
	log    *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a publisher. attrs must not be nil.
func New(attrs AttrsFunc, cfg Config) *Publisher {
	period := cfg.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Publisher{
		period: period,
		attrs:  attrs,
		log:    logger.WithField("component", "heartbeat"),
	}
}

// Start binds the publisher to a live connection and begins the periodic
// task. Calling Start on a running publisher restarts its timer.
//
// Beats are addressed to message.HeartbeatTopic; which exchange they land on
// is pub's concern. AMQP callers wanting the durable health exchange pass a
// client configured with WithExchange(message.HealthExchange, "direct").
func (p *Publisher) Start(pub core.Publisher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, pub, p.done)
}

// Stop cancels the periodic task. Calling it when already stopped is a no-op.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Publisher) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *Publisher) run(ctx context.Context, pub core.Publisher, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.beat(ctx, pub)
		}
	}
}

// beat gathers attributes and publishes them. Errors are logged; the next
// tick still fires on schedule.
func (p *Publisher) beat(ctx context.Context, pub core.Publisher) {
	attrs := p.attrs()
	data, err := json.Marshal(attrs)
	if err != nil {
		p.log.WithError(err).Error("encoding heartbeat")
		return
	}
	msg := &core.Raw{K: []byte(message.HeartbeatTopic), V: data}
	if err := pub.Publish(ctx, message.HeartbeatTopic, msg); err != nil {
		p.log.WithError(err).Error("publishing heartbeat")
		return
	}
	p.log.WithField("attrs", len(attrs)).Debug("heartbeat sent")
}
