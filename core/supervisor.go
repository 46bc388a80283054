package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Endpoint is the address of the broker. Immutable for the lifetime of a
// worker.
type Endpoint struct {
	Host     string
	Port     int
	Username string
	Password string
	VHost    string
}

// Addr returns the host:port pair.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Conn is an opaque live connection handle produced by a ConnectFunc.
// It is owned by the supervisor while connected and never reused across
// reconnects.
type Conn interface {
	// Closed yields at most one error when the connection drops.
	Closed() <-chan error
	Close() error
}

// ConnectFunc dials the endpoint and produces a connection handle.
// The supervisor has no knowledge of the underlying protocol.
type ConnectFunc func(ctx context.Context, ep Endpoint) (Conn, error)

// SupervisorState is the observable connection lifecycle state.
type SupervisorState int32

const (
	StateIdle SupervisorState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

func (s SupervisorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Callbacks are invoked by the supervisor on connection events. Both are
// called from the supervisor's goroutine and should not block for long.
type Callbacks struct {
	OnConnected    func(Conn)
	OnDisconnected func(error)
}

// Supervisor keeps a connection alive across network failures using
// reconnection with exponential backoff. Connection-establishment errors and
// mid-session drops both route into the same reconnect path; the only fatal
// event is an explicit Stop.
type Supervisor struct {
	endpoint Endpoint
	connect  ConnectFunc
	policy   ReconnectPolicy
	cbs      Callbacks
	log      *logrus.Entry

	state atomic.Int32

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSupervisor creates a supervisor for the given endpoint. It does not
// connect until Start is called.
func NewSupervisor(ep Endpoint, connect ConnectFunc, policy ReconnectPolicy, cbs Callbacks) *Supervisor {
	return &Supervisor{
		endpoint: ep,
		connect:  connect,
		policy:   policy,
		cbs:      cbs,
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"component": "supervisor",
			"endpoint":  ep.Addr(),
		}),
	}
}

// SetLogger replaces the logger. Must be called before Start.
func (s *Supervisor) SetLogger(l *logrus.Logger) {
	s.log = l.WithFields(logrus.Fields{
		"component": "supervisor",
		"endpoint":  s.endpoint.Addr(),
	})
}

// State returns the current lifecycle state.
func (s *Supervisor) State() SupervisorState {
	return SupervisorState(s.state.Load())
}

func (s *Supervisor) setState(st SupervisorState) {
	s.state.Store(int32(st))
}

// Start begins attempting connections. Concurrent and repeated calls are
// idempotent; calling Start on a stopped supervisor returns
// ErrSupervisorStopped.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSupervisorStopped
	}
	if s.started {
		return nil
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	return nil
}

// Stop permanently halts reconnection attempts and tears down any live
// connection. It is effective from any state, cancels a pending reconnect
// timer, and blocks until the supervisor goroutine has exited. Further calls
// are no-ops.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.setState(StateStopped)
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	bo := newBackoff(s.policy)

	for {
		s.setState(StateConnecting)
		conn, err := s.connect(ctx, s.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := bo.Next()
			s.log.WithError(err).WithField("retry_in", delay).Warn("connection attempt failed")
			s.setState(StateReconnecting)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		bo.Reset()
		s.setState(StateConnected)
		s.log.Info("connected")
		if s.cbs.OnConnected != nil {
			s.cbs.OnConnected(conn)
		}

		select {
		case reason := <-conn.Closed():
			s.log.WithError(reason).Warn("connection lost")
			if s.cbs.OnDisconnected != nil {
				s.cbs.OnDisconnected(reason)
			}
			if ctx.Err() != nil {
				return
			}
			delay := bo.Next()
			s.setState(StateReconnecting)
			if !sleep(ctx, delay) {
				return
			}
		case <-ctx.Done():
			_ = conn.Close()
			if s.cbs.OnDisconnected != nil {
				s.cbs.OnDisconnected(ErrSupervisorStopped)
			}
			return
		}
	}
}

// sleep waits for d or until the context is cancelled. It reports whether the
// full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
