package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/miladsoleymani/gatemux/message"
)

const (
	sessionCreatedSuffix = ":session_created"
	billingNamespace     = "billing"
	sessionLengthKey     = "session_length"
)

// SessionLength measures the wall-clock length of user sessions. On a
// session-new message it records a start timestamp under the user's address;
// on session-close it atomically reads and deletes that timestamp and
// attaches the elapsed seconds to helper_metadata under the billing
// namespace.
//
// A close with no matching start (lost to restart or TTL expiry) passes
// through unannotated rather than failing the message.
type SessionLength struct {
	store Store
	redis *RedisConfig
	ttl   time.Duration
	now   func() time.Time
}

// SessionLengthConfig configures the session length stage.
type SessionLengthConfig struct {
	// Store is a pre-built store the stage takes ownership of. If nil,
	// Redis must be set and the stage connects during Setup.
	Store Store

	// Redis locates the state database when Store is nil.
	Redis *RedisConfig

	// TTL bounds how long a dangling session start is kept. Defaults to
	// 10 minutes.
	TTL time.Duration
}

// NewSessionLength builds the stage. The stage owns its store: it is
// connected in Setup (unless injected) and closed in Teardown.
func NewSessionLength(cfg SessionLengthConfig) *SessionLength {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SessionLength{store: cfg.Store, redis: cfg.Redis, ttl: ttl, now: time.Now}
}

func (s *SessionLength) Name() string { return "session_length" }

func (s *SessionLength) Setup(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	if s.redis == nil {
		return errors.New("gatemux/pipeline: session_length requires a store")
	}
	store, err := NewRedisStore(*s.redis)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

func (s *SessionLength) Teardown(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

// ProcessInbound tracks sessions keyed by the sender's address.
func (s *SessionLength) ProcessInbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error) {
	return s.process(ctx, msg, msg.FromAddr)
}

// ProcessOutbound tracks sessions keyed by the recipient's address.
func (s *SessionLength) ProcessOutbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error) {
	return s.process(ctx, msg, msg.ToAddr)
}

func (s *SessionLength) process(ctx context.Context, msg *message.UserMessage, addr string) (*message.UserMessage, error) {
	key := addr + sessionCreatedSuffix
	switch msg.SessionEvent {
	case message.SessionNew:
		created := strconv.FormatFloat(unixSeconds(s.now()), 'f', -1, 64)
		if err := s.store.Set(ctx, key, created, s.ttl); err != nil {
			return nil, err
		}
	case message.SessionClose:
		created, err := s.store.GetDelete(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return msg, nil
		}
		if err != nil {
			return nil, err
		}
		start, err := strconv.ParseFloat(created, 64)
		if err != nil {
			return msg, nil
		}
		elapsed := unixSeconds(s.now()) - start
		if elapsed < 0 {
			elapsed = 0
		}
		msg.HelperNamespace(billingNamespace)[sessionLengthKey] = elapsed
	}
	return msg, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
