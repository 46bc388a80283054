package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/miladsoleymani/gatemux/message"
)

// Dedup drops messages whose id has already been observed within a TTL
// window. The broker delivers at least once, so duplicates are expected;
// SetNX makes the observed-marker write atomic across concurrently processed
// copies of the same message.
type Dedup struct {
	store Store
	redis *RedisConfig
	ttl   time.Duration
}

// DedupConfig configures the dedup stage.
type DedupConfig struct {
	// Store is a pre-built store the stage takes ownership of. If nil,
	// Redis must be set and the stage connects during Setup.
	Store Store

	// Redis locates the state database when Store is nil.
	Redis *RedisConfig

	// TTL is the window within which a repeated message id is considered a
	// duplicate. Defaults to 1 hour.
	TTL time.Duration
}

// NewDedup builds the stage. The stage owns its store: it is connected in
// Setup (unless injected) and closed in Teardown.
func NewDedup(cfg DedupConfig) *Dedup {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Dedup{store: cfg.Store, redis: cfg.Redis, ttl: ttl}
}

func (d *Dedup) Name() string { return "dedup" }

func (d *Dedup) Setup(ctx context.Context) error {
	if d.store != nil {
		return nil
	}
	if d.redis == nil {
		return errors.New("gatemux/pipeline: dedup requires a store")
	}
	store, err := NewRedisStore(*d.redis)
	if err != nil {
		return err
	}
	d.store = store
	return nil
}

func (d *Dedup) Teardown(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store = nil
	return err
}

// ProcessInbound drops the message if its id was already seen.
func (d *Dedup) ProcessInbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error) {
	fresh, err := d.store.SetNX(ctx, "dedup:"+msg.MessageID, "1", d.ttl)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, nil
	}
	return msg, nil
}
