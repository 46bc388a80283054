package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/gatemux/message"
)

func inboundMsg(t *testing.T, id string) *message.UserMessage {
	t.Helper()
	msg, err := message.NewUserMessage(message.UserMessage{
		MessageID:     id,
		ToAddr:        "+12345",
		FromAddr:      "+54321",
		Content:       "hello",
		TransportName: "sphex",
	})
	require.NoError(t, err)
	return msg
}

func TestDedupFirstDeliveryPasses(t *testing.T) {
	stage := NewDedup(DedupConfig{Store: testStore(t)})
	ctx := context.Background()
	require.NoError(t, stage.Setup(ctx))

	out, err := stage.ProcessInbound(ctx, inboundMsg(t, "abc123"), "sphex")
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestDedupDuplicateDropped(t *testing.T) {
	stage := NewDedup(DedupConfig{Store: testStore(t)})
	ctx := context.Background()
	require.NoError(t, stage.Setup(ctx))

	_, err := stage.ProcessInbound(ctx, inboundMsg(t, "abc123"), "sphex")
	require.NoError(t, err)

	out, err := stage.ProcessInbound(ctx, inboundMsg(t, "abc123"), "sphex")
	require.NoError(t, err, "a duplicate is dropped, not failed")
	assert.Nil(t, out)

	// Distinct ids still pass.
	out, err = stage.ProcessInbound(ctx, inboundMsg(t, "def456"), "sphex")
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestDedupWindowExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client)
	t.Cleanup(func() { _ = store.Close() })

	stage := NewDedup(DedupConfig{Store: store, TTL: time.Minute})
	ctx := context.Background()
	require.NoError(t, stage.Setup(ctx))

	_, err := stage.ProcessInbound(ctx, inboundMsg(t, "abc123"), "sphex")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	out, err := stage.ProcessInbound(ctx, inboundMsg(t, "abc123"), "sphex")
	require.NoError(t, err)
	assert.NotNil(t, out, "the marker expires with the window")
}

func TestDedupSetupRequiresStoreOrRedis(t *testing.T) {
	stage := NewDedup(DedupConfig{})
	require.Error(t, stage.Setup(context.Background()))
}

func TestRedisStoreGetDelete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "v", 0))
	v, err := store.GetDelete(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = store.GetDelete(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreSetNX(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	fresh, err := store.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)
}
