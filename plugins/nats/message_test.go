package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMsg stubs jetstream.Msg so settlement behavior is testable without a
// server.
type fakeMsg struct {
	acks int
	naks int
}

func (f *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: 4}, nil
}
func (f *fakeMsg) Data() []byte                     { return []byte(`{}`) }
func (f *fakeMsg) Headers() nats.Header             { return nats.Header{"trace": {"t-1"}} }
func (f *fakeMsg) Subject() string                  { return "sphex.outbound" }
func (f *fakeMsg) Reply() string                    { return "" }
func (f *fakeMsg) Ack() error                       { f.acks++; return nil }
func (f *fakeMsg) DoubleAck(context.Context) error  { f.acks++; return nil }
func (f *fakeMsg) Nak() error                       { f.naks++; return nil }
func (f *fakeMsg) NakWithDelay(time.Duration) error { f.naks++; return nil }
func (f *fakeMsg) InProgress() error                { return nil }
func (f *fakeMsg) Term() error                      { return nil }
func (f *fakeMsg) TermWithReason(string) error      { return nil }

func TestJSMessageSettlesOnce(t *testing.T) {
	f := &fakeMsg{}
	m := &jsMessage{msg: f}

	require.NoError(t, m.Ack())
	require.NoError(t, m.Ack())
	assert.Equal(t, 1, f.acks, "the server rejects double acknowledgment")

	require.NoError(t, m.Nack())
	assert.Zero(t, f.naks, "a settled delivery cannot be nacked afterwards")
}

func TestJSMessageNackWinsOverLaterAck(t *testing.T) {
	f := &fakeMsg{}
	m := &jsMessage{msg: f}

	require.NoError(t, m.Nack())
	require.NoError(t, m.Ack())
	assert.Equal(t, 1, f.naks)
	assert.Zero(t, f.acks)
}

func TestJSMessageHeadersIncludeDeliveryAttempt(t *testing.T) {
	m := &jsMessage{msg: &fakeMsg{}}
	h := m.Headers()
	assert.Equal(t, "t-1", h["trace"])
	assert.Equal(t, "4", h["Nats-Delivery-Attempt"])
}
