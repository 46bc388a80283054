package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/gatemux/message"
	"github.com/miladsoleymani/gatemux/pipeline"
)

// recordingStage implements all three direction handlers and records calls.
type recordingStage struct {
	name        string
	calls       *[]string
	setupErr    error
	teardownErr error

	inbound  func(*message.UserMessage) (*message.UserMessage, error)
	outbound func(*message.UserMessage) (*message.UserMessage, error)
	event    func(*message.Event) (*message.Event, error)
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) Setup(ctx context.Context) error {
	*s.calls = append(*s.calls, "setup:"+s.name)
	return s.setupErr
}

func (s *recordingStage) Teardown(ctx context.Context) error {
	*s.calls = append(*s.calls, "teardown:"+s.name)
	return s.teardownErr
}

func (s *recordingStage) ProcessInbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error) {
	*s.calls = append(*s.calls, "in:"+s.name)
	if s.inbound != nil {
		return s.inbound(msg)
	}
	return msg, nil
}

func (s *recordingStage) ProcessOutbound(ctx context.Context, msg *message.UserMessage, connector string) (*message.UserMessage, error) {
	*s.calls = append(*s.calls, "out:"+s.name)
	if s.outbound != nil {
		return s.outbound(msg)
	}
	return msg, nil
}

func (s *recordingStage) ProcessEvent(ctx context.Context, ev *message.Event, connector string) (*message.Event, error) {
	*s.calls = append(*s.calls, "ev:"+s.name)
	if s.event != nil {
		return s.event(ev)
	}
	return ev, nil
}

// bareStage has setup/teardown but observes no message direction.
type bareStage struct {
	calls *[]string
}

func (s *bareStage) Name() string                       { return "bare" }
func (s *bareStage) Setup(ctx context.Context) error    { *s.calls = append(*s.calls, "setup:bare"); return nil }
func (s *bareStage) Teardown(ctx context.Context) error { *s.calls = append(*s.calls, "teardown:bare"); return nil }

func mkUserMessage(t *testing.T) *message.UserMessage {
	t.Helper()
	msg, err := message.NewUserMessage(message.UserMessage{
		ToAddr:        "+12345",
		FromAddr:      "+54321",
		Content:       "hello",
		TransportName: "sphex",
	})
	require.NoError(t, err)
	return msg
}

func TestPipelineUniformOrderAcrossDirections(t *testing.T) {
	var calls []string
	p := pipeline.New(
		&recordingStage{name: "a", calls: &calls},
		&recordingStage{name: "b", calls: &calls},
	)
	ctx := context.Background()
	msg := mkUserMessage(t)

	_, err := p.ProcessInbound(ctx, msg, "sphex")
	require.NoError(t, err)
	_, err = p.ProcessOutbound(ctx, msg, "sphex")
	require.NoError(t, err)
	ev, err := message.NewAck("1", "abc", "sphex")
	require.NoError(t, err)
	_, err = p.ProcessEvent(ctx, ev, "sphex")
	require.NoError(t, err)

	// Declared order is applied uniformly: inbound, outbound and event all
	// run a before b.
	assert.Equal(t, []string{"in:a", "in:b", "out:a", "out:b", "ev:a", "ev:b"}, calls)
}

func TestPipelineStageTransformsMessage(t *testing.T) {
	var calls []string
	p := pipeline.New(&recordingStage{
		name:  "annotate",
		calls: &calls,
		outbound: func(msg *message.UserMessage) (*message.UserMessage, error) {
			msg.HelperNamespace("billing")["tariff"] = "std"
			return msg, nil
		},
	})

	out, err := p.ProcessOutbound(context.Background(), mkUserMessage(t), "sphex")
	require.NoError(t, err)
	assert.Equal(t, "std", out.HelperMetadata["billing"]["tariff"])
}

func TestPipelineDropStopsProcessing(t *testing.T) {
	var calls []string
	p := pipeline.New(
		&recordingStage{
			name:  "dropper",
			calls: &calls,
			inbound: func(msg *message.UserMessage) (*message.UserMessage, error) {
				return nil, nil
			},
		},
		&recordingStage{name: "after", calls: &calls},
	)

	out, err := p.ProcessInbound(context.Background(), mkUserMessage(t), "sphex")
	require.NoError(t, err, "a drop is not an error")
	assert.Nil(t, out)
	assert.Equal(t, []string{"in:dropper"}, calls, "later stages must not run after a drop")
}

func TestPipelineStageErrorNamesStage(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	p := pipeline.New(&recordingStage{
		name:     "broken",
		calls:    &calls,
		outbound: func(msg *message.UserMessage) (*message.UserMessage, error) { return nil, boom },
	})

	_, err := p.ProcessOutbound(context.Background(), mkUserMessage(t), "sphex")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

func TestPipelineSetupRollsBackOnFailure(t *testing.T) {
	var calls []string
	p := pipeline.New(
		&recordingStage{name: "a", calls: &calls},
		&bareStage{calls: &calls},
		&recordingStage{name: "c", calls: &calls, setupErr: errors.New("no store")},
	)

	err := p.Setup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"c"`)
	// Stages a and bare were set up before c failed; both must be torn down.
	assert.Equal(t, []string{"setup:a", "setup:bare", "setup:c", "teardown:a", "teardown:bare"}, calls)
}

func TestPipelineTeardownRunsAllStages(t *testing.T) {
	var calls []string
	p := pipeline.New(
		&recordingStage{name: "a", calls: &calls, teardownErr: errors.New("a failed")},
		&recordingStage{name: "b", calls: &calls},
	)
	require.NoError(t, p.Setup(context.Background()))
	calls = nil

	err := p.Teardown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a"`)
	// b is torn down even though a's teardown failed.
	assert.Equal(t, []string{"teardown:a", "teardown:b"}, calls)
}

func TestPipelineSkipsNonParticipatingStages(t *testing.T) {
	var calls []string
	p := pipeline.New(&bareStage{calls: &calls})

	out, err := p.ProcessInbound(context.Background(), mkUserMessage(t), "sphex")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, calls)
}
