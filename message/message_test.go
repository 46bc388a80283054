package message_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/gatemux/message"
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewIDFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := message.NewID()
		assert.Regexp(t, idPattern, id)
		assert.False(t, seen[id], "ids must be unique")
		seen[id] = true
	}
}

func TestNewUserMessageDefaults(t *testing.T) {
	msg, err := message.NewUserMessage(message.UserMessage{
		ToAddr:        "9292",
		FromAddr:      "+41791234567",
		Content:       "hello world",
		TransportName: "sphex",
		TransportType: "sms",
	})
	require.NoError(t, err)
	assert.Regexp(t, idPattern, msg.MessageID)
	assert.WithinDuration(t, time.Now().UTC(), msg.Timestamp, time.Minute)
}

func TestNewUserMessageRequiresTransportName(t *testing.T) {
	_, err := message.NewUserMessage(message.UserMessage{
		ToAddr:   "9292",
		FromAddr: "+41791234567",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport_name")
}

func TestNewUserMessageKeepsExplicitID(t *testing.T) {
	msg, err := message.NewUserMessage(message.UserMessage{
		MessageID:     "abc",
		TransportName: "sphex",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", msg.MessageID)
}

func TestReply(t *testing.T) {
	in, err := message.NewUserMessage(message.UserMessage{
		ToAddr:        "9292",
		FromAddr:      "+41791234567",
		Content:       "hi",
		TransportName: "sphex",
		TransportType: "ussd",
		SessionEvent:  message.SessionNew,
	})
	require.NoError(t, err)

	reply := in.Reply("bye", false)
	assert.Equal(t, in.FromAddr, reply.ToAddr)
	assert.Equal(t, in.ToAddr, reply.FromAddr)
	assert.Equal(t, in.MessageID, reply.InReplyTo)
	assert.Equal(t, message.SessionClose, reply.SessionEvent)
	assert.Equal(t, "sphex", reply.TransportName)

	cont := in.Reply("more?", true)
	assert.Equal(t, message.SessionResume, cont.SessionEvent)
}

func TestHelperNamespace(t *testing.T) {
	msg := &message.UserMessage{TransportName: "sphex"}
	msg.HelperNamespace("billing")["session_length"] = 1.5
	assert.Equal(t, 1.5, msg.HelperMetadata["billing"]["session_length"])
}

func TestUserMessageRoundTrip(t *testing.T) {
	msg, err := message.NewUserMessage(message.UserMessage{
		ToAddr:        "9292",
		FromAddr:      "+41791234567",
		Content:       "hello",
		TransportName: "sphex",
		SessionEvent:  message.SessionNew,
		TransportMetadata: map[string]any{
			"network_id": "provider",
		},
	})
	require.NoError(t, err)

	data, err := msg.Encode()
	require.NoError(t, err)

	got, err := message.DecodeUserMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg.MessageID, got.MessageID)
	assert.Equal(t, msg.SessionEvent, got.SessionEvent)
	assert.Equal(t, "provider", got.TransportMetadata["network_id"])
}

func TestNewEventValidation(t *testing.T) {
	tests := []struct {
		name    string
		event   message.Event
		missing string
	}{
		{
			name:    "ack without sent_message_id",
			event:   message.Event{EventType: message.EventAck, UserMessageID: "1"},
			missing: "sent_message_id",
		},
		{
			name:    "nack without reason",
			event:   message.Event{EventType: message.EventNack, UserMessageID: "1"},
			missing: "nack_reason",
		},
		{
			name:    "delivery report without status",
			event:   message.Event{EventType: message.EventDeliveryReport, UserMessageID: "1"},
			missing: "delivery_status",
		},
		{
			name:    "missing user_message_id",
			event:   message.Event{EventType: message.EventAck, SentMessageID: "abc"},
			missing: "user_message_id",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := message.NewEvent(tc.event)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.missing)
		})
	}
}

func TestNewEventUnknownType(t *testing.T) {
	_, err := message.NewEvent(message.Event{EventType: "gossip", UserMessageID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestNewAck(t *testing.T) {
	ev, err := message.NewAck("1", "abc", "sphex")
	require.NoError(t, err)
	assert.Regexp(t, idPattern, ev.EventID)
	assert.Equal(t, message.EventAck, ev.EventType)
	assert.Equal(t, "1", ev.UserMessageID)
	assert.Equal(t, "abc", ev.SentMessageID)
	assert.Equal(t, "sphex", ev.TransportName)
}

func TestNewDeliveryReport(t *testing.T) {
	ev, err := message.NewDeliveryReport("abc", message.DeliveryDelivered, "sphex")
	require.NoError(t, err)
	assert.Equal(t, message.DeliveryDelivered, ev.DeliveryStatus)

	data, err := ev.Encode()
	require.NoError(t, err)
	got, err := message.DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, message.EventDeliveryReport, got.EventType)
}

func TestFailurePreservesOriginalPayload(t *testing.T) {
	msg, err := message.NewUserMessage(message.UserMessage{
		ToAddr:        "+41791234567",
		FromAddr:      "9292",
		Content:       "hello",
		TransportName: "sphex",
		TransportMetadata: map[string]any{
			"original_message_id": "sphex.abc",
		},
	})
	require.NoError(t, err)

	failure := message.NewFailure(msg, message.FailureTemporary, "connection refused")
	data, err := failure.Encode()
	require.NoError(t, err)

	got, err := message.DecodeFailure(data)
	require.NoError(t, err)
	assert.Equal(t, message.FailureTemporary, got.FailureCode)
	assert.Equal(t, "connection refused", got.Reason)
	require.NotNil(t, got.Message)
	assert.Equal(t, msg.MessageID, got.Message.MessageID)
	assert.Equal(t, msg.Content, got.Message.Content)
	assert.Equal(t, "sphex.abc", got.Message.TransportMetadata["original_message_id"])
}
