// Package message defines the envelope types exchanged between transports
// and the broker: user messages, delivery events, and failure records, plus
// the routing-key convention that binds them to broker topics.
package message

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionEvent marks session lifecycle transitions on session-oriented
// channels such as USSD.
type SessionEvent string

const (
	SessionNone   SessionEvent = ""
	SessionNew    SessionEvent = "new"
	SessionResume SessionEvent = "resume"
	SessionClose  SessionEvent = "close"
)

// EventType identifies the kind of a transport event.
type EventType string

const (
	EventAck            EventType = "ack"
	EventNack           EventType = "nack"
	EventDeliveryReport EventType = "delivery_report"
)

// DeliveryStatus is the outcome reported in a delivery report.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// FailureCode classifies a send failure as retryable or not.
type FailureCode string

const (
	FailureTemporary FailureCode = "temporary"
	FailurePermanent FailureCode = "permanent"
)

// NewID returns a unique 32-character lowercase hex identifier, the format
// used for message and event ids on the wire.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// UserMessage is a message to or from a user on a carrier channel.
//
// TransportMetadata is free-form data a transport attaches for its own use.
// HelperMetadata is a namespaced side channel for middleware (for example
// billing data under the "billing" namespace).
type UserMessage struct {
	MessageID         string                    `json:"message_id"`
	ToAddr            string                    `json:"to_addr"`
	FromAddr          string                    `json:"from_addr"`
	InReplyTo         string                    `json:"in_reply_to,omitempty"`
	Content           string                    `json:"content"`
	SessionEvent      SessionEvent              `json:"session_event,omitempty"`
	TransportName     string                    `json:"transport_name"`
	TransportType     string                    `json:"transport_type,omitempty"`
	TransportMetadata map[string]any            `json:"transport_metadata,omitempty"`
	HelperMetadata    map[string]map[string]any `json:"helper_metadata,omitempty"`
	Timestamp         time.Time                 `json:"timestamp"`
}

// NewUserMessage fills defaults (message id, timestamp) and validates the
// fields of m.
func NewUserMessage(m UserMessage) (*UserMessage, error) {
	if m.TransportName == "" {
		return nil, &MissingFieldsError{Kind: "user message", Fields: []string{"transport_name"}}
	}
	if m.MessageID == "" {
		m.MessageID = NewID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return &m, nil
}

// Reply builds an outbound message answering this one: addresses swapped,
// in_reply_to set, transport identity carried over. continueSession controls
// whether the session stays open or closes with this reply.
func (m *UserMessage) Reply(content string, continueSession bool) *UserMessage {
	se := SessionResume
	if !continueSession {
		se = SessionClose
	}
	return &UserMessage{
		MessageID:         NewID(),
		ToAddr:            m.FromAddr,
		FromAddr:          m.ToAddr,
		InReplyTo:         m.MessageID,
		Content:           content,
		SessionEvent:      se,
		TransportName:     m.TransportName,
		TransportType:     m.TransportType,
		TransportMetadata: m.TransportMetadata,
		Timestamp:         time.Now().UTC(),
	}
}

// HelperNamespace returns the mutable helper_metadata map for the given
// namespace, creating it if needed.
func (m *UserMessage) HelperNamespace(ns string) map[string]any {
	if m.HelperMetadata == nil {
		m.HelperMetadata = make(map[string]map[string]any)
	}
	if m.HelperMetadata[ns] == nil {
		m.HelperMetadata[ns] = make(map[string]any)
	}
	return m.HelperMetadata[ns]
}

// Encode serializes the message to its JSON wire form.
func (m *UserMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("gatemux/message: encode user message: %w", err)
	}
	return data, nil
}

// DecodeUserMessage parses a JSON wire payload into a UserMessage.
func DecodeUserMessage(data []byte) (*UserMessage, error) {
	var m UserMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("gatemux/message: decode user message: %w", err)
	}
	return &m, nil
}

// Event is a transport-level acknowledgment or delivery report for a user
// message.
type Event struct {
	EventID           string         `json:"event_id"`
	EventType         EventType      `json:"event_type"`
	UserMessageID     string         `json:"user_message_id"`
	SentMessageID     string         `json:"sent_message_id,omitempty"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status,omitempty"`
	NackReason        string         `json:"nack_reason,omitempty"`
	TransportName     string         `json:"transport_name"`
	TransportMetadata map[string]any `json:"transport_metadata,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

// NewEvent fills defaults (event id, timestamp) and validates that e carries
// every field its event type requires. A construction error lists the missing
// fields.
func NewEvent(e Event) (*Event, error) {
	var missing []string
	if e.UserMessageID == "" {
		missing = append(missing, "user_message_id")
	}
	switch e.EventType {
	case EventAck:
		if e.SentMessageID == "" {
			missing = append(missing, "sent_message_id")
		}
	case EventNack:
		if e.NackReason == "" {
			missing = append(missing, "nack_reason")
		}
	case EventDeliveryReport:
		switch e.DeliveryStatus {
		case DeliveryPending, DeliveryDelivered, DeliveryFailed:
		default:
			missing = append(missing, "delivery_status")
		}
	default:
		return nil, fmt.Errorf("gatemux/message: unknown event type %q", e.EventType)
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Kind: string(e.EventType) + " event", Fields: missing}
	}
	if e.EventID == "" {
		e.EventID = NewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return &e, nil
}

// NewAck builds an ack event for a successfully sent message. sentMessageID
// is the carrier-reported id of the sent message.
func NewAck(userMessageID, sentMessageID, transportName string) (*Event, error) {
	return NewEvent(Event{
		EventType:     EventAck,
		UserMessageID: userMessageID,
		SentMessageID: sentMessageID,
		TransportName: transportName,
	})
}

// NewNack builds a nack event for a message that could not be sent.
func NewNack(userMessageID, reason, transportName string) (*Event, error) {
	return NewEvent(Event{
		EventType:     EventNack,
		UserMessageID: userMessageID,
		NackReason:    reason,
		TransportName: transportName,
	})
}

// NewDeliveryReport builds a delivery report event.
func NewDeliveryReport(userMessageID string, status DeliveryStatus, transportName string) (*Event, error) {
	return NewEvent(Event{
		EventType:      EventDeliveryReport,
		UserMessageID:  userMessageID,
		DeliveryStatus: status,
		TransportName:  transportName,
	})
}

// Encode serializes the event to its JSON wire form.
func (e *Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("gatemux/message: encode event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a JSON wire payload into an Event.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("gatemux/message: decode event: %w", err)
	}
	return &e, nil
}

// FailureMessage wraps an outbound message that could not be delivered. It
// always carries the complete original message so operators can inspect or
// resubmit it without data loss.
type FailureMessage struct {
	Message     *UserMessage `json:"message"`
	FailureCode FailureCode  `json:"failure_code"`
	Reason      string       `json:"reason"`
}

// NewFailure wraps msg in a failure record.
func NewFailure(msg *UserMessage, code FailureCode, reason string) *FailureMessage {
	return &FailureMessage{Message: msg, FailureCode: code, Reason: reason}
}

// Encode serializes the failure to its JSON wire form.
func (f *FailureMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("gatemux/message: encode failure: %w", err)
	}
	return data, nil
}

// DecodeFailure parses a JSON wire payload into a FailureMessage.
func DecodeFailure(data []byte) (*FailureMessage, error) {
	var f FailureMessage
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("gatemux/message: decode failure: %w", err)
	}
	return &f, nil
}

// MissingFieldsError reports required fields absent at construction time.
type MissingFieldsError struct {
	Kind   string
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("gatemux/message: %s missing fields: %s",
		e.Kind, strings.Join(e.Fields, ", "))
}
