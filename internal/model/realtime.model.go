package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Real-time event names, both directions.
const (
	EventConnectionSuccess  = "connection_success"
	EventConnectionError    = "connection_error"
	EventError              = "error"
	EventJoinConversation   = "join_conversation"
	EventLeaveConversation  = "leave_conversation"
	EventSendMessage        = "send_message"
	EventJoinedConversation = "joined_conversation"
	EventUserJoined         = "user_joined"
	EventNewMessage         = "new_message"
	EventMessageReceived    = "message_received"
	EventClientMessage      = "client_message"
	EventAdminMessage       = "admin_message"
	EventMessageSent        = "message_sent"
)

// Envelope is the frame exchanged over the real-time channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

type RealtimeSend struct {
	ConversationID string   `json:"conversationId"`
	Content        string   `json:"content"`
	Priority       Priority `json:"priority,omitempty"`
	MessageID      string   `json:"messageId,omitempty"`
	Token          string   `json:"token,omitempty"`
}

// SenderRef decodes sentBy either as an object or as a bare id string.
type SenderRef struct {
	Sender
}

func (r *SenderRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	return json.Unmarshal(b, &r.Sender)
}

func (r SenderRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Sender)
}

// RealtimeMessage is the payload of new_message, client_message and
// admin_message.
type RealtimeMessage struct {
	ID              string        `json:"id"`
	ConversationID  string        `json:"conversationId"`
	Content         string        `json:"content"`
	Priority        Priority      `json:"priority,omitempty"`
	SentBy          SenderRef     `json:"sentBy"`
	Timestamp       time.Time     `json:"timestamp"`
	Status          MessageStatus `json:"status,omitempty"`
	ClientMessageID string        `json:"clientMessageId,omitempty"`
	ClientID        string        `json:"clientId,omitempty"`
	AdminID         string        `json:"adminId,omitempty"`
}

func RealtimeFromMessage(m *Message) *RealtimeMessage {
	return &RealtimeMessage{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		Content:         m.Content,
		Priority:        m.Priority,
		SentBy:          SenderRef{m.SentBy},
		Timestamp:       m.Timestamp,
		Status:          m.Status,
		ClientMessageID: m.ClientMessageID,
	}
}

type MessageReceived struct {
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
}

type MessageSent struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type ConnectionSuccess struct {
	Message  string     `json:"message"`
	UserID   string     `json:"userId"`
	UserType SenderType `json:"userType"`
}

type RealtimeError struct {
	Message string `json:"message"`
}

type JoinedConversation struct {
	Success        bool      `json:"success"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

type UserJoined struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	UserType       SenderType `json:"userType"`
	Timestamp      time.Time  `json:"timestamp"`
}
