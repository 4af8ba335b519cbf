package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

const (
	MessageStatusQueued     MessageStatus = "queued"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusSent       MessageStatus = "sent"
	MessageStatusDelivered  MessageStatus = "delivered"
	MessageStatusRead       MessageStatus = "read"
	MessageStatusFailed     MessageStatus = "failed"
)

// transitions lists the forward moves allowed in strict mode. failed is
// reachable from every non-terminal state.
var transitions = map[MessageStatus][]MessageStatus{
	MessageStatusQueued:     {MessageStatusProcessing, MessageStatusFailed},
	MessageStatusProcessing: {MessageStatusSent, MessageStatusFailed},
	MessageStatusSent:       {MessageStatusDelivered, MessageStatusRead, MessageStatusFailed},
	MessageStatusDelivered:  {MessageStatusRead, MessageStatusFailed},
	MessageStatusRead:       nil,
	MessageStatusFailed:     nil,
}

func (s MessageStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s MessageStatus) Terminal() bool {
	return s == MessageStatusRead || s == MessageStatusFailed
}

// CanTransition reports whether from → to is a forward move. Staying in the
// same state is allowed so repeated updates are harmless.
func (s MessageStatus) CanTransition(to MessageStatus) bool {
	if s == to {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityUrgent
}

// SenderType is the side of the conversation a principal speaks for.
type SenderType string

const (
	SenderClient SenderType = "client"
	SenderAdmin  SenderType = "admin"
)

func (t SenderType) Opposite() SenderType {
	if t == SenderClient {
		return SenderAdmin
	}
	return SenderClient
}

type Sender struct {
	ID   string     `json:"id"`
	Type SenderType `json:"type"`
}

type Message struct {
	ID              string        `json:"id"`
	ConversationID  string        `json:"conversationId"`
	Content         string        `json:"content"`
	SentBy          Sender        `json:"sentBy"`
	Timestamp       time.Time     `json:"timestamp"`
	Priority        Priority      `json:"priority"`
	Status          MessageStatus `json:"status"`
	Cost            Cents         `json:"cost"`
	ClientMessageID string        `json:"clientMessageId,omitempty"`
}

const MaxContentLength = 4096

var (
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrContentTooLong  = errors.New("message content exceeds maximum length")
	ErrInvalidPriority = errors.New("priority must be normal or urgent")
	ErrInvalidStatus   = errors.New("invalid message status")
)

type MessageCreateRequest struct {
	ConversationID  string   `json:"conversationId"`
	Content         string   `json:"content"`
	Priority        Priority `json:"priority"`
	ClientMessageID string   `json:"clientMessageId,omitempty"`
}

func (r *MessageCreateRequest) Validate() error {
	if strings.TrimSpace(r.ConversationID) == "" {
		return errors.New("conversationId is required")
	}
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(r.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
	if !r.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// MessagePage is one page of a conversation, newest first.
type MessagePage struct {
	Messages []*Message `json:"messages"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
}
