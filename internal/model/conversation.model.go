package model

import (
	"strings"
	"time"
)

type UnreadCount struct {
	Client int `json:"client"`
	Admin  int `json:"admin"`
}

func (u UnreadCount) For(side SenderType) int {
	if side == SenderClient {
		return u.Client
	}
	return u.Admin
}

type LastMessage struct {
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	SentByClient bool      `json:"sentByClient"`
}

type Conversation struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	ClientID    string       `json:"clientId"`
	Active      bool         `json:"active"`
	UnreadCount UnreadCount  `json:"unreadCount"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// OwnedBy reports whether the client with the given id owns the conversation.
func (c *Conversation) OwnedBy(clientID string) bool {
	return c.ClientID == clientID
}

type ConversationCreateRequest struct {
	Title string `json:"title"`
	// ClientID is honoured only for staff callers opening a thread on behalf
	// of a client.
	ClientID string `json:"clientId,omitempty"`
}

type ConversationUpdateRequest struct {
	Title *string `json:"title"`
}

func DefaultConversationTitle(clientName string) string {
	return "Conversa de " + strings.TrimSpace(clientName)
}
