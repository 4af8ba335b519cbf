package model

import "time"

const EventMessageCreated = "message.created"

// MessageEvent is published after a message commits. The relay turns it
// into real-time notifications.
type MessageEvent struct {
	Type      string    `json:"type"`
	Message   *Message  `json:"message"`
	ClientID  string    `json:"clientId"`
	CreatedAt time.Time `json:"createdAt"`
}
