package repository

import (
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
)

// ConversationEntity keeps the unread counters and the last-message cache in
// plain columns so they can be bumped with SQL expressions in the same
// transaction as the message insert.
type ConversationEntity struct {
	pg.Model
	Title               string     `gorm:"column:title;not null"`
	ClientID            string     `gorm:"column:client_id;type:uuid;not null;index"`
	Active              bool       `gorm:"column:active;not null;index"`
	UnreadClient        int        `gorm:"column:unread_client;not null"`
	UnreadAdmin         int        `gorm:"column:unread_admin;not null"`
	LastMessageContent  *string    `gorm:"column:last_message_content"`
	LastMessageAt       *time.Time `gorm:"column:last_message_at"`
	LastMessageByClient *bool      `gorm:"column:last_message_by_client"`
}

func (ConversationEntity) TableName() string {
	return "conversations"
}

func toConversationEntity(m *model.Conversation) *ConversationEntity {
	e := &ConversationEntity{
		Model:        pg.Model{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Title:        m.Title,
		ClientID:     m.ClientID,
		Active:       m.Active,
		UnreadClient: m.UnreadCount.Client,
		UnreadAdmin:  m.UnreadCount.Admin,
	}
	if lm := m.LastMessage; lm != nil {
		content, at, byClient := lm.Content, lm.Timestamp, lm.SentByClient
		e.LastMessageContent, e.LastMessageAt, e.LastMessageByClient = &content, &at, &byClient
	}
	return e
}

func toConversationModel(e *ConversationEntity) *model.Conversation {
	m := &model.Conversation{
		ID:          e.ID,
		Title:       e.Title,
		ClientID:    e.ClientID,
		Active:      e.Active,
		UnreadCount: model.UnreadCount{Client: e.UnreadClient, Admin: e.UnreadAdmin},
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.LastMessageContent != nil && e.LastMessageAt != nil {
		m.LastMessage = &model.LastMessage{
			Content:      *e.LastMessageContent,
			Timestamp:    *e.LastMessageAt,
			SentByClient: e.LastMessageByClient != nil && *e.LastMessageByClient,
		}
	}
	return m
}

func toConversationModels(entities []*ConversationEntity) []*model.Conversation {
	models := make([]*model.Conversation, len(entities))
	for i, e := range entities {
		models[i] = toConversationModel(e)
	}
	return models
}

func unreadColumn(side model.SenderType) string {
	if side == model.SenderClient {
		return "unread_client"
	}
	return "unread_admin"
}
