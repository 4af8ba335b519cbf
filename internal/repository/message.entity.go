package repository

import (
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
)

type MessageEntity struct {
	pg.Model
	ConversationID  string    `gorm:"column:conversation_id;type:uuid;not null;index:idx_message_conversation_ts,priority:1;uniqueIndex:ux_message_client_ref,priority:1"`
	Content         string    `gorm:"column:content;type:text;not null"`
	SenderID        string    `gorm:"column:sender_id;type:uuid;not null;uniqueIndex:ux_message_client_ref,priority:2"`
	SenderType      string    `gorm:"column:sender_type;type:varchar(16);not null"`
	Timestamp       time.Time `gorm:"column:timestamp;not null;index:idx_message_conversation_ts,priority:2"`
	Priority        string    `gorm:"column:priority;type:varchar(16);not null"`
	Status          string    `gorm:"column:status;type:varchar(16);not null;index"`
	Cost            int64     `gorm:"column:cost;not null"`
	ClientMessageID *string   `gorm:"column:client_message_id;type:varchar(128);uniqueIndex:ux_message_client_ref,priority:3"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	e := &MessageEntity{
		Model:          pg.Model{ID: m.ID},
		ConversationID: m.ConversationID,
		Content:        m.Content,
		SenderID:       m.SentBy.ID,
		SenderType:     string(m.SentBy.Type),
		Timestamp:      m.Timestamp,
		Priority:       string(m.Priority),
		Status:         string(m.Status),
		Cost:           int64(m.Cost),
	}
	if m.ClientMessageID != "" {
		ref := m.ClientMessageID
		e.ClientMessageID = &ref
	}
	return e
}

func toMessageModel(e *MessageEntity) *model.Message {
	m := &model.Message{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		Content:        e.Content,
		SentBy:         model.Sender{ID: e.SenderID, Type: model.SenderType(e.SenderType)},
		Timestamp:      e.Timestamp,
		Priority:       model.Priority(e.Priority),
		Status:         model.MessageStatus(e.Status),
		Cost:           model.Cents(e.Cost),
	}
	if e.ClientMessageID != nil {
		m.ClientMessageID = *e.ClientMessageID
	}
	return m
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
