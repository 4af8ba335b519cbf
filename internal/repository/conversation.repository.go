package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
	"gorm.io/gorm"
)

type ConversationRepository struct {
	*pg.DB
}

func NewConversationRepository(db *pg.DB) *ConversationRepository {
	return &ConversationRepository{db}
}

func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	entity := toConversationEntity(c)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toConversationModel(entity), nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	var entity ConversationEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return toConversationModel(&entity), nil
}

// ListByClient returns the client's conversations, newest first. Archived
// ones are left out unless includeArchived is set.
func (r *ConversationRepository) ListByClient(ctx context.Context, clientID string, includeArchived bool) ([]*model.Conversation, error) {
	q := r.Read(ctx).Where("client_id = ?", clientID)
	if !includeArchived {
		q = q.Where("active = ?", true)
	}
	var entities []*ConversationEntity
	if err := q.Order("created_at DESC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toConversationModels(entities), nil
}

// ListActive returns every active conversation, most recently touched first.
func (r *ConversationRepository) ListActive(ctx context.Context) ([]*model.Conversation, error) {
	var entities []*ConversationEntity
	if err := r.Read(ctx).Where("active = ?", true).Order("updated_at DESC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toConversationModels(entities), nil
}

func (r *ConversationRepository) UpdateTitle(ctx context.Context, id, title string) (*model.Conversation, error) {
	if err := r.update(ctx, id, map[string]any{"title": title}); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *ConversationRepository) Archive(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{"active": false})
}

// RecordMessage refreshes the last-message cache and bumps the unread
// counter of the side that did not send the message.
func (r *ConversationRepository) RecordMessage(ctx context.Context, msg *model.Message) error {
	byClient := msg.SentBy.Type == model.SenderClient
	col := unreadColumn(msg.SentBy.Type.Opposite())
	return r.update(ctx, msg.ConversationID, map[string]any{
		"last_message_content":   msg.Content,
		"last_message_at":        msg.Timestamp,
		"last_message_by_client": byClient,
		col:                      gorm.Expr(col + " + 1"),
	})
}

// ResetUnread sets the counter of the given side to zero.
func (r *ConversationRepository) ResetUnread(ctx context.Context, id string, side model.SenderType) error {
	res := r.Write(ctx).Model(&ConversationEntity{}).
		Where("id = ?", id).
		UpdateColumn(unreadColumn(side), 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) update(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.Write(ctx).Model(&ConversationEntity{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}
