package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
	"gorm.io/gorm"
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{db}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) (*model.Message, error) {
	entity := toMessageEntity(m)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return toMessageModel(entity), nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var entity MessageEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// FindByClientMessageID looks up a message previously sent with the same
// client-generated reference.
func (r *MessageRepository) FindByClientMessageID(ctx context.Context, conversationID, senderID, ref string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).
		Where("conversation_id = ? AND sender_id = ? AND client_message_id = ?", conversationID, senderID, ref).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// ListByConversation returns one page, newest first, and the total count.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, offset, limit int) ([]*model.Message, int64, error) {
	q := r.Read(ctx).Model(&MessageEntity{}).Where("conversation_id = ?", conversationID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*MessageEntity
	err := q.Order("timestamp DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, 0, err
	}
	return toMessageModels(entities), total, nil
}

// MarkRead moves the given messages to read and returns how many rows
// changed. Messages already read are left alone.
func (r *MessageRepository) MarkRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.Write(ctx).Model(&MessageEntity{}).
		Where("id IN ? AND status <> ?", ids, string(model.MessageStatusRead)).
		Updates(map[string]any{
			"status":     string(model.MessageStatusRead),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *MessageRepository) UpdateStatus(ctx context.Context, id string, status model.MessageStatus) (*model.Message, error) {
	res := r.Write(ctx).Model(&MessageEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrMessageNotFound
	}
	return r.GetByID(ctx, id)
}
