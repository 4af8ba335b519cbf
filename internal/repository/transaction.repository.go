package repository

import (
	"context"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(t)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toTransactionModel(entity), nil
}

// ListByClient returns the client's journal, newest first.
func (r *TransactionRepository) ListByClient(ctx context.Context, clientID string, offset, limit int) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).Model(&TransactionEntity{}).Where("client_id = ?", clientID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*TransactionEntity
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&entities).Error; err != nil {
		return nil, 0, err
	}
	return toTransactionModels(entities), total, nil
}
