package repository

import (
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
)

type TransactionEntity struct {
	pg.Model
	ClientID     string  `gorm:"column:client_id;type:uuid;not null;index"`
	Amount       int64   `gorm:"column:amount;not null"`
	Type         string  `gorm:"column:type;type:varchar(16);not null"`
	MessageID    *string `gorm:"column:message_id;type:uuid;index"`
	BalanceAfter int64   `gorm:"column:balance_after;not null"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(t *model.Transaction) *TransactionEntity {
	return &TransactionEntity{
		Model:        pg.Model{ID: t.ID, CreatedAt: t.CreatedAt},
		ClientID:     t.ClientID,
		Amount:       int64(t.Amount),
		Type:         string(t.Type),
		MessageID:    t.MessageID,
		BalanceAfter: int64(t.BalanceAfter),
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	return &model.Transaction{
		ID:           e.ID,
		ClientID:     e.ClientID,
		Amount:       model.Cents(e.Amount),
		Type:         model.TransactionType(e.Type),
		MessageID:    e.MessageID,
		BalanceAfter: model.Cents(e.BalanceAfter),
		CreatedAt:    e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}

