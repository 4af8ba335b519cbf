package repository

import (
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
)

type ClientEntity struct {
	pg.Model
	Name         string `gorm:"column:name;not null"`
	Email        string `gorm:"column:email"`
	Phone        string `gorm:"column:phone"`
	DocumentID   string `gorm:"column:document_id;not null;uniqueIndex:ux_client_document"`
	DocumentType string `gorm:"column:document_type;not null;uniqueIndex:ux_client_document"`
	PlanType     string `gorm:"column:plan_type;not null"`
	Balance      int64  `gorm:"column:balance;not null"`
	CreditLimit  int64  `gorm:"column:credit_limit;not null"`
	Active       bool   `gorm:"column:active;not null"`
}

func (ClientEntity) TableName() string {
	return "clients"
}

func toClientEntity(m *model.Client) *ClientEntity {
	if m == nil {
		return nil
	}
	return &ClientEntity{
		Model:        pg.Model{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Name:         m.Name,
		Email:        m.Email,
		Phone:        m.Phone,
		DocumentID:   m.DocumentID,
		DocumentType: string(m.DocumentType),
		PlanType:     string(m.PlanType),
		Balance:      int64(m.Balance),
		CreditLimit:  int64(m.Limit),
		Active:       m.Active,
	}
}

func toClientModel(e *ClientEntity) *model.Client {
	if e == nil {
		return nil
	}
	return &model.Client{
		ID:           e.ID,
		Name:         e.Name,
		Email:        e.Email,
		Phone:        e.Phone,
		DocumentID:   e.DocumentID,
		DocumentType: model.DocumentType(e.DocumentType),
		PlanType:     model.PlanType(e.PlanType),
		Balance:      model.Cents(e.Balance),
		Limit:        model.Cents(e.CreditLimit),
		Active:       e.Active,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toClientModels(entities []*ClientEntity) []*model.Client {
	models := make([]*model.Client, len(entities))
	for i, e := range entities {
		models[i] = toClientModel(e)
	}
	return models
}
