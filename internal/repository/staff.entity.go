package repository

import (
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
)

type StaffUserEntity struct {
	pg.Model
	Username     string `gorm:"column:username;not null;uniqueIndex"`
	Name         string `gorm:"column:name;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Role         string `gorm:"column:role;not null"`
	Active       bool   `gorm:"column:active;not null"`
}

func (StaffUserEntity) TableName() string {
	return "staff_users"
}

func toStaffUserEntity(m *model.StaffUser) *StaffUserEntity {
	return &StaffUserEntity{
		Model:        pg.Model{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Username:     m.Username,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Role:         string(m.Role),
		Active:       m.Active,
	}
}

func toStaffUserModel(e *StaffUserEntity) *model.StaffUser {
	return &model.StaffUser{
		ID:           e.ID,
		Username:     e.Username,
		Name:         e.Name,
		PasswordHash: e.PasswordHash,
		Role:         model.StaffRole(e.Role),
		Active:       e.Active,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}
