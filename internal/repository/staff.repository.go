package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
	"gorm.io/gorm"
)

type StaffUserRepository struct {
	*pg.DB
}

func NewStaffUserRepository(db *pg.DB) *StaffUserRepository {
	return &StaffUserRepository{db}
}

func (r *StaffUserRepository) Create(ctx context.Context, u *model.StaffUser) (*model.StaffUser, error) {
	entity := toStaffUserEntity(u)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return toStaffUserModel(entity), nil
}

func (r *StaffUserRepository) GetByID(ctx context.Context, id string) (*model.StaffUser, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *StaffUserRepository) GetByUsername(ctx context.Context, username string) (*model.StaffUser, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *StaffUserRepository) List(ctx context.Context) ([]*model.StaffUser, error) {
	var entities []*StaffUserEntity
	if err := r.Read(ctx).Order("username ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	out := make([]*model.StaffUser, len(entities))
	for i, e := range entities {
		out[i] = toStaffUserModel(e)
	}
	return out, nil
}

func (r *StaffUserRepository) first(ctx context.Context, where string, arg any) (*model.StaffUser, error) {
	var entity StaffUserEntity
	if err := r.Read(ctx).Where(where, arg).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	return toStaffUserModel(&entity), nil
}
