package services

import (
	"context"
	"errors"

	"github.com/nimasrn/bigchat/internal/auth"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/pkg/logger"
)

type StaffService struct {
	staff StaffRepository
}

func NewStaffService(staff StaffRepository) *StaffService {
	return &StaffService{staff: staff}
}

// Bootstrap creates a staff user without a caller. Only the cli uses it.
func (s *StaffService) Bootstrap(ctx context.Context, req model.StaffCreateRequest) (*model.StaffUser, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.staff.Create(ctx, &model.StaffUser{
		Username:     req.Username,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}
	logger.Info("staff user created", "staff_id", u.ID, "username", u.Username, "role", u.Role)
	return u, nil
}

// Create is reserved to admins.
func (s *StaffService) Create(ctx context.Context, p model.Principal, req model.StaffCreateRequest) (*model.StaffUser, error) {
	if !p.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	return s.Bootstrap(ctx, req)
}

func (s *StaffService) List(ctx context.Context, p model.Principal) ([]*model.StaffUser, error) {
	if !p.IsStaff() {
		return nil, ErrPermissionDenied
	}
	return s.staff.List(ctx)
}
