package services

import (
	"context"
	"errors"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/pkg/logger"
)

// ClientDefaults are the starting balance and limit of new accounts.
type ClientDefaults struct {
	PrepaidBalance model.Cents
	PostpaidLimit  model.Cents
}

type ClientService struct {
	clients  ClientRepository
	defaults ClientDefaults
}

func NewClientService(clients ClientRepository, defaults ClientDefaults) *ClientService {
	return &ClientService{clients: clients, defaults: defaults}
}

// Register creates a client from a validated request. It is used by staff
// provisioning and by self-registration.
func (s *ClientService) Register(ctx context.Context, req model.ClientCreateRequest) (*model.Client, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidInput(err)
	}

	c := &model.Client{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		DocumentID:   req.DocumentID,
		DocumentType: req.DocumentType,
		PlanType:     req.PlanType,
		Active:       true,
	}
	if c.IsPrepaid() {
		c.Balance = s.defaults.PrepaidBalance
	} else {
		c.Limit = s.defaults.PostpaidLimit
	}

	created, err := s.clients.Create(ctx, c)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}
	logger.Info("client registered", "client_id", created.ID, "plan", created.PlanType)
	return created, nil
}

func (s *ClientService) Create(ctx context.Context, p model.Principal, req model.ClientCreateRequest) (*model.Client, error) {
	if !p.IsStaff() {
		return nil, ErrPermissionDenied
	}
	return s.Register(ctx, req)
}

func (s *ClientService) Get(ctx context.Context, p model.Principal, id string) (*model.Client, error) {
	if !p.IsStaff() && p.ID != id {
		return nil, ErrPermissionDenied
	}
	c, err := s.clients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ClientService) Me(ctx context.Context, p model.Principal) (*model.Client, error) {
	if p.IsStaff() {
		return nil, ErrPermissionDenied
	}
	return s.Get(ctx, p, p.ID)
}

func (s *ClientService) List(ctx context.Context, p model.Principal, page, limit int) ([]*model.Client, int64, error) {
	if !p.IsStaff() {
		return nil, 0, ErrPermissionDenied
	}
	page, limit = DefaultPagination.Normalize(page, limit)
	return s.clients.List(ctx, offset(page, limit), limit)
}

func (s *ClientService) Update(ctx context.Context, p model.Principal, id string, req model.ClientUpdateRequest) (*model.Client, error) {
	if !p.IsStaff() {
		return nil, ErrPermissionDenied
	}
	if err := req.Validate(); err != nil {
		return nil, invalidInput(err)
	}
	c, err := s.clients.Update(ctx, id, req)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}
