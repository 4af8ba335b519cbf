package services

import (
	"context"
	"errors"
	"strings"

	"github.com/nimasrn/bigchat/internal/auth"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/pkg/logger"
)

type AuthService struct {
	tokens  *auth.Tokens
	clients ClientRepository
	staff   StaffRepository
	signup  *ClientService
}

func NewAuthService(tokens *auth.Tokens, clients ClientRepository, staff StaffRepository, signup *ClientService) *AuthService {
	return &AuthService{tokens: tokens, clients: clients, staff: staff, signup: signup}
}

// ClientLogin authenticates a client by document number alone.
func (s *AuthService) ClientLogin(ctx context.Context, req model.ClientLoginRequest) (*model.AuthResponse, error) {
	doc, typ, err := model.NormalizeDocument(req.DocumentID, req.DocumentType)
	if err != nil {
		return nil, invalidInput(err)
	}
	c, err := s.clients.GetByDocument(ctx, doc, typ)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !c.Active {
		return nil, ErrUnauthenticated
	}
	return s.clientResponse(c)
}

func (s *AuthService) StaffLogin(ctx context.Context, req model.StaffLoginRequest) (*model.AuthResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		return nil, invalidInput(errors.New("username and password are required"))
	}
	u, err := s.staff.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrStaffNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !u.Active || !auth.CheckPassword(u.PasswordHash, req.Password) {
		logger.Warn("staff login rejected", "username", username)
		return nil, ErrUnauthenticated
	}
	token, err := s.tokens.Issue(model.Principal{ID: u.ID, Type: model.SenderAdmin, Role: u.Role})
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{Token: token, Type: model.SenderAdmin, User: u}, nil
}

// Register creates a client account and logs it in.
func (s *AuthService) Register(ctx context.Context, req model.ClientCreateRequest) (*model.AuthResponse, error) {
	c, err := s.signup.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.clientResponse(c)
}

// Authenticate decodes a bearer token into the caller's principal.
func (s *AuthService) Authenticate(token string) (model.Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return model.Principal{}, ErrUnauthenticated
	}
	p, err := s.tokens.Verify(token)
	if err != nil {
		return model.Principal{}, ErrUnauthenticated
	}
	return p, nil
}

func (s *AuthService) clientResponse(c *model.Client) (*model.AuthResponse, error) {
	token, err := s.tokens.Issue(model.Principal{
		ID:           c.ID,
		Type:         model.SenderClient,
		DocumentID:   c.DocumentID,
		DocumentType: c.DocumentType,
	})
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{Token: token, Type: model.SenderClient, User: c}, nil
}
