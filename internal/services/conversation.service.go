package services

import (
	"context"
	"errors"
	"strings"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/pkg/logger"
)

type ConversationService struct {
	conversations ConversationRepository
	clients       ClientRepository
}

func NewConversationService(conversations ConversationRepository, clients ClientRepository) *ConversationService {
	return &ConversationService{conversations: conversations, clients: clients}
}

// Create opens a conversation. A client always opens one for itself; staff
// must name the client.
func (s *ConversationService) Create(ctx context.Context, p model.Principal, req model.ConversationCreateRequest) (*model.Conversation, error) {
	clientID := p.ID
	if p.IsStaff() {
		clientID = strings.TrimSpace(req.ClientID)
		if clientID == "" {
			return nil, invalidInput(errors.New("clientId is required"))
		}
	}

	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			if p.IsStaff() {
				return nil, invalidInput(errors.New("client does not exist"))
			}
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = model.DefaultConversationTitle(client.Name)
	}

	conv, err := s.conversations.Create(ctx, &model.Conversation{
		Title:    title,
		ClientID: client.ID,
		Active:   true,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("conversation opened", "conversation_id", conv.ID, "client_id", client.ID, "by", p.Type)
	return conv, nil
}

// Get returns a conversation to its owner or to staff. Archived
// conversations stay readable.
func (s *ConversationService) Get(ctx context.Context, p model.Principal, id string) (*model.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !p.IsStaff() && !conv.OwnedBy(p.ID) {
		return nil, ErrForbidden
	}
	return conv, nil
}

// List is the caller's default listing: a client's own active conversations,
// or every active conversation for staff.
func (s *ConversationService) List(ctx context.Context, p model.Principal) ([]*model.Conversation, error) {
	if p.IsStaff() {
		return s.conversations.ListActive(ctx)
	}
	return s.conversations.ListByClient(ctx, p.ID, false)
}

// ListAll is the staff inbox.
func (s *ConversationService) ListAll(ctx context.Context, p model.Principal) ([]*model.Conversation, error) {
	if !p.IsStaff() {
		return nil, ErrPermissionDenied
	}
	return s.conversations.ListActive(ctx)
}

func (s *ConversationService) Update(ctx context.Context, p model.Principal, id string, req model.ConversationUpdateRequest) (*model.Conversation, error) {
	conv, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if req.Title == nil {
		return conv, nil
	}
	title := strings.TrimSpace(*req.Title)
	if title == "" {
		return nil, invalidInput(errors.New("title cannot be empty"))
	}
	updated, err := s.conversations.UpdateTitle(ctx, conv.ID, title)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

// Archive is a soft delete reserved to the owning client. Messages are kept.
func (s *ConversationService) Archive(ctx context.Context, p model.Principal, id string) error {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return ErrNotFound
		}
		return err
	}
	if p.IsStaff() || !conv.OwnedBy(p.ID) {
		return ErrForbidden
	}
	if err := s.conversations.Archive(ctx, conv.ID); err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return ErrNotFound
		}
		return err
	}
	logger.Info("conversation archived", "conversation_id", conv.ID, "client_id", p.ID)
	return nil
}

// CanJoin reports whether p may subscribe to the conversation's real-time
// room.
func (s *ConversationService) CanJoin(ctx context.Context, p model.Principal, id string) (bool, error) {
	if p.IsStaff() {
		return true, nil
	}
	if _, err := s.Get(ctx, p, id); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// OwnerOf returns the client owning the conversation.
func (s *ConversationService) OwnerOf(ctx context.Context, id string) (string, error) {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return conv.ClientID, nil
}
