package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/prom"
)

var ErrInvalidTransition = errors.New("status transition not allowed")

type MessageService struct {
	tx                Transactor
	messages          MessageRepository
	conversations     ConversationRepository
	clients           ClientRepository
	ledger            *LedgerService
	publisher         MessagePublisher
	pricing           Pricing
	pages             Pagination
	strictTransitions bool
	now               func() time.Time
}

type MessageOption func(*MessageService)

func WithPublisher(p MessagePublisher) MessageOption {
	return func(s *MessageService) { s.publisher = p }
}

func WithPagination(p Pagination) MessageOption {
	return func(s *MessageService) { s.pages = p }
}

func WithStrictTransitions(strict bool) MessageOption {
	return func(s *MessageService) { s.strictTransitions = strict }
}

func WithClock(now func() time.Time) MessageOption {
	return func(s *MessageService) { s.now = now }
}

func NewMessageService(
	tx Transactor,
	messages MessageRepository,
	conversations ConversationRepository,
	clients ClientRepository,
	ledger *LedgerService,
	pricing Pricing,
	opts ...MessageOption,
) *MessageService {
	s := &MessageService{
		tx:            tx,
		messages:      messages,
		conversations: conversations,
		clients:       clients,
		ledger:        ledger,
		pricing:       pricing,
		pages:         DefaultPagination,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorize loads the conversation and checks that p may use it. Staff may
// use any conversation, a client only its own.
func (s *MessageService) authorize(ctx context.Context, p model.Principal, conversationID string) (*model.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
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

// Create persists a message in status sent. For a prepaid client the debit,
// the insert, the journal row and the conversation update commit together or
// not at all. A repeated clientMessageId returns the stored message without
// charging again.
func (s *MessageService) Create(ctx context.Context, p model.Principal, req model.MessageCreateRequest) (*model.Message, error) {
	started := time.Now()
	if err := req.Validate(); err != nil {
		prom.MessageRejected("invalid")
		return nil, invalidInput(err)
	}

	conv, err := s.authorize(ctx, p, req.ConversationID)
	if err != nil {
		return nil, err
	}

	if req.ClientMessageID != "" {
		if existing, ok := s.findExisting(ctx, conv.ID, p.ID, req.ClientMessageID); ok {
			return existing, nil
		}
	}

	cost := model.Cents(0)
	if !p.IsStaff() {
		if _, err := s.clients.GetByID(ctx, p.ID); err != nil {
			if errors.Is(err, repository.ErrClientNotFound) {
				return nil, ErrUnauthenticated
			}
			return nil, err
		}
		cost = s.pricing.Price(req.Priority)
	}

	msg := &model.Message{
		ID:              uuid.NewString(),
		ConversationID:  conv.ID,
		Content:         req.Content,
		SentBy:          p.Sender(),
		Timestamp:       s.now().UTC(),
		Priority:        req.Priority,
		Status:          model.MessageStatusSent,
		Cost:            cost,
		ClientMessageID: req.ClientMessageID,
	}

	var created *model.Message
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if !p.IsStaff() {
			if err := s.ledger.Debit(ctx, p.ID, cost, msg.ID); err != nil {
				return err
			}
		}
		var err error
		created, err = s.messages.Create(ctx, msg)
		if err != nil {
			return err
		}
		return s.conversations.RecordMessage(ctx, created)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) && req.ClientMessageID != "" {
			// a concurrent send with the same reference won
			if existing, ok := s.findExisting(ctx, conv.ID, p.ID, req.ClientMessageID); ok {
				return existing, nil
			}
		}
		if errors.Is(err, ErrInsufficientFunds) {
			prom.MessageRejected("insufficient_funds")
			return nil, err
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("create message: %w", err)
	}

	prom.MessageCreated(string(created.Priority), string(created.SentBy.Type), time.Since(started).Seconds())
	s.publish(ctx, conv, created)
	return created, nil
}

func (s *MessageService) findExisting(ctx context.Context, conversationID, senderID, ref string) (*model.Message, bool) {
	existing, err := s.messages.FindByClientMessageID(ctx, conversationID, senderID, ref)
	if err != nil {
		if !errors.Is(err, repository.ErrMessageNotFound) {
			logger.Warn("client message lookup failed", "conversation_id", conversationID, "ref", ref, "error", err)
		}
		return nil, false
	}
	return existing, true
}

// publish hands the committed message to the relay. The message is already
// durable, so failures are only logged.
func (s *MessageService) publish(ctx context.Context, conv *model.Conversation, msg *model.Message) {
	if s.publisher == nil {
		return
	}
	evt := &model.MessageEvent{
		Type:      model.EventMessageCreated,
		Message:   msg,
		ClientID:  conv.ClientID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		logger.Error("failed to publish message event", "message_id", msg.ID, "conversation_id", conv.ID, "error", err)
	}
}

// List returns one page of the conversation, newest first, and marks it seen
// for the requester.
func (s *MessageService) List(ctx context.Context, p model.Principal, conversationID string, page, limit int) (*model.MessagePage, error) {
	conv, err := s.authorize(ctx, p, conversationID)
	if err != nil {
		return nil, err
	}

	page, limit = s.pages.Normalize(page, limit)
	msgs, total, err := s.messages.ListByConversation(ctx, conv.ID, offset(page, limit), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if err := s.markSeen(ctx, conv, p, msgs); err != nil {
		return nil, err
	}

	return &model.MessagePage{Messages: msgs, Total: total, Page: page, Limit: limit}, nil
}

// markSeen moves every message of the page sent by the other side to read
// and clears the requester's unread counter. The page is updated in place.
// Running it twice changes nothing the second time.
func (s *MessageService) markSeen(ctx context.Context, conv *model.Conversation, p model.Principal, page []*model.Message) error {
	var ids []string
	for _, m := range page {
		if m.SentBy.Type != p.Type && m.Status != model.MessageStatusRead {
			ids = append(ids, m.ID)
		}
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.messages.MarkRead(ctx, ids); err != nil {
			return err
		}
		return s.conversations.ResetUnread(ctx, conv.ID, p.Type)
	})
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}

	for _, m := range page {
		if m.SentBy.Type != p.Type {
			m.Status = model.MessageStatusRead
		}
	}
	if len(ids) > 0 {
		prom.MessagesMarkedRead(len(ids))
	}
	return nil
}

// UpdateStatus overwrites a message status. Forward-only checking applies
// only when strict transitions are enabled. Counters are not touched.
func (s *MessageService) UpdateStatus(ctx context.Context, p model.Principal, id string, status model.MessageStatus) (*model.Message, error) {
	if !status.Valid() {
		return nil, invalidInput(model.ErrInvalidStatus)
	}

	current, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := s.authorize(ctx, p, current.ConversationID); err != nil {
		return nil, err
	}

	if s.strictTransitions && !current.Status.CanTransition(status) {
		return nil, invalidInput(fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status))
	}

	updated, err := s.messages.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}
