package services

import (
	"context"

	"github.com/nimasrn/bigchat/internal/model"
)

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type ClientRepository interface {
	Create(ctx context.Context, c *model.Client) (*model.Client, error)
	GetByID(ctx context.Context, id string) (*model.Client, error)
	GetByDocument(ctx context.Context, documentID string, documentType model.DocumentType) (*model.Client, error)
	List(ctx context.Context, offset, limit int) ([]*model.Client, int64, error)
	Update(ctx context.Context, id string, req model.ClientUpdateRequest) (*model.Client, error)
	DebitBalance(ctx context.Context, id string, amount model.Cents) (model.Cents, error)
	CreditBalance(ctx context.Context, id string, amount model.Cents) (model.Cents, error)
}

type StaffRepository interface {
	Create(ctx context.Context, u *model.StaffUser) (*model.StaffUser, error)
	GetByID(ctx context.Context, id string) (*model.StaffUser, error)
	GetByUsername(ctx context.Context, username string) (*model.StaffUser, error)
	List(ctx context.Context) ([]*model.StaffUser, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, c *model.Conversation) (*model.Conversation, error)
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	ListByClient(ctx context.Context, clientID string, includeArchived bool) ([]*model.Conversation, error)
	ListActive(ctx context.Context) ([]*model.Conversation, error)
	UpdateTitle(ctx context.Context, id, title string) (*model.Conversation, error)
	Archive(ctx context.Context, id string) error
	RecordMessage(ctx context.Context, msg *model.Message) error
	ResetUnread(ctx context.Context, id string, side model.SenderType) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id string) (*model.Message, error)
	FindByClientMessageID(ctx context.Context, conversationID, senderID, ref string) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationID string, offset, limit int) ([]*model.Message, int64, error)
	MarkRead(ctx context.Context, ids []string) (int64, error)
	UpdateStatus(ctx context.Context, id string, status model.MessageStatus) (*model.Message, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, t *model.Transaction) (*model.Transaction, error)
	ListByClient(ctx context.Context, clientID string, offset, limit int) ([]*model.Transaction, int64, error)
}

// MessagePublisher announces committed messages to the real-time relay.
type MessagePublisher interface {
	Publish(ctx context.Context, evt *model.MessageEvent) error
}
