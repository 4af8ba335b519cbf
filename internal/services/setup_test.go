package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/internal/repository/repotest"
	"github.com/nimasrn/bigchat/pkg/pg"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt *model.MessageEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	db            *pg.DB
	clients       *repository.ClientRepository
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	transactions  *repository.TransactionRepository
	ledger        *LedgerService
	svc           *MessageService
	convSvc       *ConversationService
}

var testPricing = Pricing{Normal: model.MustParseCents("0.25"), Urgent: model.MustParseCents("0.50")}

func newFixture(t *testing.T, opts ...MessageOption) *fixture {
	t.Helper()
	db := repotest.NewDB(t)
	f := &fixture{
		db:            db,
		clients:       repository.NewClientRepository(db),
		conversations: repository.NewConversationRepository(db),
		messages:      repository.NewMessageRepository(db),
		transactions:  repository.NewTransactionRepository(db),
	}
	f.ledger = NewLedgerService(db, f.clients, f.transactions)
	opts = append([]MessageOption{WithClock(newFakeClock().Now)}, opts...)
	f.svc = NewMessageService(db, f.messages, f.conversations, f.clients, f.ledger, testPricing, opts...)
	f.convSvc = NewConversationService(f.conversations, f.clients)
	return f
}

func clientPrincipal(c *model.Client) model.Principal {
	return model.Principal{ID: c.ID, Type: model.SenderClient, DocumentID: c.DocumentID, DocumentType: c.DocumentType}
}

func staffPrincipal(s *model.StaffUser) model.Principal {
	return model.Principal{ID: s.ID, Type: model.SenderAdmin, Role: s.Role}
}

func (f *fixture) balance(t *testing.T, clientID string) model.Cents {
	t.Helper()
	b, err := f.clients.GetBalance(context.Background(), clientID)
	require.NoError(t, err)
	return b
}
