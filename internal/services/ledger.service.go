package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/pkg/prom"
)

// LedgerService owns every balance change and its journal row.
type LedgerService struct {
	tx           Transactor
	clients      ClientRepository
	transactions TransactionRepository
	now          func() time.Time
}

func NewLedgerService(tx Transactor, clients ClientRepository, transactions TransactionRepository) *LedgerService {
	return &LedgerService{
		tx:           tx,
		clients:      clients,
		transactions: transactions,
		now:          time.Now,
	}
}

// Debit charges a prepaid client for a message. Call it inside the caller's
// transaction: the row lock taken by the repository lasts until that
// transaction ends, so two concurrent sends cannot both pass the check.
// The plan is read from the locked row. Postpaid clients and zero amounts
// are a no-op.
func (s *LedgerService) Debit(ctx context.Context, clientID string, amount model.Cents, messageID string) error {
	if amount == 0 {
		return nil
	}

	after, err := s.clients.DebitBalance(ctx, clientID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrNotPrepaid) {
			return nil
		}
		if errors.Is(err, repository.ErrInsufficientBalance) {
			prom.LedgerDebit("insufficient")
			return ErrInsufficientFunds
		}
		if errors.Is(err, repository.ErrClientNotFound) {
			return ErrNotFound
		}
		prom.LedgerDebit("error")
		return fmt.Errorf("debit balance: %w", err)
	}

	_, err = s.transactions.Create(ctx, &model.Transaction{
		ClientID:     clientID,
		Amount:       amount,
		Type:         model.TransactionDebit,
		MessageID:    &messageID,
		BalanceAfter: after,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("journal debit: %w", err)
	}
	prom.LedgerDebit("ok")
	return nil
}

// Credit tops up a client balance. Only staff may credit.
func (s *LedgerService) Credit(ctx context.Context, p model.Principal, clientID string, amount model.Cents) (*model.Transaction, error) {
	if !p.IsStaff() {
		return nil, ErrPermissionDenied
	}
	if amount <= 0 {
		return nil, invalidInput(errors.New("amount must be positive"))
	}

	var journal *model.Transaction
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		after, err := s.clients.CreditBalance(ctx, clientID, amount)
		if err != nil {
			if errors.Is(err, repository.ErrClientNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("credit balance: %w", err)
		}
		journal, err = s.transactions.Create(ctx, &model.Transaction{
			ClientID:     clientID,
			Amount:       amount,
			Type:         model.TransactionCredit,
			BalanceAfter: after,
			CreatedAt:    s.now().UTC(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	prom.LedgerCredit()
	return journal, nil
}

// Transactions lists a client's journal, newest first. Staff see any client,
// a client only itself.
func (s *LedgerService) Transactions(ctx context.Context, p model.Principal, clientID string, page, limit int) ([]*model.Transaction, int64, error) {
	if !p.IsStaff() && p.ID != clientID {
		return nil, 0, ErrPermissionDenied
	}
	page, limit = DefaultPagination.Normalize(page, limit)
	return s.transactions.ListByClient(ctx, clientID, offset(page, limit), limit)
}
