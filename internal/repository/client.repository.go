package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	balanceMaxRetries = 3
	balanceBaseDelay  = 2 * time.Millisecond
)

type ClientRepository struct {
	*pg.DB
}

func NewClientRepository(db *pg.DB) *ClientRepository {
	return &ClientRepository{
		db,
	}
}

func (r *ClientRepository) Create(ctx context.Context, c *model.Client) (*model.Client, error) {
	entity := toClientEntity(c)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return toClientModel(entity), nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*model.Client, error) {
	var entity ClientEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return toClientModel(&entity), nil
}

func (r *ClientRepository) GetByDocument(ctx context.Context, documentID string, documentType model.DocumentType) (*model.Client, error) {
	var entity ClientEntity
	err := r.Read(ctx).
		Where("document_id = ? AND document_type = ?", documentID, string(documentType)).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return toClientModel(&entity), nil
}

func (r *ClientRepository) List(ctx context.Context, offset, limit int) ([]*model.Client, int64, error) {
	q := r.Read(ctx).Model(&ClientEntity{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*ClientEntity
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&entities).Error; err != nil {
		return nil, 0, err
	}
	return toClientModels(entities), total, nil
}

// Update applies the non-nil fields of req. Balance is never touched here.
func (r *ClientRepository) Update(ctx context.Context, id string, req model.ClientUpdateRequest) (*model.Client, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.PlanType != nil {
		updates["plan_type"] = string(*req.PlanType)
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.Limit != nil {
		updates["credit_limit"] = int64(*req.Limit)
	}

	res := r.Write(ctx).Model(&ClientEntity{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrClientNotFound
	}
	return r.GetByID(ctx, id)
}

// DebitBalance locks the client row, checks the plan and the balance and
// subtracts amount. It returns the balance after the debit, or
// ErrNotPrepaid when the locked row is not prepaid. Run it inside
// WithinTransaction so the lock covers the rest of the caller's writes.
func (r *ClientRepository) DebitBalance(ctx context.Context, clientID string, amount model.Cents) (model.Cents, error) {
	return r.withRetry(ctx, func() (model.Cents, error) {
		return r.debitAttempt(ctx, clientID, amount)
	})
}

func (r *ClientRepository) debitAttempt(ctx context.Context, clientID string, amount model.Cents) (model.Cents, error) {
	entity, err := r.lockClient(ctx, clientID)
	if err != nil {
		return 0, err
	}

	if entity.PlanType != string(model.PlanPrepaid) {
		return model.Cents(entity.Balance), ErrNotPrepaid
	}
	if entity.Balance < int64(amount) {
		return model.Cents(entity.Balance), ErrInsufficientBalance
	}

	// the plan and balance guards keep the update safe even where row locks are a no-op
	result := r.Write(ctx).
		Model(&ClientEntity{}).
		Where("id = ? AND plan_type = ? AND balance >= ?", clientID, string(model.PlanPrepaid), int64(amount)).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", int64(amount)),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrConcurrentUpdate
	}
	return model.Cents(entity.Balance - int64(amount)), nil
}

// CreditBalance adds amount to the balance and returns the new balance.
func (r *ClientRepository) CreditBalance(ctx context.Context, clientID string, amount model.Cents) (model.Cents, error) {
	return r.withRetry(ctx, func() (model.Cents, error) {
		return r.creditAttempt(ctx, clientID, amount)
	})
}

func (r *ClientRepository) creditAttempt(ctx context.Context, clientID string, amount model.Cents) (model.Cents, error) {
	entity, err := r.lockClient(ctx, clientID)
	if err != nil {
		return 0, err
	}

	result := r.Write(ctx).
		Model(&ClientEntity{}).
		Where("id = ?", clientID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", int64(amount)),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrConcurrentUpdate
	}
	return model.Cents(entity.Balance + int64(amount)), nil
}

func (r *ClientRepository) GetBalance(ctx context.Context, clientID string) (model.Cents, error) {
	var entity ClientEntity
	err := r.Read(ctx).Select("balance").Where("id = ?", clientID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrClientNotFound
		}
		return 0, err
	}
	return model.Cents(entity.Balance), nil
}

// lockClient is SELECT ... FOR UPDATE on the client row.
func (r *ClientRepository) lockClient(ctx context.Context, clientID string) (*ClientEntity, error) {
	var entity ClientEntity
	err := r.Write(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", clientID).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &entity, nil
}

// withRetry retries only ErrConcurrentUpdate, backing off 2ms, 4ms, 8ms.
func (r *ClientRepository) withRetry(ctx context.Context, attempt func() (model.Cents, error)) (model.Cents, error) {
	for i := 0; i <= balanceMaxRetries; i++ {
		balance, err := attempt()
		if err == nil || !errors.Is(err, ErrConcurrentUpdate) {
			return balance, err
		}
		if i < balanceMaxRetries {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(balanceBaseDelay * time.Duration(1<<i)):
			}
		}
	}
	return 0, fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, balanceMaxRetries+1)
}
