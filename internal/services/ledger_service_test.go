package services

import (
	"context"
	"math"
	"testing"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_Credit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := repotest.Client(t, f.db, model.PlanPrepaid, model.MustParseCents("0.05"))
	staff := repotest.Staff(t, f.db, model.RoleAdmin)

	tx, err := f.ledger.Credit(ctx, staffPrincipal(staff), client.ID, model.MustParseCents("10.00"))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCredit, tx.Type)
	assert.Equal(t, model.MustParseCents("10.05"), tx.BalanceAfter)
	assert.Nil(t, tx.MessageID)
	assert.Equal(t, model.MustParseCents("10.05"), f.balance(t, client.ID))

	_, err = f.ledger.Credit(ctx, clientPrincipal(client), client.ID, 100)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.ledger.Credit(ctx, staffPrincipal(staff), client.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.ledger.Credit(ctx, staffPrincipal(staff), "missing", 100)
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("transactions visible to self and staff", func(t *testing.T) {
		txs, total, err := f.ledger.Transactions(ctx, clientPrincipal(client), client.ID, 1, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Len(t, txs, 1)

		other := repotest.Client(t, f.db, model.PlanPrepaid, 0)
		_, _, err = f.ledger.Transactions(ctx, clientPrincipal(other), client.ID, 1, 10)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})
}

func TestLedgerService_Debit_SkipsPostpaidAndZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	postpaid := repotest.Client(t, f.db, model.PlanPostpaid, 0)
	require.NoError(t, f.ledger.Debit(ctx, postpaid.ID, model.MustParseCents("0.50"), "m1"))

	prepaid := repotest.Client(t, f.db, model.PlanPrepaid, 0)
	require.NoError(t, f.ledger.Debit(ctx, prepaid.ID, 0, "m2"))

	_, total, err := f.transactions.ListByClient(ctx, postpaid.ID, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

// A client object read before a plan change must not decide the charge.
func TestLedgerService_Debit_UsesPlanOfLockedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("switched to postpaid", func(t *testing.T) {
		c := repotest.Client(t, f.db, model.PlanPrepaid, model.MustParseCents("1.00"))
		postpaid := model.PlanPostpaid
		_, err := f.clients.Update(ctx, c.ID, model.ClientUpdateRequest{PlanType: &postpaid})
		require.NoError(t, err)

		require.NoError(t, f.ledger.Debit(ctx, c.ID, model.MustParseCents("0.25"), "m1"))
		assert.Equal(t, model.MustParseCents("1.00"), f.balance(t, c.ID))
		_, total, err := f.transactions.ListByClient(ctx, c.ID, 0, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("switched to prepaid", func(t *testing.T) {
		c := repotest.Client(t, f.db, model.PlanPostpaid, 0)
		prepaid := model.PlanPrepaid
		_, err := f.clients.Update(ctx, c.ID, model.ClientUpdateRequest{PlanType: &prepaid})
		require.NoError(t, err)

		err = f.ledger.Debit(ctx, c.ID, model.MustParseCents("0.25"), "m2")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestPricing(t *testing.T) {
	p, err := NewPricing("0.25", "0.50")
	require.NoError(t, err)
	assert.Equal(t, model.Cents(25), p.Price(model.PriorityNormal))
	assert.Equal(t, model.Cents(50), p.Price(model.PriorityUrgent))

	_, err = NewPricing("0.255", "0.50")
	assert.Error(t, err)
	_, err = NewPricing("-1", "0.50")
	assert.Error(t, err)

	page, limit := DefaultPagination.Normalize(-3, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, limit)

	page, limit = DefaultPagination.Normalize(math.MaxInt, 100)
	assert.Equal(t, 100, limit)
	assert.Positive(t, offset(page, limit))
	assert.LessOrEqual(t, offset(page, limit), maxOffset)
}
