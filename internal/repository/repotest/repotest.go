// Package repotest provides an in-memory database and fixtures for tests
// that need real repositories.
package repotest

import (
	"context"
	"testing"

	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB opens a private sqlite database with the full schema. The pool is
// pinned to one connection so every handle sees the same in-memory file and
// transactions are serialized.
func NewDB(t *testing.T) *pg.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), pg.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return pg.NewDB(db, db)
}

// Client inserts an active client with the given plan and balance.
func Client(t *testing.T, db *pg.DB, plan model.PlanType, balance model.Cents) *model.Client {
	t.Helper()
	c, err := repository.NewClientRepository(db).Create(context.Background(), &model.Client{
		Name:         "Cliente " + string(plan),
		Email:        "cliente@example.com",
		Phone:        "+5511999990000",
		DocumentID:   uniqueDocument(),
		DocumentType: model.DocumentCPF,
		PlanType:     plan,
		Balance:      balance,
		Limit:        model.MustParseCents("100.00"),
		Active:       true,
	})
	require.NoError(t, err)
	return c
}

// Staff inserts a staff user with the given role.
func Staff(t *testing.T, db *pg.DB, role model.StaffRole) *model.StaffUser {
	t.Helper()
	s, err := repository.NewStaffUserRepository(db).Create(context.Background(), &model.StaffUser{
		Username:     "agent-" + uniqueDocument(),
		Name:         "Agent",
		Role:         role,
		PasswordHash: "x",
		Active:       true,
	})
	require.NoError(t, err)
	return s
}

// Conversation inserts an active conversation owned by clientID.
func Conversation(t *testing.T, db *pg.DB, clientID string) *model.Conversation {
	t.Helper()
	c, err := repository.NewConversationRepository(db).Create(context.Background(), &model.Conversation{
		Title:    "Suporte",
		ClientID: clientID,
		Active:   true,
	})
	require.NoError(t, err)
	return c
}
