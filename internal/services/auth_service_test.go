package services

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/bigchat/internal/auth"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthFixture(t *testing.T) (*AuthService, *ClientService, *StaffService, *fixture) {
	f := newFixture(t)
	staffRepo := repository.NewStaffUserRepository(f.db)
	clients := NewClientService(f.clients, ClientDefaults{
		PrepaidBalance: model.MustParseCents("10.00"),
		PostpaidLimit:  model.MustParseCents("100.00"),
	})
	authSvc := NewAuthService(auth.NewTokens("test-secret", time.Hour), f.clients, staffRepo, clients)
	return authSvc, clients, NewStaffService(staffRepo), f
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	authSvc, _, _, _ := newAuthFixture(t)
	ctx := context.Background()

	res, err := authSvc.Register(ctx, model.ClientCreateRequest{
		Name:         "Joana",
		DocumentID:   "123.456.789-01",
		DocumentType: "cpf",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	c := res.User.(*model.Client)
	assert.Equal(t, "12345678901", c.DocumentID)
	assert.Equal(t, model.PlanPrepaid, c.PlanType)
	assert.Equal(t, model.MustParseCents("10.00"), c.Balance)

	p, err := authSvc.Authenticate("Bearer " + res.Token)
	require.NoError(t, err)
	assert.Equal(t, c.ID, p.ID)
	assert.Equal(t, model.SenderClient, p.Type)

	login, err := authSvc.ClientLogin(ctx, model.ClientLoginRequest{DocumentID: "12345678901", DocumentType: model.DocumentCPF})
	require.NoError(t, err)
	assert.Equal(t, c.ID, login.User.(*model.Client).ID)

	_, err = authSvc.ClientLogin(ctx, model.ClientLoginRequest{DocumentID: "98765432100", DocumentType: model.DocumentCPF})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = authSvc.ClientLogin(ctx, model.ClientLoginRequest{DocumentID: "123", DocumentType: model.DocumentCPF})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = authSvc.Register(ctx, model.ClientCreateRequest{Name: "Dup", DocumentID: "12345678901", DocumentType: model.DocumentCPF})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = authSvc.Authenticate("")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = authSvc.Authenticate("Bearer junk")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthService_StaffLogin(t *testing.T) {
	authSvc, _, staffSvc, _ := newAuthFixture(t)
	ctx := context.Background()

	admin, err := staffSvc.Bootstrap(ctx, model.StaffCreateRequest{Username: "Root", Password: "supersecret", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "root", admin.Username)

	res, err := authSvc.StaffLogin(ctx, model.StaffLoginRequest{Username: "root", Password: "supersecret"})
	require.NoError(t, err)
	p, err := authSvc.Authenticate(res.Token)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())

	_, err = authSvc.StaffLogin(ctx, model.StaffLoginRequest{Username: "root", Password: "nope"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = authSvc.StaffLogin(ctx, model.StaffLoginRequest{Username: "ghost", Password: "whatever"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	t.Run("only admins create staff", func(t *testing.T) {
		support, err := staffSvc.Create(ctx, p, model.StaffCreateRequest{Username: "ana", Password: "123456"})
		require.NoError(t, err)
		assert.Equal(t, model.RoleSupport, support.Role)

		_, err = staffSvc.Create(ctx, model.Principal{ID: support.ID, Type: model.SenderAdmin, Role: model.RoleSupport},
			model.StaffCreateRequest{Username: "bia", Password: "123456"})
		assert.ErrorIs(t, err, ErrPermissionDenied)

		_, err = staffSvc.Create(ctx, p, model.StaffCreateRequest{Username: "ana", Password: "123456"})
		assert.ErrorIs(t, err, ErrConflict)

		users, err := staffSvc.List(ctx, p)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})
}

func TestClientService_Access(t *testing.T) {
	_, clients, _, f := newAuthFixture(t)
	ctx := context.Background()

	staff := repotest.Staff(t, f.db, model.RoleSupport)
	sp := staffPrincipal(staff)

	created, err := clients.Create(ctx, sp, model.ClientCreateRequest{
		Name:         "Empresa",
		DocumentID:   "12.345.678/0001-90",
		DocumentType: model.DocumentCNPJ,
		PlanType:     model.PlanPostpaid,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MustParseCents("100.00"), created.Limit)
	assert.Equal(t, model.Cents(0), created.Balance)

	cp := clientPrincipal(created)
	_, err = clients.Create(ctx, cp, model.ClientCreateRequest{Name: "x", DocumentID: "11111111111", DocumentType: model.DocumentCPF})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	me, err := clients.Me(ctx, cp)
	require.NoError(t, err)
	assert.Equal(t, created.ID, me.ID)

	other := repotest.Client(t, f.db, model.PlanPrepaid, 0)
	_, err = clients.Get(ctx, cp, other.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	inactive := false
	updated, err := clients.Update(ctx, sp, created.ID, model.ClientUpdateRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, err = clients.Update(ctx, sp, "missing", model.ClientUpdateRequest{Active: &inactive})
	assert.ErrorIs(t, err, ErrNotFound)

	list, total, err := clients.List(ctx, sp, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)
}
