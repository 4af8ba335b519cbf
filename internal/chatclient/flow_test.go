package chatclient_test

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/bigchat/internal/auth"
	"github.com/nimasrn/bigchat/internal/chatclient"
	"github.com/nimasrn/bigchat/internal/events"
	"github.com/nimasrn/bigchat/internal/handlers"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/reconciler"
	"github.com/nimasrn/bigchat/internal/relay"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/internal/repository/repotest"
	"github.com/nimasrn/bigchat/internal/services"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
	"github.com/nimasrn/bigchat/pkg/pg"
	"github.com/nimasrn/bigchat/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	db       *pg.DB
	apiURL   string
	relayURL string
	staff    *services.StaffService
	hub      *relay.Hub
}

// startStack runs the REST api, the event stream and the relay in process,
// on sqlite and miniredis.
func startStack(t *testing.T) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db := repotest.NewDB(t)
	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter(ctx, "test:", &redis.Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)

	stream, err := events.NewStream(ctx, adapter, events.StreamConfig{Name: "message-events", PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	pricing, err := services.NewPricing("0.25", "0.50")
	require.NoError(t, err)

	clientRepo := repository.NewClientRepository(db)
	staffRepo := repository.NewStaffUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)

	tokens := auth.NewTokens("flow-secret", time.Hour)
	clientService := services.NewClientService(clientRepo, services.ClientDefaults{PrepaidBalance: 1000, PostpaidLimit: 10000})
	authService := services.NewAuthService(tokens, clientRepo, staffRepo, clientService)
	staffService := services.NewStaffService(staffRepo)
	ledger := services.NewLedgerService(db, clientRepo, repository.NewTransactionRepository(db))
	conversations := services.NewConversationService(conversationRepo, clientRepo)
	messages := services.NewMessageService(db, repository.NewMessageRepository(db), conversationRepo, clientRepo, ledger, pricing,
		services.WithPublisher(stream))

	engine := xhttp.NewServer(xhttp.DefaultServerOption)
	engine.Use(xhttp.RecoverMiddleware)
	guard := handlers.NewGuard(authService)
	g := engine.Router.Group("/api")
	handlers.RegisterAuthRoutes(g, handlers.NewAuthHandler(authService))
	handlers.RegisterConversationRoutes(g, guard, handlers.NewConversationHandler(conversations))
	handlers.RegisterMessageRoutes(g, guard, handlers.NewMessageHandler(messages))
	engine.DoRouting()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = engine.Server.Serve(ln) }()
	t.Cleanup(func() { _ = engine.Server.Shutdown() })

	hub := relay.NewHub()
	relayServer := relay.NewServer(hub, authService, conversations, relay.DefaultServerOption)
	dispatcher := relay.NewDispatcher(hub, conversations, relay.NewIdempotencyGuard(adapter, relay.DefaultIdempotencyConfig()), relay.DefaultDispatcherOption)
	dispatcher.Start(ctx)
	require.NoError(t, stream.Consume(ctx, dispatcher.Handle))
	t.Cleanup(func() {
		_ = stream.Stop(time.Second)
		dispatcher.Stop()
	})

	ts := httptest.NewServer(relayServer.Handler())
	t.Cleanup(func() {
		hub.CloseAll()
		ts.Close()
	})

	return &stack{
		db:       db,
		apiURL:   "http://" + ln.Addr().String() + "/api",
		relayURL: "ws" + strings.TrimPrefix(ts.URL, "http") + relay.Path,
		staff:    staffService,
		hub:      hub,
	}
}

type participant struct {
	api  *chatclient.Client
	rt   *chatclient.Realtime
	conv *reconciler.Reconciler
}

func join(t *testing.T, s *stack, api *chatclient.Client, conversationID string) *participant {
	t.Helper()
	rt := chatclient.NewRealtime(chatclient.RealtimeConfig{URL: s.relayURL, Token: api.Token, ReconnectMin: 10 * time.Millisecond})
	conv := reconciler.New(api, rt, reconciler.Config{
		ConversationID:       conversationID,
		DisconnectedInterval: 50 * time.Millisecond,
		ConnectedInterval:    time.Hour,
	})
	rt.OnEvent(conv.HandleEvent)
	rt.OnConnect(conv.ChannelUp)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rt.Run(ctx)
	require.Eventually(t, rt.Connected, 2*time.Second, 5*time.Millisecond)
	go conv.Run(ctx)
	require.Eventually(t, func() bool { return conv.Fetches() >= 1 }, 2*time.Second, 5*time.Millisecond)
	return &participant{api: api, rt: rt, conv: conv}
}

// TestFlow_JoinsRoomOnFirstConnect starts the channel and the reconciler
// together, the way the console binary does.
func TestFlow_JoinsRoomOnFirstConnect(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()

	client := repotest.Client(t, s.db, model.PlanPostpaid, 0)
	conversation := repotest.Conversation(t, s.db, client.ID)
	api := chatclient.NewClient(chatclient.Config{BaseURL: s.apiURL})
	_, err := api.ClientLogin(ctx, client.DocumentID, client.DocumentType)
	require.NoError(t, err)

	rt := chatclient.NewRealtime(chatclient.RealtimeConfig{URL: s.relayURL, Token: api.Token, ReconnectMin: 10 * time.Millisecond})
	conv := reconciler.New(api, rt, reconciler.Config{ConversationID: conversation.ID, ConnectedInterval: time.Hour})
	rt.OnEvent(conv.HandleEvent)
	rt.OnConnect(conv.ChannelUp)

	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go rt.Run(runCtx)
	go conv.Run(runCtx)

	room := relay.ConversationRoom(conversation.ID)
	require.Eventually(t, func() bool { return s.hub.RoomSize(room) == 1 }, 2*time.Second, 10*time.Millisecond)

	// the room survives a drop
	s.hub.CloseAll()
	require.Eventually(t, func() bool { return rt.Connected() && s.hub.RoomSize(room) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func contents(entries []reconciler.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func TestFlow_ClientAndStaffConverge(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()

	client := repotest.Client(t, s.db, model.PlanPrepaid, model.MustParseCents("10.00"))
	conversation := repotest.Conversation(t, s.db, client.ID)
	_, err := s.staff.Bootstrap(ctx, model.StaffCreateRequest{Username: "ana.suporte", Password: "segredo123", Role: model.RoleSupport})
	require.NoError(t, err)

	clientAPI := chatclient.NewClient(chatclient.Config{BaseURL: s.apiURL})
	_, err = clientAPI.ClientLogin(ctx, client.DocumentID, client.DocumentType)
	require.NoError(t, err)
	staffAPI := chatclient.NewClient(chatclient.Config{BaseURL: s.apiURL})
	_, err = staffAPI.StaffLogin(ctx, "ana.suporte", "segredo123")
	require.NoError(t, err)

	c := join(t, s, clientAPI, conversation.ID)
	a := join(t, s, staffAPI, conversation.ID)

	res, err := c.conv.Send(ctx, "preciso de ajuda", model.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(25), res.Message.Cost)

	require.Eventually(t, func() bool { return len(a.conv.Timeline()) == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = a.conv.Send(ctx, "como posso ajudar?", model.PriorityNormal)
	require.NoError(t, err)

	want := []string{"preciso de ajuda", "como posso ajudar?"}
	require.Eventually(t, func() bool { return len(c.conv.Timeline()) == 2 }, 2*time.Second, 10*time.Millisecond)

	// late pushes and polls must not duplicate anything
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, c.conv.Refresh(ctx))
	require.NoError(t, a.conv.Refresh(ctx))
	assert.Equal(t, want, contents(c.conv.Timeline()))
	assert.Equal(t, want, contents(a.conv.Timeline()))
}

func TestFlow_InsufficientFundsSurfaces(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()

	client := repotest.Client(t, s.db, model.PlanPrepaid, model.MustParseCents("0.10"))
	conversation := repotest.Conversation(t, s.db, client.ID)

	api := chatclient.NewClient(chatclient.Config{BaseURL: s.apiURL})
	_, err := api.ClientLogin(ctx, client.DocumentID, client.DocumentType)
	require.NoError(t, err)

	p := join(t, s, api, conversation.ID)
	_, err = p.conv.Send(ctx, "olá", model.PriorityNormal)
	assert.ErrorIs(t, err, chatclient.ErrInsufficientFunds)
	assert.Empty(t, p.conv.Timeline())
}

func TestFlow_ForeignConversationIsHidden(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()

	owner := repotest.Client(t, s.db, model.PlanPostpaid, 0)
	other := repotest.Client(t, s.db, model.PlanPostpaid, 0)
	conversation := repotest.Conversation(t, s.db, owner.ID)

	api := chatclient.NewClient(chatclient.Config{BaseURL: s.apiURL})
	_, err := api.ClientLogin(ctx, other.DocumentID, other.DocumentType)
	require.NoError(t, err)

	_, err = api.ListMessages(ctx, conversation.ID, 1, 20)
	assert.ErrorIs(t, err, chatclient.ErrNotFound)
}
