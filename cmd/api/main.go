package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/bigchat/internal/auth"
	"github.com/nimasrn/bigchat/internal/config"
	"github.com/nimasrn/bigchat/internal/events"
	"github.com/nimasrn/bigchat/internal/handlers"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/relay"
	"github.com/nimasrn/bigchat/internal/repository"
	"github.com/nimasrn/bigchat/internal/services"
	xhttp "github.com/nimasrn/bigchat/pkg/http"
	"github.com/nimasrn/bigchat/pkg/logger"
	"github.com/nimasrn/bigchat/pkg/pg"
	"github.com/nimasrn/bigchat/pkg/prom"
	"github.com/nimasrn/bigchat/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer logger.Sync()

	err := config.Load(config.EnvPathFromArgs(os.Args, ""))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hostname, _ := os.Hostname()
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Warn("failed registering metrics", "error", err)
	}
	if cfg.AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
	}

	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.IsDev())
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}
	if cfg.DBAutoMigrate {
		if err := repository.AutoMigrate(db.Write(ctx)); err != nil {
			logger.Error("failed migrating schema", "error", err)
			return
		}
	}

	redisAdap, err := redis.NewRedisAdapter(ctx, cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName,
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	stream, err := events.NewStream(ctx, redisAdap, events.StreamConfig{
		Name:              cfg.EventsStream,
		ConsumerGroup:     cfg.EventsConsumerGroup,
		ConsumerName:      cfg.EventsConsumerName,
		MaxRetries:        cfg.EventsMaxRetries,
		VisibilityTimeout: cfg.EventsVisibilityTimeout,
		PollInterval:      cfg.EventsPollInterval,
		BatchSize:         cfg.EventsBatchSize,
		MaxLen:            cfg.EventsMaxLen,
		EnableDLQ:         cfg.EventsEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating event stream", "error", err)
		return
	}

	pricing, err := services.NewPricing(cfg.MessagePriceNormal, cfg.MessagePriceUrgent)
	if err != nil {
		logger.Error("invalid message prices", "error", err)
		return
	}
	defaults, err := clientDefaults(cfg)
	if err != nil {
		logger.Error("invalid client defaults", "error", err)
		return
	}

	clientRepo := repository.NewClientRepository(db)
	staffRepo := repository.NewStaffUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	// services
	tokens := auth.NewTokens(cfg.JwtSecret, cfg.JwtExpiration)
	clientService := services.NewClientService(clientRepo, defaults)
	authService := services.NewAuthService(tokens, clientRepo, staffRepo, clientService)
	staffService := services.NewStaffService(staffRepo)
	ledgerService := services.NewLedgerService(db, clientRepo, transactionRepo)
	conversationService := services.NewConversationService(conversationRepo, clientRepo)
	messageService := services.NewMessageService(db, messageRepo, conversationRepo, clientRepo, ledgerService, pricing,
		services.WithPublisher(stream),
		services.WithPagination(services.Pagination{Default: cfg.MessagePaginationDefault, Max: cfg.MessagePaginationMax}),
		services.WithStrictTransitions(cfg.MessageStrictStatusTransitions),
	)
	healthService := services.NewHealthService(map[string]services.Pinger{"postgres": db, "redis": redisAdap, "events": stream})

	// transport
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.CORSMiddleware(cfg.CorsOrigins()...))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CompressMiddleware)
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))

	guard := handlers.NewGuard(authService)
	g := s.Router.Group("/api")
	handlers.RegisterAuthRoutes(g, handlers.NewAuthHandler(authService))
	handlers.RegisterClientRoutes(g, guard, handlers.NewClientHandler(clientService, ledgerService))
	handlers.RegisterUserRoutes(g, guard, handlers.NewUserHandler(staffService))
	handlers.RegisterConversationRoutes(g, guard, handlers.NewConversationHandler(conversationService))
	handlers.RegisterMessageRoutes(g, guard, handlers.NewMessageHandler(messageService))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(healthService))
	handlers.RegisterConfigRoutes(g, handlers.NewConfigHandler(handlers.PublicConfig{
		ApiUrl:        cfg.ApiUrl,
		MessagePrices: handlers.MessagePrices{Normal: pricing.Normal, Urgent: pricing.Urgent},
	}))

	// real-time relay
	hub := relay.NewHub()
	relayServer := relay.NewServer(hub, authService, conversationService, relay.ServerOption{
		AuthorizeJoins: cfg.RelayAuthorizeJoins,
		AllowedOrigins: cfg.CorsOrigins(),
	})
	guardStore := relay.NewIdempotencyGuard(redisAdap, relay.DefaultIdempotencyConfig())
	dispatcher := relay.NewDispatcher(hub, conversationService, guardStore, relay.DispatcherOption{Workers: cfg.EventsWorkers})
	dispatcher.Start(ctx)
	if err := stream.Consume(ctx, dispatcher.Handle); err != nil {
		logger.Error("failed consuming message events", "error", err)
		return
	}

	go func() {
		if err := relayServer.ListenAndServe(ctx, cfg.RelayListenAddr); err != nil {
			logger.Error("error in running relay", "error", err)
			stop()
		}
	}()
	go func() {
		if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if err := s.Shutdown(); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := stream.Stop(10 * time.Second); err != nil {
		logger.Warn("event stream shutdown", "error", err)
	}
	dispatcher.Stop()
}

func clientDefaults(cfg *config.Config) (services.ClientDefaults, error) {
	balance, err := model.ParseCents(cfg.ClientPrepaidInitialBalance)
	if err != nil {
		return services.ClientDefaults{}, err
	}
	limit, err := model.ParseCents(cfg.ClientPostpaidLimit)
	if err != nil {
		return services.ClientDefaults{}, err
	}
	return services.ClientDefaults{PrepaidBalance: balance, PostpaidLimit: limit}, nil
}
