package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/bigchat/internal/chatclient"
	"github.com/nimasrn/bigchat/internal/model"
	"github.com/nimasrn/bigchat/internal/reconciler"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	addr := getEnv("CONSOLE_ADDR", ":8082")
	apiURL := getEnv("API_URL", "http://localhost:3000/api")
	relayURL := getEnv("RELAY_URL", "ws://localhost:3001/ws")

	log.Info().
		Str("addr", addr).
		Str("api", apiURL).
		Str("relay", relayURL).
		Msg("starting chat console")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := chatclient.NewClient(chatclient.Config{BaseURL: apiURL, MaxRetries: 2})
	sess, err := login(ctx, api)
	if err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}
	log.Info().Str("type", string(sess.Type)).Str("id", sess.ID).Msg("logged in")

	conversationID, err := openConversation(ctx, api)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open conversation")
	}

	rt := chatclient.NewRealtime(chatclient.RealtimeConfig{URL: relayURL, Token: api.Token})
	conv := reconciler.New(api, rt, reconciler.Config{
		ConversationID:       conversationID,
		DisconnectedInterval: getEnvDuration("POLL_DISCONNECTED", 3*time.Second),
		ConnectedInterval:    getEnvDuration("POLL_CONNECTED", 10*time.Second),
	})
	rt.OnEvent(conv.HandleEvent)
	rt.OnConnect(conv.ChannelUp)
	conv.OnChange(func(entries []reconciler.Entry) {
		log.Debug().Int("entries", len(entries)).Msg("timeline changed")
	})

	go func() {
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("realtime stopped")
		}
	}()
	go func() {
		if err := conv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("reconciler stopped")
		}
	}()

	srv := &http.Server{
		Addr:         addr,
		Handler:      SetupRouter(NewHandler(conv, rt.Connected)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("conversation_id", conversationID).Msg("console started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down console...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("console forced to shutdown")
	}
}

// login uses staff credentials when CONSOLE_USERNAME is set, otherwise the
// client document.
func login(ctx context.Context, api *chatclient.Client) (*chatclient.Session, error) {
	if username := os.Getenv("CONSOLE_USERNAME"); username != "" {
		return api.StaffLogin(ctx, username, os.Getenv("CONSOLE_PASSWORD"))
	}
	document := os.Getenv("CONSOLE_DOCUMENT_ID")
	if document == "" {
		return nil, errors.New("CONSOLE_DOCUMENT_ID or CONSOLE_USERNAME is required")
	}
	return api.ClientLogin(ctx, document, model.DocumentType(getEnv("CONSOLE_DOCUMENT_TYPE", string(model.DocumentCPF))))
}

// openConversation returns CONSOLE_CONVERSATION_ID, else the newest active
// conversation, else a new one.
func openConversation(ctx context.Context, api *chatclient.Client) (string, error) {
	if id := os.Getenv("CONSOLE_CONVERSATION_ID"); id != "" {
		return id, nil
	}
	convs, err := api.ListConversations(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range convs {
		if c.Active {
			return c.ID, nil
		}
	}
	conv, err := api.CreateConversation(ctx, model.ConversationCreateRequest{
		Title:    getEnv("CONSOLE_TITLE", "Console"),
		ClientID: os.Getenv("CONSOLE_CLIENT_ID"),
	})
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
