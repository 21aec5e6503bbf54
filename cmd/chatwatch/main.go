package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dinehub/realtime/internal/api"
	"github.com/dinehub/realtime/internal/config"
	"github.com/dinehub/realtime/internal/connection"
	"github.com/dinehub/realtime/internal/history"
	"github.com/dinehub/realtime/internal/model"
	"github.com/dinehub/realtime/internal/router"
	"github.com/dinehub/realtime/internal/session"
	"github.com/dinehub/realtime/internal/stream"
	"github.com/dinehub/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.local.yaml", "path to config file")
	roomFlag := flag.String("room", "", "room key to watch (default: own session key)")
	say := flag.String("say", "", "publish a message into the room, then keep watching")
	pages := flag.Int("pages", 1, "history pages to preload")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting chatwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store, err := newStore(ctx, cfg.Session)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}

	resolver := session.NewResolver(store, logger)
	sess, err := resolver.Resolve(ctx)
	if err != nil {
		logger.Error("failed to resolve session", "error", err)
		os.Exit(1)
	}
	logger.Info("session resolved",
		"kind", string(sess.Kind),
		"session_key", sess.SessionKey,
	)

	apiClient := api.NewClient(
		cfg.API.BaseURL,
		resolver,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(cfg.API.RateLimit),
	)

	manager := connection.NewManager(managerConfig(cfg), resolver, logger)
	defer manager.DisconnectAll()
	routes := router.NewRouter(manager, logger)

	if err := manager.Connect(ctx, connection.EndpointChat); err != nil {
		logger.Error("failed to connect chat endpoint", "error", err)
		os.Exit(1)
	}

	// Notifications need an authenticated session; guests watch chat only.
	if !sess.IsGuest() {
		if err := manager.Connect(ctx, connection.EndpointNotification); err != nil {
			logger.Warn("notification endpoint unavailable", "error", err)
		} else {
			_, err := routes.Notifications(
				connection.EndpointNotification,
				model.TopicUserNotifications,
				func(n model.Notification) {
					fmt.Printf("[notify] %s: %s\n", n.Title, n.Content)
				},
			)
			if err != nil {
				logger.Warn("failed to route notifications", "error", err)
			}
		}
	}

	roomKey := *roomFlag
	if roomKey == "" {
		roomKey = sess.SessionKey
	}

	merger := stream.NewMerger()
	loader := history.NewLoader(apiClient, merger, roomKey, cfg.History.PageSize, logger)
	defer loader.Cancel()

	for i := 0; i < *pages && loader.HasMore(); i++ {
		if err := loader.LoadOlder(ctx); err != nil {
			logger.Warn("history preload failed", "error", err)
			break
		}
	}
	for _, msg := range merger.Snapshot() {
		printMessage(msg)
	}

	route, err := routes.RoomMessages(connection.EndpointChat, roomKey, func(msg model.Message) {
		if merger.AppendLive(msg) {
			printMessage(msg)
		}
	})
	if err != nil {
		logger.Error("failed to route room messages", "error", err)
		os.Exit(1)
	}
	defer route.Cancel()

	if *say != "" {
		client, ok := manager.Client(connection.EndpointChat)
		if !ok {
			logger.Error("chat endpoint has no client")
			os.Exit(1)
		}
		outbound := model.Message{
			ID:         model.NewMessageID(),
			RoomKey:    roomKey,
			SenderType: senderFor(sess),
			Content:    *say,
			Timestamp:  time.Now(),
		}
		if err := client.Publish(model.RoomTopic(roomKey), outbound); err != nil {
			logger.Warn("publish failed, message not delivered", "error", err)
		}
	}

	logger.Info("watching room",
		"room_key", roomKey,
		"status", manager.Status(),
	)

	<-ctx.Done()

	logger.Info("shutting down",
		"messages", merger.Len(),
	)
}

func managerConfig(cfg *config.Config) connection.ManagerConfig {
	client := connection.DefaultClientConfig()
	client.HandshakeTimeout = cfg.Endpoints.HandshakeTimeout
	client.WriteTimeout = cfg.Endpoints.WriteTimeout
	client.PingInterval = cfg.Endpoints.PingInterval
	client.ReadTimeout = cfg.Endpoints.ReadTimeout
	client.ReconnectBaseDelay = cfg.Endpoints.ReconnectBaseDelay
	client.ReconnectAttempts = cfg.Endpoints.ReconnectAttempts

	return connection.ManagerConfig{
		NotificationURL: cfg.Endpoints.NotificationURL,
		ChatURL:         cfg.Endpoints.ChatURL,
		Client:          client,
	}
}

func newStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Store {
	case "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		return session.NewRedisStore(ctx, cfg.Redis)
	default:
		return session.NewFileStore(cfg.FilePath), nil
	}
}

func senderFor(sess model.Session) model.SenderType {
	if sess.IsGuest() {
		return model.SenderGuest
	}
	return model.SenderUser
}

func printMessage(msg model.Message) {
	marker := ""
	if msg.Ephemeral {
		marker = " (typing)"
	}
	fmt.Printf("[%s] %s%s: %s\n",
		msg.Timestamp.Format(time.TimeOnly),
		msg.SenderType,
		marker,
		msg.Content,
	)
}
