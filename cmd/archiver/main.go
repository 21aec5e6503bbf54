package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dinehub/realtime/internal/api"
	"github.com/dinehub/realtime/internal/archive"
	"github.com/dinehub/realtime/internal/config"
	"github.com/dinehub/realtime/internal/connection"
	"github.com/dinehub/realtime/internal/database"
	"github.com/dinehub/realtime/internal/model"
	"github.com/dinehub/realtime/internal/room"
	"github.com/dinehub/realtime/internal/router"
	"github.com/dinehub/realtime/internal/session"
	"github.com/dinehub/realtime/internal/version"
)

// refreshInterval is how often the room list is reconciled against the
// server to pick up rooms created since the last pass.
const refreshInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/archiver.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting archiver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateDatabase(); err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(1)
	}
	if cfg.Instance.AdminID == 0 {
		logger.Error("instance.admin_id is required, archiver runs as an admin")
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

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected", "host", cfg.Database.Host)

	writer := archive.NewWriter(cfg.Archive, db, logger)
	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start archive writer", "error", err)
		os.Exit(1)
	}

	store, err := newStore(ctx, cfg.Session)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	resolver := session.NewResolver(store, logger)

	apiClient := api.NewClient(
		cfg.API.BaseURL,
		resolver,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(cfg.API.RateLimit),
	)
	registry := room.NewRegistry(apiClient, cfg.Instance.AdminID, logger)

	manager := connection.NewManager(managerConfig(cfg), resolver, logger)
	routes := router.NewRouter(manager, logger)

	if err := manager.Connect(ctx, connection.EndpointChat); err != nil {
		logger.Error("failed to connect chat endpoint", "error", err)
		os.Exit(1)
	}

	if _, err := routes.Notifications(
		connection.EndpointChat,
		model.TopicAdminAlerts,
		func(n model.Notification) {
			logger.Info("admin alert", "title", n.Title, "content", n.Content)
		},
	); err != nil {
		logger.Warn("failed to route admin alerts", "error", err)
	}

	tracker := &roomTracker{
		registry: registry,
		routes:   routes,
		writer:   writer,
		logger:   logger,
		watched:  make(map[string]*router.Route),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		tracker.reconcile(gctx)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				tracker.reconcile(gctx)
			}
		}
	})

	logger.Info("archiver running", "admin_id", cfg.Instance.AdminID)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reconcile loop failed", "error", err)
	}

	logger.Info("shutting down...")
	manager.DisconnectAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	writer.Stop(shutdownCtx)

	stats := writer.Stats()
	logger.Info("archiver stopped",
		"written", stats.Written,
		"dropped", stats.Dropped,
	)
}

// roomTracker keeps a per-room route registered for every known room.
type roomTracker struct {
	registry *room.Registry
	routes   *router.Router
	writer   *archive.Writer
	logger   *slog.Logger

	mu      sync.Mutex
	watched map[string]*router.Route
}

// reconcile refreshes the room list and subscribes rooms seen for the
// first time. Resolved rooms stay subscribed; traffic on them is rare and
// still worth archiving.
func (t *roomTracker) reconcile(ctx context.Context) {
	if err := t.registry.Refresh(ctx); err != nil {
		t.logger.Warn("room refresh failed", "error", err)
		return
	}

	for _, r := range t.registry.Rooms() {
		t.mu.Lock()
		_, ok := t.watched[r.RoomID]
		t.mu.Unlock()
		if ok {
			continue
		}

		roomID := r.RoomID
		route, err := t.routes.RoomMessages(connection.EndpointChat, roomID, func(msg model.Message) {
			t.registry.Observe(msg)
			t.writer.Enqueue(msg)
		})
		if err != nil {
			t.logger.Warn("failed to watch room",
				"room_id", roomID,
				"error", err,
			)
			continue
		}

		t.mu.Lock()
		t.watched[roomID] = route
		t.mu.Unlock()
		t.logger.Info("watching room", "room_id", roomID)
	}
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
