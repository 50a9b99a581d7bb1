package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	dhhttp "github.com/deckhand-ai/deckhand/internal/adapter/http"
	"github.com/deckhand-ai/deckhand/internal/adapter/mcp"
	dhnats "github.com/deckhand-ai/deckhand/internal/adapter/nats"
	"github.com/deckhand-ai/deckhand/internal/adapter/natskv"
	"github.com/deckhand-ai/deckhand/internal/adapter/opencode"
	"github.com/deckhand-ai/deckhand/internal/adapter/otel"
	"github.com/deckhand-ai/deckhand/internal/adapter/postgres"
	"github.com/deckhand-ai/deckhand/internal/adapter/ristretto"
	"github.com/deckhand-ai/deckhand/internal/adapter/tiered"
	"github.com/deckhand-ai/deckhand/internal/adapter/ws"
	"github.com/deckhand-ai/deckhand/internal/config"
	"github.com/deckhand-ai/deckhand/internal/logger"
	"github.com/deckhand-ai/deckhand/internal/middleware"
	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
	"github.com/deckhand-ai/deckhand/internal/port/backend"
	"github.com/deckhand-ai/deckhand/internal/port/messagequeue"
	"github.com/deckhand-ai/deckhand/internal/port/notifier"
	"github.com/deckhand-ai/deckhand/internal/service"
)

const version = "0.1.0"

// KV bucket names. The idempotency bucket holds replayed responses keyed by
// Idempotency-Key; the cache bucket is the shared second cache level.
const (
	bucketIdempotency = "deckhand_idempotency"
	bucketCache       = "deckhand_cache"

	idempotencyTTL = 24 * time.Hour
)

// Per-IP API rate limits. WebSocket and health endpoints are exempt.
const (
	apiRatePerSec = 50
	apiBurst      = 100
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}

	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if err := run(flags); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(flags config.CLIFlags) error {
	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return err
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"path", yamlPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"transport", cfg.Stream.Transport,
	)

	holder := config.NewHolder(cfg, yamlPath)

	ctx := context.Background()

	// --- Telemetry ---

	shutdownOtel, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := dhnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	slog.Info("nats connected", "url", cfg.NATS.URL)

	idemKV, err := queue.KeyValue(ctx, bucketIdempotency, idempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}
	cacheKV, err := queue.KeyValue(ctx, bucketCache, cfg.Cache.DefaultTTL)
	if err != nil {
		return fmt.Errorf("cache bucket: %w", err)
	}

	// Conversation reads hit the in-process level first, then the shared
	// KV level that survives restarts.
	l1, err := ristretto.New(cfg.Cache.MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	conversationCache := tiered.New(l1, natskv.New(cacheKV), cfg.Cache.DefaultTTL)

	// --- Agent backend ---

	var dialer agentstream.Dialer = &opencode.SSEDialer{}
	if cfg.Stream.Transport == "socket" {
		dialer = &opencode.SocketDialer{}
	}
	resolver := &opencode.FileResolver{}
	var launcher backend.Launcher
	if cfg.Backend.Command != "" {
		launcher = opencode.NewLauncher(cfg.Backend, resolver)
	}

	// --- Notifications ---

	notifiers := []notifier.Notifier{dhnats.NewNotifier(queue)}
	for name, opts := range cfg.Notifications.Providers {
		n, err := notifier.New(name, opts)
		if err != nil {
			slog.Warn("notifier disabled", "provider", name, "error", err)
			continue
		}
		notifiers = append(notifiers, n)
		slog.Info("notifier registered", "provider", name)
	}
	notifySvc := service.NewNotificationService(notifiers, cfg.Notifications.Enabled)

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	// Fires from the stream event loop, so the slow parts run detached.
	onUnattended := func(workspaceID, sessionID string) {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			payload, _ := json.Marshal(messagequeue.SessionFinishedPayload{
				WorkspaceID: workspaceID,
				SessionID:   sessionID,
			})
			if err := queue.Publish(nctx, messagequeue.SubjectSessionFinished, payload); err != nil {
				slog.Warn("publish session finished", "session_id", sessionID, "error", err)
			}

			notifySvc.Notify(nctx, notifier.Notification{
				Title:       "Agent finished",
				Message:     fmt.Sprintf("The agent completed a response in session %s while nobody was attached.", sessionID),
				Level:       notifier.LevelInfo,
				Source:      "session.finished",
				WorkspaceID: workspaceID,
				SessionID:   sessionID,
			})
		}()
	}

	sup := service.NewSupervisor(dialer, opencode.Decoder{}, resolver, launcher,
		hub, queue, metrics, cfg.Stream.MaxBackoff, onUnattended)
	sessionSvc := service.NewSessionService(store, conversationCache, sup, hub, queue, metrics)
	workspaceSvc := service.NewWorkspaceService(store, sup)

	// --- MCP ---

	var mcpSrv *mcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = mcp.NewServer(mcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "deckhand",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, mcp.ServerDeps{
			Workspaces: workspaceSvc,
			Sessions:   sessionSvc,
			Sender:     sessionSvc,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		slog.Info("mcp server listening", "addr", cfg.MCP.Addr)
	}

	// --- HTTP ---

	handlers := &dhhttp.Handlers{
		Workspaces: workspaceSvc,
		Sessions:   sessionSvc,
	}

	rl := middleware.NewRateLimiter(apiRatePerSec, apiBurst)
	stopCleanup := rl.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(dhhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(dhhttp.SecurityHeaders)
	r.Use(dhhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(middleware.Auth(cfg.Server.TokenHash))

	r.Get("/health", healthHandler(holder, pool, queue))

	// Live event feed. Long-lived, so it stays outside the timeout and
	// rate-limit stack.
	r.Get("/ws", hub.HandleWS)

	r.Group(func(api chi.Router) {
		api.Use(chimw.Timeout(60 * time.Second))
		api.Use(rl.Handler)
		dhhttp.MountRoutes(api, handlers, idemKV)
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- Signals ---

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			slog.Info("config reloaded", "path", yamlPath)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case sig := <-done:
		slog.Info("shutting down", "signal", sig.String())
	}

	// Stop intake first, then the event pipeline, then flush what remains.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			slog.Warn("mcp shutdown", "error", err)
		}
	}
	sup.Shutdown()
	sessionSvc.Close()
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
	if err := shutdownOtel(shutdownCtx); err != nil {
		slog.Warn("otel shutdown", "error", err)
	}
	return nil
}

// healthHandler reports daemon health with live dependency checks.
func healthHandler(holder *config.Holder, pool *pgxpool.Pool, queue *dhnats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status    string `json:"status"`
		Version   string `json:"version"`
		Postgres  string `json:"postgres"`
		NATS      string `json:"nats"`
		Transport string `json:"transport"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		st := healthStatus{
			Status:    "ok",
			Version:   version,
			Postgres:  "ok",
			NATS:      "ok",
			Transport: holder.Get().Stream.Transport,
		}
		if err := pool.Ping(ctx); err != nil {
			st.Status = "degraded"
			st.Postgres = "unreachable"
		}
		if !queue.IsConnected() {
			st.Status = "degraded"
			st.NATS = "disconnected"
		}

		w.Header().Set("Content-Type", "application/json")
		if st.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}
