package main

import (
	"context"
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
	"github.com/google/uuid"

	bshttp "github.com/brainstem-ai/brainstem/internal/adapter/http"
	"github.com/brainstem-ai/brainstem/internal/adapter/mcp"
	"github.com/brainstem-ai/brainstem/internal/adapter/nats"
	"github.com/brainstem-ai/brainstem/internal/adapter/otel"
	"github.com/brainstem-ai/brainstem/internal/adapter/ristretto"
	"github.com/brainstem-ai/brainstem/internal/adapter/sqlite"
	"github.com/brainstem-ai/brainstem/internal/adapter/ws"
	"github.com/brainstem-ai/brainstem/internal/config"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
	"github.com/brainstem-ai/brainstem/internal/logger"
	"github.com/brainstem-ai/brainstem/internal/middleware"
	"github.com/brainstem-ai/brainstem/internal/port/messagequeue"
	"github.com/brainstem-ai/brainstem/internal/ratelimit"
	"github.com/brainstem-ai/brainstem/internal/resilience"
	"github.com/brainstem-ai/brainstem/internal/service"
	"github.com/brainstem-ai/brainstem/internal/vault"
)

// runGateway runs the full gateway: HTTP surface, protocol endpoint,
// guard pipeline, node registry with optional bus sync.
func runGateway(args []string) error {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config (default: search standard locations)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable store: audit log and node registry share one SQLite file.
	db, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	store := sqlite.NewStore(db)

	// Credential vault: file first, environment overrides.
	credsPath := cfg.Vault.CredentialsFile
	if credsPath == "" {
		credsPath = vault.DefaultCredentialsPath()
	}
	vlt, err := vault.NewFromLoaders(vault.FileLoader(credsPath), vault.EnvLoader(cfg.Vault.EnvPrefix))
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	defer vlt.ReleaseAll()

	limiter := ratelimit.New(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	tracker := resilience.NewTracker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	hub := ws.NewHub()

	guardSvc, err := service.NewGuardService(service.GuardConfig{
		Profile:         cfg.Guard.Profile,
		RulesDir:        cfg.Guard.RulesDir,
		ScratchDir:      cfg.Guard.ScratchDir,
		ApprovalTimeout: cfg.Guard.ApprovalTimeout,
	}, store, hub)
	if err != nil {
		return fmt.Errorf("%w: guard: %v", errConfig, err)
	}
	if cfg.Guard.RulesDir != "" {
		if err := guardSvc.WatchRules(ctx); err != nil {
			log.Warn("rules watcher unavailable", "dir", cfg.Guard.RulesDir, "error", err)
		}
	}

	exec := service.NewExecutor(cfg.Exec.MaxConcurrent, cfg.Exec.MaxOutputBytes, cfg.Exec.Timeout)

	registry := service.NewRegistryService()
	if err := registry.RegisterAll(service.Builtins(service.BuiltinDeps{
		Exec:    exec,
		Sandbox: guardSvc.Sandbox(),
		Health:  tracker,
		MaxBody: cfg.Exec.MaxOutputBytes,
	})...); err != nil {
		return fmt.Errorf("register builtins: %w", err)
	}

	// Optional registry sync bus.
	var bus *nats.Queue
	if cfg.NATS.Enabled {
		bus, err = nats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("%w: nats %s: %v", errUnavailable, cfg.NATS.URL, err)
		}
		defer bus.Drain() //nolint:errcheck
	}

	nodeSvc, err := service.NewNodeService(service.NodeConfig{
		Self:              selfNode(cfg, registry),
		HeartbeatInterval: cfg.Node.HeartbeatInterval,
		StaleAfter:        cfg.Node.StaleAfter,
	}, store, queueOrNil(bus), hub)
	if err != nil {
		return fmt.Errorf("%w: node registry: %v", errConfig, err)
	}
	nodeSvc.StartSweeper(ctx)
	if bus != nil {
		unsub, err := nodeSvc.ListenAnnouncements(ctx)
		if err != nil {
			return fmt.Errorf("subscribe announcements: %w", err)
		}
		defer unsub()
	}

	// Optional telemetry.
	var metrics *otel.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel setup: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("otel shutdown", "error", err)
			}
		}()
		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	mcpServer := mcp.NewServer(mcp.ServerConfig{
		Name:        "brainstem-core",
		Version:     version,
		Caller:      cfg.MCP.DefaultCaller,
		CallTimeout: cfg.MCP.CallTimeout,
	}, mcp.ServerDeps{
		Catalog: registry,
		Guard:   guardSvc,
		Limiter: limiter,
		Audit:   guardSvc,
		Nodes:   nodeSvc,
		Health:  tracker,
		Metrics: metrics,
	})

	keyCache, err := ristretto.New(4 << 20)
	if err != nil {
		return fmt.Errorf("key cache: %w", err)
	}
	defer keyCache.Close()
	keyring := middleware.NewKeyring(cfg.Auth.APIKeys, keyCache)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.Otel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(bshttp.Logger)
	r.Use(bshttp.SecurityHeaders)
	r.Use(bshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Auth(keyring, cfg.MCP.DefaultCaller))
	r.Use(middleware.RateLimit(limiter))

	bshttp.MountRoutes(r, &bshttp.Handlers{
		Guard:   guardSvc,
		Nodes:   nodeSvc,
		Health:  tracker,
		Vault:   vlt,
		Hub:     hub,
		MCP:     mcpServer.Handler(),
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Approval-gated calls may block up to the approval timeout
		// plus execution; keep writes open well past that.
		WriteTimeout: 2 * cfg.Guard.ApprovalTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening",
			"addr", srv.Addr,
			"node_id", nodeSvc.Self().ID,
			"profile", guardSvc.ActiveProfile().Name,
			"tools", registry.Len(),
			"auth", cfg.Auth.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	nodeSvc.Announce(context.Background())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// queueOrNil keeps a nil *nats.Queue from becoming a non-nil interface.
func queueOrNil(q *nats.Queue) messagequeue.Queue {
	if q == nil {
		return nil
	}
	return q
}

// selfNode builds this gateway's own registry record from config,
// defaulting the ID to a fresh UUID and the capability list to the
// registered tool names.
func selfNode(cfg *config.Config, registry *service.RegistryService) node.Info {
	id := cfg.Node.ID
	if id == "" {
		id = uuid.NewString()
	}
	caps := cfg.Node.Capabilities
	if len(caps) == 0 {
		for _, spec := range registry.List() {
			caps = append(caps, spec.Name)
		}
	}
	var endpoints []node.Endpoint
	if cfg.Node.AdvertiseURL != "" {
		endpoints = []node.Endpoint{
			{Protocol: "http", Address: cfg.Node.AdvertiseURL},
			{Protocol: "mcp", Address: cfg.Node.AdvertiseURL + "/mcp"},
		}
	}
	return node.Info{
		ID:           id,
		Role:         node.Role(cfg.Node.Role),
		Trust:        node.TrustTier(cfg.Node.Trust),
		Endpoints:    endpoints,
		Capabilities: caps,
	}
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	return cfg, nil
}
