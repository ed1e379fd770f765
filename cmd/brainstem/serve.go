package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/brainstem-ai/brainstem/internal/adapter/mcp"
	"github.com/brainstem-ai/brainstem/internal/adapter/sqlite"
	"github.com/brainstem-ai/brainstem/internal/adapter/ws"
	"github.com/brainstem-ai/brainstem/internal/ratelimit"
	"github.com/brainstem-ai/brainstem/internal/resilience"
	"github.com/brainstem-ai/brainstem/internal/service"
)

// runServe serves the protocol over stdio for planner-spawned
// subprocesses. Stdout carries the protocol stream, so all logging
// goes to stderr.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx := context.Background()

	db, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	store := sqlite.NewStore(db)

	guardSvc, err := service.NewGuardService(service.GuardConfig{
		Profile:         cfg.Guard.Profile,
		RulesDir:        cfg.Guard.RulesDir,
		ScratchDir:      cfg.Guard.ScratchDir,
		ApprovalTimeout: cfg.Guard.ApprovalTimeout,
	}, store, ws.NewHub())
	if err != nil {
		return fmt.Errorf("%w: guard: %v", errConfig, err)
	}

	exec := service.NewExecutor(cfg.Exec.MaxConcurrent, cfg.Exec.MaxOutputBytes, cfg.Exec.Timeout)
	tracker := resilience.NewTracker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	registry := service.NewRegistryService()
	if err := registry.RegisterAll(service.Builtins(service.BuiltinDeps{
		Exec:    exec,
		Sandbox: guardSvc.Sandbox(),
		Health:  tracker,
		MaxBody: cfg.Exec.MaxOutputBytes,
	})...); err != nil {
		return fmt.Errorf("register builtins: %w", err)
	}

	limiter := ratelimit.New(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)

	srv := mcp.NewServer(mcp.ServerConfig{
		Name:        "brainstem-core",
		Version:     version,
		Caller:      cfg.MCP.DefaultCaller,
		CallTimeout: cfg.MCP.CallTimeout,
	}, mcp.ServerDeps{
		Catalog: registry,
		Guard:   guardSvc,
		Limiter: limiter,
		Audit:   guardSvc,
		Health:  tracker,
	})

	log.Info("serving protocol on stdio", "profile", guardSvc.ActiveProfile().Name, "tools", registry.Len())
	return srv.ServeStdio()
}
