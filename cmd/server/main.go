package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"meshmap/internal/config"
	"meshmap/internal/handler"
	"meshmap/internal/hub"
	"meshmap/internal/layout"
	"meshmap/internal/observability"
	"meshmap/internal/pipeline"
	"meshmap/internal/repository/sqlite"
	"meshmap/internal/service"
	"meshmap/internal/source"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	var (
		cfg      *config.Config
		cfgFound string
		err      error
	)
	if *configPath != "" {
		cfg, cfgFound, err = config.LoadFromPath(*configPath)
	} else {
		cfg, cfgFound, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.New(cfg.Log)
	defer observability.Sync(logger)

	if cfgFound != "" {
		logger.Info("configuration loaded", zap.String("path", cfgFound))
	} else {
		logger.Info("no config file found, using defaults")
	}
	logger.Info("starting meshmap", zap.String("summary", cfg.Summary()))

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := service.NewEventBus()

	sseHub := hub.New(logger)
	go sseHub.Run(ctx)

	// Bridge pipeline events onto the SSE stream
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			sseHub.Broadcast(event)
		}
	}()

	engine := layout.NewEngine(layout.Config{
		Timeout:       cfg.Layout.Timeout.Duration(),
		MaxForceNodes: cfg.Layout.MaxForceNodes,
	}, logger)

	topoSvc := service.NewTopologyService(engine, pipeline.Config{
		Debounce: cfg.Layout.Debounce.Duration(),
	}, repo, eventBus, logger)
	topoSvc.Start(ctx)

	// Every source feeds the same pipeline; the tailnet poller also
	// refreshes the identity directory.
	registry := source.NewRegistry(logger)
	if cfg.Sources.Tailnet.Enabled {
		tailnet := source.NewTailnet(cfg.Sources.Tailnet, topoSvc.Ingest, topoSvc.SetDirectory, logger)
		if err := registry.Register(tailnet, source.Config{
			Enabled:      true,
			PollInterval: cfg.Sources.Tailnet.PollInterval.Duration(),
		}); err != nil {
			logger.Fatal("failed to register tailnet source", zap.Error(err))
		}
	}
	if cfg.Sources.Spool.Enabled {
		spool := source.NewFile(cfg.Sources.Spool.Dir, topoSvc.Ingest, logger)
		if err := registry.Register(spool, source.Config{Enabled: true}); err != nil {
			logger.Fatal("failed to register spool source", zap.Error(err))
		}
	}
	if cfg.Sources.Capture.Enabled {
		capture := source.NewCapture(cfg.Sources.Capture, topoSvc.Ingest, logger)
		if err := registry.Register(capture, source.Config{Enabled: true}); err != nil {
			logger.Fatal("failed to register capture source", zap.Error(err))
		}
	}
	if cfg.Sources.Seed.Enabled {
		seed := source.NewSeed(cfg.Sources.Seed.Path, topoSvc.SetDirectory, logger)
		if err := registry.Register(seed, source.Config{Enabled: true}); err != nil {
			logger.Fatal("failed to register seed source", zap.Error(err))
		}
	}
	if err := registry.Start(ctx); err != nil {
		logger.Error("failed to start source registry", zap.Error(err))
	}

	api := handler.NewTopologyHandler(topoSvc, logger)
	api.SetSourceSyncer(registry)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.Handle("GET /events", sseHub)

	finalHandler := handler.Chain(mux,
		handler.Recover(logger),
		handler.CORS,
		handler.Logger(logger),
	)

	// No WriteTimeout: the /events stream holds its response open for the
	// life of the client.
	server := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     finalHandler,
		ReadTimeout: cfg.HTTP.ReadTimeout.Duration(),
		IdleTimeout: cfg.HTTP.IdleTimeout.Duration(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Sources first so no new batches enter the pipeline, then the
	// pipeline itself, then the hub so open event streams terminate and
	// the server can drain.
	if err := registry.Stop(); err != nil {
		logger.Warn("source registry shutdown error", zap.Error(err))
	}
	topoSvc.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}
