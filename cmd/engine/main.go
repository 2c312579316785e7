package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tavern-net/internal/config"
	"tavern-net/internal/database"
	"tavern-net/internal/engine"
	"tavern-net/internal/engine/actors"
	"tavern-net/internal/handlers"
	"tavern-net/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := database.Open(cfg.Database.Type, cfg.Database.URI(), cfg.Database.MongoDB)
	if err != nil {
		log.Fatalf("Failed to open %s database: %v", cfg.Database.Type, err)
	}

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.Bootstrap(bootCtx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to bootstrap %s database: %v", cfg.Database.Type, err)
	}

	metrics := utils.NewMetricsCollector()
	policy := actors.RetryPolicy{
		MaxAttempts:    cfg.Propagation.MaxAttempts,
		InitialBackoff: cfg.Propagation.InitialBackoff,
		MaxBackoff:     cfg.Propagation.MaxBackoff,
		AttemptTimeout: cfg.Propagation.AttemptTimeout,
	}
	tavernEngine := engine.NewEngine(store, policy, metrics)

	server := handlers.NewServer(tavernEngine, cfg.Debug)
	if !cfg.Server.MetricsEnabled {
		server.Metrics = nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HandleHealth())
	mux.HandleFunc("/health/live", server.HandleSimpleHealth())
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting server on %s (database: %s)", httpServer.Addr, cfg.Database.Type)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	if err := tavernEngine.Shutdown(shutdownCtx); err != nil {
		log.Printf("Engine shutdown: %v", err)
	}
}
