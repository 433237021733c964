// Package main is the entry point for the otelstore telemetry server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fidde/otelstore/internal/api"
	"github.com/fidde/otelstore/internal/config"
	"github.com/fidde/otelstore/internal/receiver"
	"github.com/fidde/otelstore/internal/retention"
	"github.com/fidde/otelstore/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log.Println("Starting otelstore...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Open the SQLite store and run migrations
	store, err := sqlite.New(sqlite.Config{
		DSN:     cfg.DatabaseDSN,
		Verbose: cfg.Verbose,
	})
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	log.Printf("Storage ready at %s", cfg.DatabaseDSN)

	// Retention sweeper, opt-in
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweeper *retention.Sweeper
	if cfg.Retention.Enabled {
		sweeper = retention.NewSweeper(store, cfg.Retention)
		go sweeper.Run(ctx)
	} else {
		// Keep the admin endpoint usable for manual sweeps.
		sweeper = retention.NewSweeper(store, cfg.Retention)
		log.Println("Background retention disabled; manual sweeps via the admin API")
	}

	// Create OTLP receivers and the REST API server
	httpReceiver := receiver.NewHTTPReceiver(cfg.OTLPHTTPAddr, store, cfg.Verbose)
	grpcReceiver := receiver.NewGRPCReceiver(cfg.OTLPGRPCAddr, store, cfg.Verbose)
	apiServer := api.NewServer(cfg.APIAddr, store, sweeper)

	// Start pprof server for profiling (separate port)
	go func() {
		log.Printf("Starting pprof server on http://%s/debug/pprof", cfg.PprofAddr)
		if err := http.ListenAndServe(cfg.PprofAddr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()

	// Start servers in goroutines
	errChan := make(chan error, 3)

	go func() {
		log.Printf("Starting OTLP HTTP receiver on %s", cfg.OTLPHTTPAddr)
		if err := httpReceiver.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("OTLP HTTP receiver error: %w", err)
		}
	}()

	go func() {
		log.Printf("Starting OTLP gRPC receiver on %s", cfg.OTLPGRPCAddr)
		if err := grpcReceiver.Start(); err != nil {
			errChan <- fmt.Errorf("OTLP gRPC receiver error: %w", err)
		}
	}()

	go func() {
		log.Printf("Starting REST API server on %s", cfg.APIAddr)
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	log.Println("OTLP endpoints:")
	log.Printf("  - HTTP: http://%s/v1/traces", cfg.OTLPHTTPAddr)
	log.Printf("  - HTTP: http://%s/v1/metrics", cfg.OTLPHTTPAddr)
	log.Printf("  - HTTP: http://%s/v1/logs", cfg.OTLPHTTPAddr)
	log.Printf("  - gRPC: %s", cfg.OTLPGRPCAddr)
	log.Println("API endpoints:")
	log.Printf("  - Traces: http://%s/api/v1/traces", cfg.APIAddr)
	log.Printf("  - Service map: http://%s/api/v1/servicemap", cfg.APIAddr)
	log.Printf("  - Metrics: http://%s/api/v1/metrics", cfg.APIAddr)
	log.Printf("  - Logs: http://%s/api/v1/logs", cfg.APIAddr)
	log.Printf("  - Health: http://%s/api/v1/health", cfg.APIAddr)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v, shutting down...", sig)
	}

	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down servers...")
	if err := httpReceiver.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down OTLP HTTP receiver: %v", err)
	}
	if err := grpcReceiver.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down OTLP gRPC receiver: %v", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}

	log.Println("Closing storage...")
	if err := store.Close(); err != nil {
		log.Printf("Error closing storage: %v", err)
	}

	log.Println("Shutdown complete")
}
