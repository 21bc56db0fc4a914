package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halderavik/cbc-design-MCP/catalog"
	"github.com/halderavik/cbc-design-MCP/internal/config"
	"github.com/halderavik/cbc-design-MCP/internal/logger"
	"github.com/halderavik/cbc-design-MCP/internal/metrics"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	opts := logger.OptionsFromEnv()
	opts.Level = cfg.Log.Level
	opts.SampleRate = max(opts.SampleRate, cfg.Log.SampleRate)
	opts.OTEL = opts.OTEL || cfg.Log.OTEL
	log := logger.Setup(opts)
	defer logger.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.Database.URL != "" {
		if db, err = catalog.OpenDB(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns); err != nil {
			logger.Fatal(log, "Failed to connect to database", "error", err)
		}
		defer db.Close()
	} else {
		log.Warn("DATABASE_URL not set, studies are kept in memory")
	}

	server, err := NewServer(cfg, db, log, metrics.Default())
	if err != nil {
		logger.Fatal(log, "Failed to create server", "error", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal(log, "Server failed", "error", err)
	}
	log.Info("Server stopped")
}
