// Package main provides the entry point for the chain indexer.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chain-indexer/internal/chain"
	"chain-indexer/internal/collector"
	"chain-indexer/internal/config"
	"chain-indexer/internal/logger"
	"chain-indexer/internal/moniker"
	"chain-indexer/internal/store"
	"chain-indexer/internal/tracing"
	"chain-indexer/internal/tui"

	dbpkg "chain-indexer/internal/db"

	"github.com/joho/godotenv"
)

const (
	logFileName     = "indexer.log"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Try to load .env from CWD if present; otherwise use environment as-is
	if _, statErr := os.Stat(".env"); statErr == nil {
		_ = godotenv.Load(".env")
	}

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// With the dashboard on, logs go to a file so they don't tear the screen
	var logWriter io.Writer = os.Stderr
	if cfg.TUI {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", logFileName, err)
			os.Exit(1)
		}
		defer logFile.Close()
		logWriter = logFile
		fmt.Fprintf(os.Stderr, "Logs written to %s\n", logFileName)
	}
	log := logger.New(cfg.Debug, logWriter)
	defer log.Sync()

	log.Infow("chain indexer starting", "config", cfg.DebugString())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, "chain-indexer", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}

	gormDB, err := dbpkg.Open(cfg, log.Named("gorm"))
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := dbpkg.AutoMigrate(gormDB); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Infow("migrations applied")
	st := store.New(gormDB)

	client, err := chain.NewClient(cfg.RPCURL, cfg.APIURL, cfg.JobTimeout)
	if err != nil {
		log.Fatalf("create chain client: %v", err)
	}
	var monikers collector.MonikerResolver
	if res := moniker.NewResolver(client.RPC(), cfg.APIURL, log.Named("moniker")); res != nil {
		monikers = res
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: newMux(st), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server stopped", "error", err)
				cancel()
			}
		}()
		log.Infow("metrics server listening", "addr", cfg.MetricsAddr)
	}

	var tuiUpdateCh chan tui.Status
	if cfg.TUI {
		tuiUpdateCh = make(chan tui.Status, collector.TUIChannelBufferSize)
		go func() {
			if err := tui.Run(tuiUpdateCh); err != nil {
				log.Errorw("TUI error", "error", err)
			}
			// TUI exited, cancel context to trigger shutdown
			cancel()
		}()
	}

	coll := collector.NewCollector(cfg, client, st, monikers, tuiUpdateCh, log.Named("collector"))
	if err := coll.Run(ctx); err != nil {
		log.Errorw("collector stopped", "error", err)
	}
	log.Infow("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("metrics server shutdown", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warnw("tracing shutdown", "error", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	if tuiUpdateCh != nil {
		close(tuiUpdateCh)
		// Give TUI a moment to process the close and quit
		time.Sleep(collector.TUICloseDelay)
	}
}
