package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiv248/editserver/internal/logging"
	"github.com/shiv248/editserver/internal/session"
	"github.com/shiv248/editserver/internal/store"
)

var (
	port            int
	sqliteURI       string
	expiryHours     int
	cleanupInterval time.Duration
	maxDocumentKB   int
	outboxCapacity  int
	logLevel        string
)

func main() {
	root := &cobra.Command{
		Use:   "editserver",
		Short: "Real-time collaborative plain-text editing server",
		RunE:  run,
	}

	flags := root.Flags()
	flags.IntVar(&port, "port", envInt("PORT", 3030), "listen port")
	flags.StringVar(&sqliteURI, "sqlite-uri", os.Getenv("SQLITE_URI"), "SQLite DSN; empty disables persistence")
	flags.IntVar(&expiryHours, "expiry-hours", envInt("EXPIRY_HOURS", 24), "idle document expiry, in hours")
	flags.DurationVar(&cleanupInterval, "cleanup-interval", time.Duration(envInt("CLEANUP_INTERVAL_MINUTES", 60))*time.Minute, "idle-document sweep interval")
	flags.IntVar(&maxDocumentKB, "max-document-kb", envInt("MAX_DOCUMENT_SIZE_KB", 256), "max document size in KiB, 0 disables the limit")
	flags.IntVar(&outboxCapacity, "outbox-capacity", envInt("OUTBOX_CAPACITY", 16), "per-connection broadcast outbox depth")
	flags.StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug, info, warn, or error")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logging.SetLevel(logLevel)

	var db *store.Store
	if sqliteURI != "" {
		logging.Info("opening database", "uri", sqliteURI)
		var err error
		db, err = store.Open(sqliteURI)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
	} else {
		logging.Info("persistence disabled: no --sqlite-uri given")
	}

	cfg := session.Config{
		MaxDocumentSize: maxDocumentKB * 1024,
		OutboxCapacity:  outboxCapacity,
		IdleExpiry:      time.Duration(expiryHours) * time.Hour,
	}

	var loader func(string) ([]byte, bool)
	if db != nil {
		loader = db.Loader()
	}
	registry := session.NewRegistry(cfg, loader)
	srv := session.NewServer(registry, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.StartCleaner(ctx, cleanupInterval)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logging.Info("listening", "port", port)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func envInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var parsed int
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil {
		return fallback
	}
	return parsed
}
