package main

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"quill/internal/api"
	"quill/internal/blob"
	"quill/internal/config"
	"quill/internal/ingest"
	"quill/internal/logging"
	"quill/internal/middleware"
	"quill/internal/template"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize BadgerDB
	db, err := badger.Open(badger.DefaultOptions(cfg.Database.Path))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Initialize blob store
	blobs, err := blob.NewDiskStore(db, blob.Options{
		Root: filepath.Join(cfg.Database.Path, "objects"),
	})
	if err != nil {
		logger.Fatal("failed to initialize blob store", zap.Error(err))
	}

	// Initialize the version control service
	svc := template.NewService(db, blobs, logger.Logger)

	// Inbox watcher for the upload pipeline, when configured
	if cfg.Ingest.Inbox != "" {
		watcher, err := ingest.NewWatcher(svc, ingest.Options{
			Inbox:  cfg.Ingest.Inbox,
			Branch: cfg.Ingest.Branch,
			Author: cfg.Ingest.Author,
		}, logger.Logger)
		if err != nil {
			logger.Fatal("failed to start ingest watcher", zap.Error(err))
		}
		defer watcher.Close()
	}

	// Set up router
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("/health", healthCheck)

	// Template version control endpoints
	api.NewTemplateHandler(svc).Routes(mux)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
