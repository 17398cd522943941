// Command diskspectord runs the diskspector HTTP server: scan creation,
// live progress over Server-Sent Events, and the tree/top/list/recent/
// search/export/statistics query endpoints.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kestrel-labs/diskspector/internal/config"
	"github.com/kestrel-labs/diskspector/internal/db"
	"github.com/kestrel-labs/diskspector/internal/engine"
	"github.com/kestrel-labs/diskspector/internal/httpapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("create data dir %q: %v", dataDir, err)
	}

	dbPath := filepath.Join(dataDir, "diskspector.db")
	database, err := db.Open(dbPath)
	if err != nil {
		log.Fatalf("open db %q: %v", dbPath, err)
	}
	defer database.Close()

	// Read-only connection so query endpoints stay responsive while a scan
	// is writing (WAL allows concurrent readers).
	readDB, err := db.OpenReadOnly(dbPath)
	if err != nil {
		log.Fatalf("open read-only db: %v", err)
	}
	if readDB != nil {
		defer readDB.Close()
	}

	if err := db.Migrate(database); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	manager := engine.NewManager(database, engine.Tuning{
		BatchSize:       cfg.BatchSize(),
		FlushThreshold:  cfg.FlushThreshold(),
		FlushIntervalMS: cfg.FlushIntervalMS(),
		HandleLimit:     cfg.HandleLimit(),
		DirConcurrency:  cfg.DirConcurrency(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httpapi.NewServer(ctx, cfg, database, readDB, manager)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	log.Printf("diskspector listening on :%d, data dir %s", cfg.Port(), dataDir)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
