// Package main implements the reindex-store binary.
// It serves a SQLite bucket store over gRPC so reindex-bench can drive a
// store in another process.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/arkilian/reindexbench/internal/app"
	"github.com/arkilian/reindexbench/internal/config"
	"github.com/arkilian/reindexbench/internal/logging"
)

func main() {
	var (
		configFile string
		addr       string
		dbPath     string
		logLevel   string
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML, JSON or TOML)")
	flag.StringVar(&addr, "addr", "", "gRPC listen address (default :9090)")
	flag.StringVar(&dbPath, "db", "", "SQLite store path")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	config.LoadFromEnv(cfg)

	// the server always serves the embedded store
	cfg.Store.Type = config.StoreSQLite
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("Invalid log configuration: %v", err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	log.Printf("Starting reindex-store...")
	log.Printf("  gRPC: %s", cfg.Server.Addr)
	log.Printf("  Store: %s", cfg.Store.Path)

	if err := a.ServeStore(context.Background()); err != nil {
		log.Fatalf("Store server error: %v", err)
	}
	log.Printf("reindex-store stopped")
}
