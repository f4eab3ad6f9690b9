package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/tabular-io/tabular-engine/pkg/config"
	"github.com/tabular-io/tabular-engine/pkg/engine"
	"github.com/tabular-io/tabular-engine/pkg/logging"
	"github.com/tabular-io/tabular-engine/pkg/query"
	"github.com/tabular-io/tabular-engine/pkg/schema"
	"github.com/tabular-io/tabular-engine/pkg/storage"

	// Storage drivers register themselves on import.
	_ "github.com/tabular-io/tabular-engine/pkg/storage/mssql"
	_ "github.com/tabular-io/tabular-engine/pkg/storage/postgres"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	schemaPath := flag.String("schemas", "entities.yaml", "path to the entity schema file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("tabular-engine starting",
		zap.String("version", Version),
		zap.String("driver", cfg.Database.Driver),
		zap.String("schemas", *schemaPath))

	schemas, err := schema.LoadFile(*schemaPath)
	if err != nil {
		logger.Fatal("failed to load schemas", zap.Error(err))
	}

	ctx := context.Background()
	exec, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.URL())
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer exec.Close()

	engineCfg := query.Config{
		DefaultRange: cfg.Engine.DefaultRange,
		DefaultStart: cfg.Engine.DefaultStart,
		ActiveValue:  cfg.Engine.ActiveValue,
	}

	// Probe each declared entity so schema or database mismatches surface
	// at startup instead of on first use.
	for _, s := range schemas {
		svc := engine.New(exec, engineCfg, logger)
		svc.SetSchema(s)
		if _, err := svc.Search(ctx, query.Options{Range: 1}); err != nil {
			logger.Fatal("entity probe failed", zap.String("entity", s.Name), zap.Error(err))
		}
		logger.Info("entity ready", zap.String("entity", s.Name))
	}
	logger.Info("all entities validated", zap.Int("count", len(schemas)))
}
