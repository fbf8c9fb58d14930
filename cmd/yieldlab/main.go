package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/seantiz/yieldlab/internal/api"
	"github.com/seantiz/yieldlab/internal/compute"
	"github.com/seantiz/yieldlab/internal/config"
	"github.com/seantiz/yieldlab/internal/engine"
	"github.com/seantiz/yieldlab/internal/registry"
	"github.com/seantiz/yieldlab/internal/store"
)

const drainTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("yieldlab: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workers", cfg.Workers,
		"dataset_ttl", cfg.DatasetTTL.String(),
		"job_timeout", cfg.JobTimeout.String(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	datasets := store.NewDatasetStore(cfg.DatasetTTL, logger)
	go datasets.Run(ctx)

	var jobs store.JobStore
	if cfg.DBPath == "" {
		jobs = store.NewMemoryJobStore(datasets)
	} else {
		db, err := store.NewSQLiteJobStore(cfg.DBPath, datasets)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		n, err := db.FailInterrupted(ctx, "interrupted by restart")
		if err != nil {
			log.Fatalf("failed to recover jobs: %v", err)
		}
		if n > 0 {
			logger.Warn("failed jobs left unfinished by a previous run", "count", n)
		}
		jobs = db
	}
	defer jobs.Close()

	computations := compute.NewRegistry()
	compute.RegisterBuiltins(computations)

	eng := engine.NewEngine(datasets, jobs, computations, logger,
		engine.WithWorkers(cfg.Workers),
		engine.WithTimeout(cfg.JobTimeout),
	)
	reg := registry.New(datasets, jobs, computations, eng)
	srv := api.NewServer(cfg.ListenAddr, reg, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	if err := eng.Shutdown(drainCtx); err != nil {
		logger.Error("jobs still running at exit", "error", err)
	}
	logger.Info("yieldlab: stopped")
}
