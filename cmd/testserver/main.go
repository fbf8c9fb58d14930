// testserver starts a yieldlab API server with a seeded dataset and a slow
// computation, for exercising clients against job polling and event streams.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/yieldlab/internal/api"
	"github.com/seantiz/yieldlab/internal/compute"
	"github.com/seantiz/yieldlab/internal/engine"
	"github.com/seantiz/yieldlab/internal/model"
	"github.com/seantiz/yieldlab/internal/registry"
	"github.com/seantiz/yieldlab/internal/store"
)

// slowComputation sleeps before returning a fixed result, long enough for a
// client to observe the pending and running states.
func slowComputation(delay time.Duration) compute.Computation {
	return func(ctx context.Context, _ any, params model.Params) (model.Result, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return model.Result{"slept_ms": delay.Milliseconds(), "params": len(params)}, nil
	}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("YIELDLAB_LISTEN_ADDR"); v != "" {
		addr = v
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	datasets := store.NewDatasetStore(0, logger)
	jobs, err := store.NewSQLiteJobStore(":memory:", datasets)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer jobs.Close()

	computations := compute.NewRegistry()
	compute.RegisterBuiltins(computations)
	computations.Register("slow", "Sleeps two seconds, then succeeds.", slowComputation(2*time.Second))

	seed, err := datasets.Put(map[string]any{
		"rows": 4,
		"scada": map[string]any{
			"wind_speed": []any{5.0, 5.0, 5.0, 7.5},
			"power":      []any{1200.0, -5.0, 1300.0, 2500.0},
		},
		"wind_speeds":   []any{5.0, 5.0, 5.0, 7.5},
		"air_densities": []any{1.20, 1.22, 1.25, 1.23},
	}, "seeded demo plant")
	if err != nil {
		log.Fatalf("failed to seed dataset: %v", err)
	}

	eng := engine.NewEngine(datasets, jobs, computations, logger, engine.WithWorkers(2))
	srv := api.NewServer(addr, registry.New(datasets, jobs, computations, eng), logger)

	logger.Info("testserver: starting", "addr", addr, "dataset_id", seed.ID)
	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
	eng.Wait()
}
