package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/product-comb/app/api"
	"github.com/lysyi3m/product-comb/app/cfg"
	"github.com/lysyi3m/product-comb/app/database"
	"github.com/lysyi3m/product-comb/app/extract"
	"github.com/lysyi3m/product-comb/app/predict"
	"github.com/lysyi3m/product-comb/app/queue"
	"github.com/lysyi3m/product-comb/app/tables"
	"github.com/lysyi3m/product-comb/app/tasks"
	"github.com/lysyi3m/product-comb/app/threshold"
)

// runWorker consumes the named queues (all of them when none are named) and
// serves the admin API. It returns 0 after a shutdown signal and 1 when the
// broker or database cannot be used.
func runWorker(ctx context.Context, c *cfg.Cfg) int {
	names := queue.Names
	if len(c.Queues) > 0 {
		names = names[:0:0]
		for _, q := range c.Queues {
			name, err := queue.ParseName(q)
			if err != nil {
				slog.Error("Invalid queue", "error", err)
				return 2
			}
			names = append(names, name)
		}
	}

	db, err := openDatabase(c)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	pages := database.NewPageRepository(db)
	products := database.NewProductRepository(db)
	classifications := database.NewClassificationRepository(db)
	deadLetters := database.NewDeadLetterRepository(db)

	client, closeQueue, err := openQueue(ctx, c, queue.WithDeadLetterSink(deadLetters))
	if err != nil {
		slog.Error("Broker unreachable", "error", err)
		return 1
	}
	defer closeQueue()

	configCache, err := loadTables(c)
	if err != nil {
		slog.Error("Failed to load tables", "error", err)
		return 1
	}

	router, err := tables.NewRouter(configCache.GetConfigs(), func(table string) tables.PageStorage {
		return pages.ForTable(table)
	}, extract.Registry())
	if err != nil {
		slog.Error("Failed to build table router", "error", err)
		return 1
	}

	thresholds, err := threshold.NewStore(c.ThresholdsFile)
	if err != nil {
		slog.Error("Failed to load thresholds", "file", c.ThresholdsFile, "error", err)
		return 1
	}
	go func() {
		if err := thresholds.Watch(ctx); err != nil {
			slog.Warn("Threshold file is not watched", "error", err)
		}
	}()

	stages := tasks.NewStages(tasks.StagesConfig{
		Router:          router,
		Queue:           client,
		Pages:           pages,
		Products:        products,
		Classifications: classifications,
		Predictor:       predict.NewClient(c.PredictURL, nil),
		Thresholds:      thresholds,
	})

	pools := make([]*tasks.Pool, 0, len(names))
	for _, name := range names {
		handler, err := stages.Handler(name)
		if err != nil {
			slog.Error("No handler", "queue", name, "error", err)
			return 2
		}
		pools = append(pools, tasks.NewPool(client, name, handler, tasks.WithWorkerCount(c.WorkerCount)))
	}

	apiHandler := api.NewHandler(configCache, client, pages, products, classifications, deadLetters)
	server := api.NewServer(apiHandler, c.APIAccessKey)

	serverCtx, stopServer := context.WithCancel(ctx)
	serverDone := make(chan error, 1)
	go func() { serverDone <- serveHTTP(serverCtx, "admin", c.Port, server) }()

	slog.Info("Worker started", "queues", names, "workers_per_queue", c.WorkerCount)

	runErr := tasks.RunPools(ctx, pools...)

	stopServer()
	if err := <-serverDone; err != nil {
		slog.Error("Admin server failed", "error", err)
	}

	if runErr != nil {
		if errors.Is(runErr, tasks.ErrBrokerLost) {
			slog.Error("Broker lost, exiting", "error", runErr)
		} else {
			slog.Error("Worker failed", "error", runErr)
		}
		return 1
	}

	slog.Info("Worker shutdown complete")
	return 0
}
