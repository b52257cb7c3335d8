package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/product-comb/app/cfg"
	"github.com/lysyi3m/product-comb/app/database"
	"github.com/lysyi3m/product-comb/app/queue"
	"github.com/lysyi3m/product-comb/app/tables"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		os.Exit(2)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogging(appCfg.Debug)
	slog.Info("Starting Product Comb", "command", appCfg.Command, "version", appCfg.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var code int
	switch appCfg.Command {
	case cfg.CommandWorker:
		code = runWorker(ctx, appCfg)
	case cfg.CommandCrawl:
		code = runCrawl(ctx, appCfg)
	case cfg.CommandPredictServer:
		code = runPredictServer(ctx, appCfg)
	case cfg.CommandStatus:
		code = runStatus(ctx, appCfg)
	default:
		slog.Error("Unknown command", "command", appCfg.Command)
		code = 2
	}

	stop()
	os.Exit(code)
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func openDatabase(c *cfg.Cfg) (*database.DB, error) {
	slog.Info("Connecting to database", "driver", c.DBDriver)
	db, err := database.Open(c.DBDriver, c.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)
	return db, nil
}

// openQueue connects to Redis and returns a client applying the configured
// delivery policy to every queue.
func openQueue(ctx context.Context, c *cfg.Cfg, opts ...queue.ClientOption) (*queue.Client, func(), error) {
	rdb, err := queue.DialRedis(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
	if err != nil {
		return nil, nil, err
	}

	policy := queue.Policy{
		Timeout:       c.JobTimeoutDuration(),
		MaxRetries:    c.MaxRetries,
		RetryInterval: c.RetryIntervalDuration(),
		ResultTTL:     queue.DefaultResultTTL,
	}
	for _, name := range queue.Names {
		opts = append(opts, queue.WithPolicy(name, policy))
	}

	broker := queue.NewRedisBroker(rdb, queue.RedisConfig{Prefix: c.QueuePrefix})
	slog.Info("Connected to broker", "addr", c.RedisAddr, "prefix", c.QueuePrefix)

	return queue.NewClient(broker, opts...), func() { rdb.Close() }, nil
}

func loadTables(c *cfg.Cfg) (*tables.ConfigCache, error) {
	configCache := tables.NewConfigCache(c.TablesDir)
	if err := configCache.Run(); err != nil {
		return nil, fmt.Errorf("failed to load table configurations: %w", err)
	}
	slog.Info("Table configurations loaded", "dir", c.TablesDir, "tables", configCache.GetConfigCount())
	return configCache, nil
}

// serveHTTP runs handler on port until ctx ends.
func serveHTTP(ctx context.Context, name, port string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "server", name, "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "server", name, "error", err)
		return err
	}
	slog.Info("HTTP server stopped", "server", name)
	return nil
}
