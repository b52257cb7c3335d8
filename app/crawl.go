package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lysyi3m/product-comb/app/cfg"
	"github.com/lysyi3m/product-comb/app/crawl"
	"github.com/lysyi3m/product-comb/app/gate"
	"github.com/lysyi3m/product-comb/app/tables"
)

func runCrawl(ctx context.Context, c *cfg.Cfg) int {
	configCache, err := loadTables(c)
	if err != nil {
		slog.Error("Failed to load tables", "error", err)
		return 1
	}

	selected, err := selectTables(configCache, c.Tables)
	if err != nil {
		slog.Error("Invalid table selection", "error", err)
		return 2
	}
	if len(selected) == 0 {
		slog.Warn("No enabled tables to crawl")
		return 0
	}

	client, closeQueue, err := openQueue(ctx, c)
	if err != nil {
		slog.Error("Broker unreachable", "error", err)
		return 1
	}
	defer closeQueue()

	g := gate.New(gate.DefaultConfig())
	schedulers := make([]*crawl.Scheduler, 0, len(selected))
	for _, t := range selected {
		schedulers = append(schedulers, crawl.NewScheduler(t, g, client,
			crawl.WithWorkers(c.CrawlWorkers),
			crawl.WithUserAgent(c.UserAgent)))
	}

	if c.Schedule {
		n, err := crawl.NewRunner(schedulers...).Run(ctx)
		if err != nil {
			slog.Error("Failed to schedule crawls", "error", err)
			return 1
		}
		if n == 0 {
			slog.Warn("None of the selected tables has a schedule")
		}
		return 0
	}

	results := make([]crawl.Stats, len(schedulers))
	var wg sync.WaitGroup
	for i, s := range schedulers {
		wg.Add(1)
		go func(i int, s *crawl.Scheduler) {
			defer wg.Done()
			stats, err := s.Run(ctx)
			if err != nil {
				slog.Warn("Crawl interrupted", "table", s.Table(), "error", err)
			}
			results[i] = stats
		}(i, s)
	}
	wg.Wait()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Fetched", "Enqueued", "Failed", "Duplicates"})
	for i, s := range schedulers {
		r := results[i]
		t.AppendRow(table.Row{s.Table(), r.Fetched, r.Enqueued, r.Failed, r.Duplicates})
	}
	t.Render()

	return 0
}

// selectTables returns the named tables, or every enabled table when no
// names are given.
func selectTables(configCache *tables.ConfigCache, names []string) ([]*tables.Config, error) {
	if len(names) == 0 {
		enabled := configCache.GetEnabledConfigs()
		out := make([]*tables.Config, 0, len(enabled))
		for _, name := range configCache.Names() {
			if t, ok := enabled[name]; ok {
				out = append(out, t)
			}
		}
		return out, nil
	}

	out := make([]*tables.Config, 0, len(names))
	for _, name := range names {
		t, err := configCache.GetConfig(name)
		if err != nil {
			return nil, fmt.Errorf("unknown table %q: %w", name, err)
		}
		out = append(out, t)
	}
	return out, nil
}
