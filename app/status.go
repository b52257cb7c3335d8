package main

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lysyi3m/product-comb/app/cfg"
	"github.com/lysyi3m/product-comb/app/database"
)

// runStatus prints queue statistics. Dead-letter and storage counts are added
// when the database is reachable.
func runStatus(ctx context.Context, c *cfg.Cfg) int {
	client, closeQueue, err := openQueue(ctx, c)
	if err != nil {
		slog.Error("Broker unreachable", "error", err)
		return 1
	}
	defer closeQueue()

	stats, err := client.Stats(ctx)
	if err != nil {
		slog.Error("Failed to read queue statistics", "error", err)
		return 1
	}

	var deadLetters map[string]int
	var pageStats map[string]int
	productCount := -1

	if db, err := openDatabase(c); err != nil {
		slog.Warn("Database unavailable, dead letters not shown", "error", err)
	} else {
		defer db.Close()
		if deadLetters, err = database.NewDeadLetterRepository(db).CountDeadLetters(ctx); err != nil {
			slog.Warn("Failed to count dead letters", "error", err)
		}
		if pageStats, err = database.NewPageRepository(db).GetPageStats(ctx); err != nil {
			slog.Warn("Failed to read page statistics", "error", err)
		}
		if productCount, err = database.NewProductRepository(db).GetProductCount(ctx); err != nil {
			productCount = -1
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Queues")
	t.AppendHeader(table.Row{"Queue", "Depth", "In Flight", "Dead Letters"})
	for _, s := range stats {
		dl := "-"
		if deadLetters != nil {
			dl = strconv.Itoa(deadLetters[string(s.Queue)])
		}
		t.AppendRow(table.Row{s.Queue, s.Depth, s.InFlight, dl})
	}
	t.Render()

	if pageStats != nil {
		p := table.NewWriter()
		p.SetOutputMirror(os.Stdout)
		p.SetStyle(table.StyleLight)
		p.SetTitle("Storage")
		p.AppendHeader(table.Row{"Extraction Status", "Pages"})
		for _, status := range slices.Sorted(maps.Keys(pageStats)) {
			p.AppendRow(table.Row{status, pageStats[status]})
		}
		if productCount >= 0 {
			p.AppendFooter(table.Row{"Products", productCount})
		}
		p.Render()
	}

	return 0
}
