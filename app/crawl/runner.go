package crawl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Runner re-crawls scheduled tables on their cron expressions. A table whose
// previous run has not finished skips the tick.
type Runner struct {
	schedulers []*Scheduler
}

func NewRunner(schedulers ...*Scheduler) *Runner {
	return &Runner{schedulers: schedulers}
}

// Run registers every scheduler that has a schedule and blocks until ctx
// ends, then waits for running crawls to stop. It returns the number of
// registered tables.
func (r *Runner) Run(ctx context.Context) (int, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	registered := 0
	for _, s := range r.schedulers {
		if s.table.Schedule == "" {
			continue
		}
		id, err := c.AddFunc(s.table.Schedule, func() {
			stats, err := s.Run(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Error("Scheduled crawl failed", "table", s.Table(), "error", err)
				return
			}
			slog.Info("Scheduled crawl completed", "table", s.Table(), "stats", stats.String())
		})
		if err != nil {
			return registered, fmt.Errorf("invalid schedule for %s: %w", s.Table(), err)
		}
		registered++
		slog.Info("Crawl scheduled", "table", s.Table(), "schedule", s.table.Schedule, "entry_id", id)
	}

	if registered == 0 {
		return 0, nil
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return registered, nil
}
