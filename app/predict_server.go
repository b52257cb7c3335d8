package main

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/product-comb/app/cfg"
	"github.com/lysyi3m/product-comb/app/predict"
	"github.com/lysyi3m/product-comb/app/threshold"
)

func runPredictServer(ctx context.Context, c *cfg.Cfg) int {
	model, err := predict.LoadKeywordModel(c.ModelFile)
	if err != nil {
		slog.Error("Failed to load model", "file", c.ModelFile, "error", err)
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

	slog.Info("Prediction model loaded", "model", model.Name(), "thresholds", len(thresholds.Engine().Entries()))

	if err := serveHTTP(ctx, "predict", c.PredictPort, predict.NewServer(model, thresholds)); err != nil {
		slog.Error("Prediction server failed", "error", err)
		return 1
	}
	return 0
}
