package main

import (
	"context"
	"errors"

	"github.com/saiMhatre/stocky/internal/price"
)

// startPriceFetcher keeps the quote history of the configured universe
// moving until ctx is cancelled. A zero interval disables it.
func startPriceFetcher(ctx context.Context, app *App) {
	interval := app.Config.Price.RefreshInterval
	if interval <= 0 || len(app.Config.Price.Universe) == 0 {
		app.Logger.Info("price refresher disabled")
		return
	}
	r := price.NewRefresher(app.Oracle, app.Config.Price.Universe, interval, app.Logger.WithField("component", "price_refresher"))
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error("price refresher:", err)
	}
}
