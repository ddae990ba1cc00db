package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/saiMhatre/stocky/internal/config"
	"github.com/saiMhatre/stocky/internal/corporateaction"
	"github.com/saiMhatre/stocky/internal/db"
	"github.com/saiMhatre/stocky/internal/ledger"
	"github.com/saiMhatre/stocky/internal/metrics"
	"github.com/saiMhatre/stocky/internal/price"
	"github.com/saiMhatre/stocky/internal/repository"
	"github.com/saiMhatre/stocky/internal/reward"
)

type App struct {
	Config    *config.Config
	DB        *sqlx.DB
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Oracle    *price.Oracle
	Rewards   *reward.Service
	Actions   *corporateaction.Processor
	Validator *ledger.Validator

	cache *price.BigCache
}

// newApp wires every component on top of an open database.
func newApp(cfg *config.Config, conn *sqlx.DB, logger *logrus.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return nil, err
	}

	cache, err := price.NewBigCache(cfg.Price.StaleWindow)
	if err != nil {
		return nil, err
	}

	rewardRepo := repository.NewRewardRepository(conn)
	ledgerRepo := repository.NewLedgerRepository(conn)
	priceRepo := repository.NewPriceRepository(conn)
	actionRepo := repository.NewCorporateActionRepository(conn)

	oracle := price.NewOracle(priceRepo, cache,
		price.WithTTL(cfg.Price.CacheTTL),
		price.WithStrictHistory(cfg.Price.StrictHistory),
		price.WithLogger(logger.WithField("component", "price")),
		price.WithMetrics(m),
	)
	validator := ledger.NewValidator(ledgerRepo)
	poster := ledger.NewPoster(ledger.FeeScheduleFromConfig(cfg.Fees), ledgerRepo, validator)

	return &App{
		Config:    cfg,
		DB:        conn,
		Logger:    logger,
		Metrics:   m,
		Registry:  reg,
		Oracle:    oracle,
		Rewards:   reward.NewService(conn, rewardRepo, ledgerRepo, poster, oracle, logger.WithField("component", "reward"), m),
		Actions:   corporateaction.NewProcessor(conn, actionRepo, rewardRepo, ledgerRepo, poster, logger.WithField("component", "corporate_action"), m),
		Validator: validator,
		cache:     cache,
	}, nil
}

// openApp connects to the configured database, migrates it and wires the app.
func openApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	app, err := newApp(cfg, conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) Close() error {
	if a.cache != nil {
		a.cache.Close()
	}
	return a.DB.Close()
}

func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.Metrics.Middleware())

	api := r.Group("/api")
	{
		api.POST("/reward", a.PostRewardHandler)
		api.GET("/reward/:id", a.GetRewardHandler)
		api.GET("/today-stocks/:userId", a.GetTodayStocksHandler)
		api.GET("/historical-inr/:userId", a.GetHistoricalINRHandler)
		api.GET("/stats/:userId", a.GetStatsHandler)
		api.GET("/portfolio/:userId", a.GetPortfolioHandler)

		api.POST("/corporate-action", a.CorporateActionHandler)
		api.GET("/corporate-action/:id", a.GetCorporateActionHandler)
		api.POST("/corporate-action/:id/retry", a.RetryCorporateActionHandler)
		api.POST("/corporate-actions/process", a.ProcessCorporateActionsHandler)

		api.GET("/ledger/:txId/validate", a.ValidateLedgerHandler)

		api.GET("/prices/:symbol", a.GetPriceHandler)
		api.GET("/prices/:symbol/history", a.GetPriceHistoryHandler)
		api.GET("/prices/:symbol/at", a.GetPriceAtHandler)
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler(a.Registry)))
	return r
}

// Handler is the router behind the CORS policy of the config.
func (a *App) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler(a.Router())
}
