package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/reward"
)

const maxHistoryDays = 365

func (a *App) PostRewardHandler(c *gin.Context) {
	var req RewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.Logger.Warn("bad request:", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := a.Rewards.SubmitReward(c.Request.Context(), reward.Request{
		UserID:         req.UserID,
		Symbol:         req.StockSymbol,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
		Timestamp:      req.Timestamp,
		Notes:          req.Notes,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, newResultResponse(res))
}

func (a *App) GetRewardHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reward id"})
		return
	}
	res, err := a.Rewards.Get(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newResultResponse(res))
}

// GetTodayStocksHandler sums the user's rewards of the current UTC day per
// symbol.
func (a *App) GetTodayStocksHandler(c *gin.Context) {
	userId := c.Param("userId")
	now := time.Now().UTC()

	a.Logger.WithFields(logrus.Fields{"user": userId, "day": now.Format(time.DateOnly)}).Info("fetching today's stocks")

	events, err := a.Rewards.TodayRewards(c.Request.Context(), userId, now)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, todayTotals(events))
}

func todayTotals(events []domain.RewardEvent) []TodayStock {
	bySymbol := map[string]*TodayStock{}
	for _, ev := range events {
		row, ok := bySymbol[ev.Symbol]
		if !ok {
			row = &TodayStock{StockSymbol: ev.Symbol, Quantity: decimal.Zero, RewardedAt: ev.RewardedAt}
			bySymbol[ev.Symbol] = row
		}
		row.Quantity = row.Quantity.Add(ev.Quantity)
		if ev.RewardedAt.Before(row.RewardedAt) {
			row.RewardedAt = ev.RewardedAt
		}
	}
	out := make([]TodayStock, 0, len(bySymbol))
	for _, row := range bySymbol {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockSymbol < out[j].StockSymbol })
	return out
}

func (a *App) GetHistoricalINRHandler(c *gin.Context) {
	userId := c.Param("userId")
	days := 30
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("days must be between 1 and %d", maxHistoryDays)})
			return
		}
		days = n
	}
	out, err := a.Rewards.HistoricalValue(c.Request.Context(), userId, days, time.Now().UTC())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a *App) GetStatsHandler(c *gin.Context) {
	userId := c.Param("userId")
	ctx := c.Request.Context()

	events, err := a.Rewards.TodayRewards(ctx, userId, time.Now().UTC())
	if err != nil {
		a.fail(c, err)
		return
	}
	p, err := a.Rewards.Portfolio(ctx, userId)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"today_totals":        todayTotals(events),
		"portfolio_value_inr": p.Total.StringFixed(domain.AmountPlaces),
		"per_stock":           p.Holdings,
	})
}

func (a *App) GetPortfolioHandler(c *gin.Context) {
	p, err := a.Rewards.Portfolio(c.Request.Context(), c.Param("userId"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *App) CorporateActionHandler(c *gin.Context) {
	var req CorporateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params, err := domain.DecodeParams(actionType(req.Action), req.Params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := a.Actions.Announce(c.Request.Context(), domain.CorporateAction{
		Symbol:        req.Symbol,
		Params:        params,
		EffectiveDate: req.EffectiveDate,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newActionResponse(action))
}

func (a *App) GetCorporateActionHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid corporate action id"})
		return
	}
	action, err := a.Actions.Get(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newActionResponse(action))
}

// RetryCorporateActionHandler re-announces a cancelled action so the next
// processing run resumes it.
func (a *App) RetryCorporateActionHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid corporate action id"})
		return
	}
	action, err := a.Actions.Retry(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newActionResponse(action))
}

// ProcessCorporateActionsHandler is the trigger an external scheduler calls.
// The batch outlives a client that disconnects mid-run.
func (a *App) ProcessCorporateActionsHandler(c *gin.Context) {
	report, err := a.Actions.ProcessPending(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *App) ValidateLedgerHandler(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("txId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id"})
		return
	}
	ok, err := a.Validator.ValidateTransaction(c.Request.Context(), txID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": txID, "balanced": ok})
}

func (a *App) GetPriceHandler(c *gin.Context) {
	q, err := a.Oracle.GetLatestPrice(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// GetPriceHistoryHandler lists quotes in [from, to]; the default range is the
// last 24 hours.
func (a *App) GetPriceHistoryHandler(c *gin.Context) {
	now := time.Now().UTC()
	from, err := queryTime(c, "from", now.Add(-24*time.Hour))
	if err != nil {
		a.fail(c, err)
		return
	}
	to, err := queryTime(c, "to", now)
	if err != nil {
		a.fail(c, err)
		return
	}
	quotes, err := a.Oracle.GetHistoricalPrices(c.Request.Context(), c.Param("symbol"), from, to)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quotes)
}

func (a *App) GetPriceAtHandler(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}
	asOf, err := parseTime(date)
	if err != nil {
		a.fail(c, err)
		return
	}
	q, err := a.Oracle.GetPriceForDate(c.Request.Context(), c.Param("symbol"), asOf)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}
