package main

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/ledger"
	"github.com/saiMhatre/stocky/internal/reward"
)

type RewardRequest struct {
	UserID         string          `json:"user_id" binding:"required"`
	StockSymbol    string          `json:"stock_symbol" binding:"required"`
	Quantity       decimal.Decimal `json:"quantity" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Timestamp      *time.Time      `json:"timestamp,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// CorporateActionRequest announces an action. Params holds the type specific
// fields, e.g. {"from_ratio":"1","to_ratio":"2"} for a SPLIT.
type CorporateActionRequest struct {
	Action        string          `json:"action" binding:"required"`
	Symbol        string          `json:"symbol" binding:"required"`
	EffectiveDate time.Time       `json:"effective_date" binding:"required"`
	Params        json.RawMessage `json:"params" binding:"required"`
}

type RewardResponse struct {
	ID                string            `json:"reward_id"`
	UserID            string            `json:"user_id"`
	Stock             string            `json:"stock"`
	Quantity          string            `json:"quantity"`
	RewardedAt        time.Time         `json:"rewarded_at"`
	IdempotencyKey    string            `json:"idempotency_key"`
	Notes             string            `json:"notes,omitempty"`
	Status            string            `json:"status"`
	AdjustmentReason  string            `json:"adjustment_reason,omitempty"`
	ParentID          *uuid.UUID        `json:"parent_id,omitempty"`
	CorporateActionID *uuid.UUID        `json:"corporate_action_id,omitempty"`
	SupersededBy      *uuid.UUID        `json:"superseded_by,omitempty"`
	Breakdown         *ledger.Breakdown `json:"breakdown,omitempty"`
	Duplicate         bool              `json:"duplicate,omitempty"`
}

func newRewardResponse(ev domain.RewardEvent) RewardResponse {
	return RewardResponse{
		ID:                ev.ID.String(),
		UserID:            ev.UserID,
		Stock:             ev.Symbol,
		Quantity:          ev.Quantity.StringFixed(domain.QuantityPlaces),
		RewardedAt:        ev.RewardedAt,
		IdempotencyKey:    ev.IdempotencyKey,
		Notes:             ev.Notes,
		Status:            string(ev.Status()),
		AdjustmentReason:  ev.Adjustment.Reason,
		ParentID:          ev.Adjustment.ParentID,
		CorporateActionID: ev.Adjustment.ActionID,
		SupersededBy:      ev.SupersededBy,
	}
}

func newResultResponse(res reward.Result) RewardResponse {
	out := newRewardResponse(res.Reward)
	b := res.Breakdown
	out.Breakdown = &b
	out.Duplicate = res.Duplicate
	return out
}

type CorporateActionResponse struct {
	ID            uuid.UUID     `json:"id"`
	Action        string        `json:"action"`
	Symbol        string        `json:"symbol"`
	Params        domain.Params `json:"params"`
	EffectiveDate time.Time     `json:"effective_date"`
	AnnouncedAt   time.Time     `json:"announced_at"`
	Status        string        `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time    `json:"processed_at,omitempty"`
}

func newActionResponse(a domain.CorporateAction) CorporateActionResponse {
	return CorporateActionResponse{
		ID:            a.ID,
		Action:        string(a.Type()),
		Symbol:        a.Symbol,
		Params:        a.Params,
		EffectiveDate: a.EffectiveDate,
		AnnouncedAt:   a.AnnouncedAt,
		Status:        string(a.Status),
		FailureReason: a.FailureReason,
		ProcessedAt:   a.ProcessedAt,
	}
}

type TodayStock struct {
	StockSymbol string          `json:"stock_symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	RewardedAt  time.Time       `json:"rewarded_at"`
}
