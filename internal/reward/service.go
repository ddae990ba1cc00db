package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/saiMhatre/stocky/internal/db"
	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/ledger"
	"github.com/saiMhatre/stocky/internal/metrics"
	"github.com/saiMhatre/stocky/internal/repository"
)

// PriceSource is the part of the price oracle the reward flow needs.
type PriceSource interface {
	GetLatestPrice(ctx context.Context, symbol string) (domain.PriceQuote, error)
	GetPriceForDate(ctx context.Context, symbol string, asOf time.Time) (domain.PriceQuote, error)
}

type Request struct {
	UserID         string
	Symbol         string
	Quantity       decimal.Decimal
	IdempotencyKey string
	Timestamp      *time.Time
	Notes          string
}

type Result struct {
	Reward    domain.RewardEvent
	Breakdown ledger.Breakdown
	Duplicate bool
}

type Service struct {
	conn    *sqlx.DB
	rewards *repository.RewardRepository
	lines   *repository.LedgerRepository
	poster  *ledger.Poster
	prices  PriceSource
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(conn *sqlx.DB, rewards *repository.RewardRepository, lines *repository.LedgerRepository,
	poster *ledger.Poster, prices PriceSource, log logrus.FieldLogger, m *metrics.Metrics) *Service {
	return &Service{
		conn:    conn,
		rewards: rewards,
		lines:   lines,
		poster:  poster,
		prices:  prices,
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SubmitReward records a reward and its ledger transaction atomically. A
// repeated idempotency key returns the committed reward with Duplicate set.
func (s *Service) SubmitReward(ctx context.Context, req Request) (Result, error) {
	ev, err := s.newEvent(req)
	if err != nil {
		s.metrics.Reward(metrics.RewardFailed)
		return Result{}, err
	}
	log := s.log.WithFields(logrus.Fields{
		"reward_id": ev.ID.String(),
		"user":      ev.UserID,
		"stock":     ev.Symbol,
		"qty":       ev.Quantity.String(),
	})

	quote, err := s.prices.GetLatestPrice(ctx, ev.Symbol)
	if err != nil {
		s.metrics.Reward(metrics.RewardFailed)
		log.WithError(err).Warn("no price available, reward not recorded")
		return Result{}, err
	}

	var b ledger.Breakdown
	err = db.WithTx(ctx, s.conn, func(tx *sqlx.Tx) error {
		if err := s.rewards.Insert(ctx, tx, ev); err != nil {
			return err
		}
		var err error
		b, err = s.poster.PostReward(ctx, tx, ev, quote)
		return err
	})
	switch {
	case err == nil:
		s.metrics.Reward(metrics.RewardCreated)
		log.WithField("total_cost", b.TotalCost.StringFixed(domain.AmountPlaces)).Info("reward recorded")
		return Result{Reward: ev, Breakdown: b}, nil
	case db.IsUniqueViolation(err):
		res, lerr := s.existing(ctx, ev.IdempotencyKey)
		if lerr != nil {
			s.metrics.Reward(metrics.RewardFailed)
			return Result{}, fmt.Errorf("load duplicate reward: %w", lerr)
		}
		s.metrics.Reward(metrics.RewardDuplicate)
		log.WithField("existing_id", res.Reward.ID.String()).Info("duplicate reward (idempotency)")
		return res, nil
	case errors.Is(err, domain.ErrLedgerImbalance):
		s.metrics.Imbalance()
	}
	s.metrics.Reward(metrics.RewardFailed)
	log.WithError(err).Error("record reward")
	return Result{}, fmt.Errorf("submit reward: %w", err)
}

func (s *Service) existing(ctx context.Context, key string) (Result, error) {
	r, err := s.rewards.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return Result{}, err
	}
	lines, err := s.lines.ListByTransaction(ctx, nil, r.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Reward: r, Breakdown: ledger.BreakdownFromLines(lines), Duplicate: true}, nil
}

func (s *Service) newEvent(req Request) (domain.RewardEvent, error) {
	user := strings.TrimSpace(req.UserID)
	if user == "" {
		return domain.RewardEvent{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	symbol := domain.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return domain.RewardEvent{}, fmt.Errorf("%w: stock_symbol is required", domain.ErrInvalidInput)
	}
	qty := domain.RoundQuantity(req.Quantity)
	if !qty.IsPositive() {
		return domain.RewardEvent{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}

	now := s.now()
	rewardedAt := now
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		rewardedAt = req.Timestamp.UTC()
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	return domain.RewardEvent{
		ID:             uuid.New(),
		UserID:         user,
		Symbol:         symbol,
		Quantity:       qty,
		RewardedAt:     rewardedAt,
		Notes:          req.Notes,
		IdempotencyKey: key,
		Adjustment:     domain.Active(),
		CreatedAt:      now,
	}, nil
}

// Get returns a reward with the breakdown of its ledger transaction.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Result, error) {
	r, err := s.rewards.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	lines, err := s.lines.ListByTransaction(ctx, nil, r.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Reward: r, Breakdown: ledger.BreakdownFromLines(lines)}, nil
}
