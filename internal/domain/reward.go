package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuantityPlaces is the number of fractional digits kept for stock quantities.
const QuantityPlaces = 6

// AmountPlaces is the number of fractional digits kept for INR amounts.
const AmountPlaces = 4

type RewardStatus string

const (
	RewardStatusActive    RewardStatus = "ACTIVE"
	RewardStatusAdjusted  RewardStatus = "ADJUSTED"
	RewardStatusCancelled RewardStatus = "CANCELLED"
	RewardStatusRefunded  RewardStatus = "REFUNDED"
)

func (s RewardStatus) Valid() bool {
	switch s {
	case RewardStatusActive, RewardStatusAdjusted, RewardStatusCancelled, RewardStatusRefunded:
		return true
	}
	return false
}

// Adjustment carries the status-specific data of a reward or ledger line.
// Use one of Active, Adjusted, Cancelled or Refunded to build one.
type Adjustment struct {
	Status           RewardStatus
	Reason           string
	ParentID         *uuid.UUID
	OriginalQuantity *decimal.Decimal
	ActionID         *uuid.UUID
}

func Active() Adjustment {
	return Adjustment{Status: RewardStatusActive}
}

// Adjusted describes a record produced or superseded by a corporate action.
// Derived records set parent; originals flipped in place leave it nil and
// point at the action instead.
func Adjusted(reason string, parent *uuid.UUID, originalQuantity decimal.Decimal, actionID uuid.UUID) Adjustment {
	q := originalQuantity
	a := actionID
	return Adjustment{
		Status:           RewardStatusAdjusted,
		Reason:           reason,
		ParentID:         parent,
		OriginalQuantity: &q,
		ActionID:         &a,
	}
}

func Cancelled(reason string) Adjustment {
	return Adjustment{Status: RewardStatusCancelled, Reason: reason}
}

func Refunded(reason string, parent uuid.UUID) Adjustment {
	p := parent
	return Adjustment{Status: RewardStatusRefunded, Reason: reason, ParentID: &p}
}

func (a Adjustment) Validate() error {
	if !a.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, a.Status)
	}
	if a.Status == RewardStatusActive {
		return nil
	}
	if a.Reason == "" {
		return fmt.Errorf("%w: %s record requires an adjustment reason", ErrInvalidInput, a.Status)
	}
	switch a.Status {
	case RewardStatusRefunded:
		if a.ParentID == nil {
			return fmt.Errorf("%w: refunded record requires a parent", ErrInvalidInput)
		}
	case RewardStatusAdjusted:
		if a.ParentID == nil && a.ActionID == nil {
			return fmt.Errorf("%w: adjusted record requires a parent or a corporate action", ErrInvalidInput)
		}
	}
	return nil
}

// RewardEvent is a grant of a fractional quantity of a stock to a user.
type RewardEvent struct {
	ID             uuid.UUID
	UserID         string
	Symbol         string
	Quantity       decimal.Decimal
	RewardedAt     time.Time
	Notes          string
	IdempotencyKey string
	Adjustment     Adjustment
	// SupersededBy is the corporate action that moved this event's shares
	// out of its symbol (merger, delisting). Nil while the shares are held.
	SupersededBy   *uuid.UUID
	CreatedAt      time.Time
}

func (r RewardEvent) Status() RewardStatus {
	return r.Adjustment.Status
}

// Held reports whether later corporate actions on the event's symbol still
// apply to it.
func (r RewardEvent) Held() bool {
	if r.SupersededBy != nil {
		return false
	}
	s := r.Status()
	return s == RewardStatusActive || s == RewardStatusAdjusted
}

func (r RewardEvent) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if r.Symbol == "" {
		return fmt.Errorf("%w: stock symbol is required", ErrInvalidInput)
	}
	if r.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	if r.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	return r.Adjustment.Validate()
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityPlaces)
}

func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}
