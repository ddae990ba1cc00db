package domain

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ActionType string

const (
	ActionSplit     ActionType = "SPLIT"
	ActionDividend  ActionType = "DIVIDEND"
	ActionMerger    ActionType = "MERGER"
	ActionDelisting ActionType = "DELISTING"
	ActionBonus     ActionType = "BONUS"
)

type ActionStatus string

const (
	ActionAnnounced ActionStatus = "ANNOUNCED"
	ActionPending   ActionStatus = "PENDING"
	ActionProcessed ActionStatus = "PROCESSED"
	ActionCancelled ActionStatus = "CANCELLED"
)

func (s ActionStatus) Terminal() bool {
	return s == ActionProcessed || s == ActionCancelled
}

// Params holds the type-specific parameters of a corporate action.
type Params interface {
	Type() ActionType
	Validate() error
}

// SplitParams turns every From shares into To shares.
type SplitParams struct {
	From decimal.Decimal `json:"from_ratio"`
	To   decimal.Decimal `json:"to_ratio"`
}

// BonusParams grants To bonus shares for every From shares held.
type BonusParams struct {
	From decimal.Decimal `json:"from_ratio"`
	To   decimal.Decimal `json:"to_ratio"`
}

type DividendParams struct {
	PerShare decimal.Decimal `json:"dividend_per_share"`
}

type MergerParams struct {
	TargetSymbol string          `json:"target_symbol"`
	Ratio        decimal.Decimal `json:"exchange_ratio"`
}

type DelistingParams struct {
	FinalPrice decimal.Decimal `json:"final_price"`
}

func (SplitParams) Type() ActionType     { return ActionSplit }
func (BonusParams) Type() ActionType     { return ActionBonus }
func (DividendParams) Type() ActionType  { return ActionDividend }
func (MergerParams) Type() ActionType    { return ActionMerger }
func (DelistingParams) Type() ActionType { return ActionDelisting }

func (p SplitParams) Validate() error {
	if !p.From.IsPositive() || !p.To.IsPositive() {
		return fmt.Errorf("%w: split ratios must be positive", ErrInvalidInput)
	}
	if !p.To.GreaterThan(p.From) {
		return fmt.Errorf("%w: split must increase the share count (to > from)", ErrInvalidInput)
	}
	return nil
}

func (p BonusParams) Validate() error {
	if !p.From.IsPositive() || !p.To.IsPositive() {
		return fmt.Errorf("%w: bonus ratios must be positive", ErrInvalidInput)
	}
	return nil
}

func (p DividendParams) Validate() error {
	if !p.PerShare.IsPositive() {
		return fmt.Errorf("%w: dividend per share must be positive", ErrInvalidInput)
	}
	return nil
}

func (p MergerParams) Validate() error {
	if NormalizeSymbol(p.TargetSymbol) == "" {
		return fmt.Errorf("%w: merger target symbol is required", ErrInvalidInput)
	}
	if !p.Ratio.IsPositive() {
		return fmt.Errorf("%w: merger exchange ratio must be positive", ErrInvalidInput)
	}
	return nil
}

func (p DelistingParams) Validate() error {
	if p.FinalPrice.IsNegative() {
		return fmt.Errorf("%w: delisting final price must not be negative", ErrInvalidInput)
	}
	return nil
}

// CorporateAction is a scheduled structural event on a symbol.
type CorporateAction struct {
	ID            uuid.UUID
	Symbol        string
	Params        Params
	EffectiveDate time.Time
	AnnouncedAt   time.Time
	Status        ActionStatus
	FailureReason string
	ProcessedAt   *time.Time
}

func (a CorporateAction) Type() ActionType {
	if a.Params == nil {
		return ""
	}
	return a.Params.Type()
}

func (a CorporateAction) Validate() error {
	if NormalizeSymbol(a.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if a.Params == nil {
		return fmt.Errorf("%w: action parameters are required", ErrInvalidInput)
	}
	if a.EffectiveDate.IsZero() {
		return fmt.Errorf("%w: effective date is required", ErrInvalidInput)
	}
	if m, ok := a.Params.(MergerParams); ok && NormalizeSymbol(m.TargetSymbol) == NormalizeSymbol(a.Symbol) {
		return fmt.Errorf("%w: merger target must differ from the source symbol", ErrInvalidInput)
	}
	return a.Params.Validate()
}

func EncodeParams(p Params) ([]byte, error) {
	return json.Marshal(p)
}

func DecodeParams(t ActionType, raw []byte) (Params, error) {
	var (
		p   Params
		err error
	)
	switch t {
	case ActionSplit:
		var v SplitParams
		err = json.Unmarshal(raw, &v)
		p = v
	case ActionBonus:
		var v BonusParams
		err = json.Unmarshal(raw, &v)
		p = v
	case ActionDividend:
		var v DividendParams
		err = json.Unmarshal(raw, &v)
		p = v
	case ActionMerger:
		var v MergerParams
		err = json.Unmarshal(raw, &v)
		p = v
	case ActionDelisting:
		var v DelistingParams
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: unsupported action type %q", ErrInvalidInput, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", t, err)
	}
	return p, nil
}

// AdjustmentKey is the idempotency key of the adjustment that action applies
// to a single reward event.
func AdjustmentKey(actionID, eventID uuid.UUID) string {
	return fmt.Sprintf("ca:%s:%s", actionID, eventID)
}

// AdjustmentID derives a stable identifier from an adjustment key. It is used
// both as the derived reward id and as the ledger transaction id.
func AdjustmentID(key string) uuid.UUID {
	return uuid.NewSHA1(adjustmentNamespace, []byte(key))
}

var adjustmentNamespace = uuid.MustParse("6f0c6a0e-3d0b-5b8e-9a57-2f1f7c1f4a10")
