package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrNoHistoricalPrice = errors.New("no historical price")
	ErrLedgerImbalance   = errors.New("ledger imbalance")
	ErrConflict          = errors.New("conflict")
)

// ActionError is returned when a corporate action handler fails. The action is
// cancelled and processing moves on to the next one.
type ActionError struct {
	ActionID uuid.UUID
	Type     ActionType
	Err      error
}

func (e ActionError) Error() string {
	return fmt.Sprintf("corporate action %s (%s) failed: %v", e.ActionID, e.Type, e.Err)
}

func (e ActionError) Unwrap() error {
	return e.Err
}
