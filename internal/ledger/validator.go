package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/saiMhatre/stocky/internal/domain"
	"github.com/saiMhatre/stocky/internal/repository"
)

// Tolerance is the largest absolute monetary sum a balanced transaction may have.
var Tolerance = decimal.New(1, -4)

// MonetarySum adds the cash lines of a transaction, debits positive and
// credits negative. Stock lines are ignored.
func MonetarySum(lines []domain.LedgerLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if amount, ok := l.Cash(); ok {
			sum = sum.Add(l.Signed(amount))
		}
	}
	return sum
}

func Balanced(lines []domain.LedgerLine) bool {
	return MonetarySum(lines).Abs().LessThan(Tolerance)
}

// Validator checks persisted transactions for balance.
type Validator struct {
	repo *repository.LedgerRepository
}

func NewValidator(repo *repository.LedgerRepository) *Validator {
	return &Validator{repo: repo}
}

// ValidateTransaction reports whether the monetary lines of txID sum to zero.
func (v *Validator) ValidateTransaction(ctx context.Context, txID uuid.UUID) (bool, error) {
	lines, err := v.repo.ListByTransaction(ctx, nil, txID)
	if err != nil {
		return false, err
	}
	return Balanced(lines), nil
}

// Check validates txID through q (usually the open transaction that wrote
// it) and returns ErrLedgerImbalance when it does not balance.
func (v *Validator) Check(ctx context.Context, q sqlx.QueryerContext, txID uuid.UUID) error {
	lines, err := v.repo.ListByTransaction(ctx, q, txID)
	if err != nil {
		return err
	}
	if sum := MonetarySum(lines); !sum.Abs().LessThan(Tolerance) {
		return fmt.Errorf("%w: transaction %s is off by %s", domain.ErrLedgerImbalance, txID, sum.String())
	}
	return nil
}
