package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account string

const (
	AccountUserPortfolio      Account = "USER_PORTFOLIO"
	AccountCompanyCash        Account = "COMPANY_CASH"
	AccountRewardExpense      Account = "REWARD_EXPENSE"
	AccountBrokerageExpense   Account = "BROKERAGE_EXPENSE"
	AccountSTTExpense         Account = "STT_EXPENSE"
	AccountGSTExpense         Account = "GST_EXPENSE"
	AccountExchangeFeeExpense Account = "EXCHANGE_FEE_EXPENSE"
	AccountSEBIFeeExpense     Account = "SEBI_FEE_EXPENSE"
	AccountStampDutyExpense   Account = "STAMP_DUTY_EXPENSE"
	AccountUserCash           Account = "USER_CASH"
)

func (a Account) Valid() bool {
	switch a {
	case AccountUserPortfolio, AccountCompanyCash, AccountRewardExpense,
		AccountBrokerageExpense, AccountSTTExpense, AccountGSTExpense,
		AccountExchangeFeeExpense, AccountSEBIFeeExpense, AccountStampDutyExpense,
		AccountUserCash:
		return true
	}
	return false
}

// HoldsStock reports whether lines on this account carry a stock payload.
func (a Account) HoldsStock() bool {
	return a == AccountUserPortfolio
}

type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Payload is either a StockPayload or a CashPayload.
type Payload interface {
	isPayload()
}

type StockPayload struct {
	Symbol   string
	Quantity decimal.Decimal
}

type CashPayload struct {
	Amount decimal.Decimal
}

func (StockPayload) isPayload() {}
func (CashPayload) isPayload()  {}

// LedgerLine is one signed entry of a double-entry transaction.
type LedgerLine struct {
	ID            string
	TransactionID uuid.UUID
	LineNo        int
	UserID        string
	Account       Account
	Direction     Direction
	Payload       Payload
	RewardID      *uuid.UUID
	Adjustment    Adjustment
	// EffectiveAt is when the line takes effect for the holder: the grant
	// time of a reward or the effective date of a corporate action.
	EffectiveAt   time.Time
	CreatedAt     time.Time
}

// Cash returns the amount of a monetary line.
func (l LedgerLine) Cash() (decimal.Decimal, bool) {
	p, ok := l.Payload.(CashPayload)
	if !ok {
		return decimal.Zero, false
	}
	return p.Amount, true
}

// Stock returns the stock payload of a portfolio line.
func (l LedgerLine) Stock() (StockPayload, bool) {
	p, ok := l.Payload.(StockPayload)
	return p, ok
}

// Signed returns v positive for debits and negative for credits.
func (l LedgerLine) Signed(v decimal.Decimal) decimal.Decimal {
	if l.Direction == Credit {
		return v.Neg()
	}
	return v
}
