package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/saiMhatre/stocky/internal/config"
	"github.com/saiMhatre/stocky/internal/domain"
)

// FeeSchedule holds the rates charged on a reward's INR value.
type FeeSchedule struct {
	Brokerage   decimal.Decimal
	STT         decimal.Decimal
	GST         decimal.Decimal // charged on brokerage
	ExchangeFee decimal.Decimal
	SEBIFee     decimal.Decimal
	StampDuty   decimal.Decimal
}

func DefaultFeeSchedule() FeeSchedule {
	return FeeScheduleFromConfig(config.Default().Fees)
}

func FeeScheduleFromConfig(c config.FeeConfig) FeeSchedule {
	return FeeSchedule{
		Brokerage:   decimal.NewFromFloat(c.BrokerageRate),
		STT:         decimal.NewFromFloat(c.STTRate),
		GST:         decimal.NewFromFloat(c.GSTRate),
		ExchangeFee: decimal.NewFromFloat(c.ExchangeFeeRate),
		SEBIFee:     decimal.NewFromFloat(c.SEBIFeeRate),
		StampDuty:   decimal.NewFromFloat(c.StampDutyRate),
	}
}

// Fee is one charge of a breakdown.
type Fee struct {
	Account domain.Account  `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// Breakdown is the value and fee split of a reward, all rounded to 4 places.
type Breakdown struct {
	INRValue  decimal.Decimal `json:"inr_value"`
	Brokerage decimal.Decimal `json:"brokerage"`
	STT       decimal.Decimal `json:"stt"`
	GST       decimal.Decimal `json:"gst"`
	Other     []Fee           `json:"regulatory_fees,omitempty"`
	TotalFees decimal.Decimal `json:"total_fees"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// Fees lists every charge of the breakdown in posting order.
func (b Breakdown) Fees() []Fee {
	fees := []Fee{
		{Account: domain.AccountBrokerageExpense, Amount: b.Brokerage},
		{Account: domain.AccountSTTExpense, Amount: b.STT},
		{Account: domain.AccountGSTExpense, Amount: b.GST},
	}
	return append(fees, b.Other...)
}

// Compute prices a quantity at price under the schedule.
func (s FeeSchedule) Compute(quantity, price decimal.Decimal) Breakdown {
	value := domain.RoundAmount(quantity.Mul(price))
	b := Breakdown{
		INRValue:  value,
		Brokerage: domain.RoundAmount(value.Mul(s.Brokerage)),
		STT:       domain.RoundAmount(value.Mul(s.STT)),
	}
	b.GST = domain.RoundAmount(b.Brokerage.Mul(s.GST))

	for _, f := range []Fee{
		{Account: domain.AccountExchangeFeeExpense, Amount: s.ExchangeFee},
		{Account: domain.AccountSEBIFeeExpense, Amount: s.SEBIFee},
		{Account: domain.AccountStampDutyExpense, Amount: s.StampDuty},
	} {
		if f.Amount.IsZero() {
			continue
		}
		b.Other = append(b.Other, Fee{Account: f.Account, Amount: domain.RoundAmount(value.Mul(f.Amount))})
	}

	b.TotalFees = decimal.Zero
	for _, f := range b.Fees() {
		b.TotalFees = b.TotalFees.Add(f.Amount)
	}
	b.TotalCost = b.INRValue.Add(b.TotalFees)
	return b
}

// BreakdownFromLines rebuilds the breakdown of a committed reward transaction.
func BreakdownFromLines(lines []domain.LedgerLine) Breakdown {
	b := Breakdown{
		INRValue:  decimal.Zero,
		Brokerage: decimal.Zero,
		STT:       decimal.Zero,
		GST:       decimal.Zero,
		TotalFees: decimal.Zero,
	}
	for _, l := range lines {
		amount, ok := l.Cash()
		if !ok || l.Direction != domain.Debit {
			continue
		}
		switch l.Account {
		case domain.AccountRewardExpense:
			b.INRValue = amount
			continue
		case domain.AccountBrokerageExpense:
			b.Brokerage = amount
		case domain.AccountSTTExpense:
			b.STT = amount
		case domain.AccountGSTExpense:
			b.GST = amount
		case domain.AccountExchangeFeeExpense, domain.AccountSEBIFeeExpense, domain.AccountStampDutyExpense:
			b.Other = append(b.Other, Fee{Account: l.Account, Amount: amount})
		default:
			continue
		}
		b.TotalFees = b.TotalFees.Add(amount)
	}
	b.TotalCost = b.INRValue.Add(b.TotalFees)
	return b
}
