package agent

import (
	"fmt"
	"math"
)

// Policy holds the business parameters payment options are computed
// from. Values come from configuration; DefaultPolicy matches the
// standard collections terms.
type Policy struct {
	// SettlementDiscountPct is the percentage knocked off the balance
	// for a lump-sum settlement.
	SettlementDiscountPct int
	// SettlementMinOverdueDays is the minimum days overdue before a
	// settlement is offered.
	SettlementMinOverdueDays int
	// PaymentPlanMonths is the number of monthly installments in a
	// payment plan.
	PaymentPlanMonths int
}

// DefaultPolicy returns the standard collections terms.
func DefaultPolicy() Policy {
	return Policy{
		SettlementDiscountPct:    30,
		SettlementMinOverdueDays: 90,
		PaymentPlanMonths:        6,
	}
}

// PaymentOption is one way a caller can resolve their balance.
type PaymentOption struct {
	Amount             float64 `json:"amount"`
	Description        string  `json:"description"`
	DiscountPercentage int     `json:"discount_percentage,omitempty"`
	Months             int     `json:"months,omitempty"`
	MonthlyAmount      float64 `json:"monthly_amount,omitempty"`
}

// ComputeOptions derives the payment options for an account. It always
// returns a full payment and a payment plan; a settlement is included
// only when the account is at least SettlementMinOverdueDays overdue.
func (p Policy) ComputeOptions(balance float64, daysOverdue int) map[string]PaymentOption {
	full := round2(balance)
	options := map[string]PaymentOption{
		"full_payment": {
			Amount:      full,
			Description: fmt.Sprintf("Pay the full balance of $%.2f today", full),
		},
	}

	if daysOverdue > p.SettlementMinOverdueDays {
		amount := round2(balance * float64(100-p.SettlementDiscountPct) / 100)
		options["settlement"] = PaymentOption{
			Amount:             amount,
			Description:        fmt.Sprintf("Settle the account for $%.2f, a %d%% discount", amount, p.SettlementDiscountPct),
			DiscountPercentage: p.SettlementDiscountPct,
		}
	}

	months := p.PaymentPlanMonths
	if months <= 0 {
		months = 1
	}
	var monthly float64
	if balance > 0 {
		monthly = round2(balance / float64(months))
	}
	// A plan's amount is the monthly installment, not the balance.
	options["payment_plan"] = PaymentOption{
		Amount:        monthly,
		Description:   fmt.Sprintf("Split the balance into %d monthly payments of $%.2f", months, monthly),
		Months:        months,
		MonthlyAmount: monthly,
	}

	return options
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
