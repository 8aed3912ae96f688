package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/database/models"
)

// Recognized payment methods for a recorded arrangement.
const (
	MethodSMSLink      = "sms_link"
	MethodBankTransfer = "bank_transfer"
	MethodPaymentPlan  = "payment_plan"
)

// optionOrder fixes the presentation order of computed offers.
var optionOrder = []string{"full_payment", "settlement", "payment_plan"}

// Negotiator presents payment options for a verified account and
// records the caller's choice through the call repository.
type Negotiator struct {
	calls  database.CallRepository
	policy Policy
	logger *slog.Logger
}

// NewNegotiator creates a Negotiator with the given terms.
func NewNegotiator(calls database.CallRepository, policy Policy, logger *slog.Logger) *Negotiator {
	return &Negotiator{
		calls:  calls,
		policy: policy,
		logger: logger.With("subsystem", "payment"),
	}
}

// PresentOptions computes the payment options for the session's account
// and stores them on the session, replacing any earlier set. The caller
// must be verified first.
func (n *Negotiator) PresentOptions(session *Session) Result {
	session.mu.Lock()
	defer session.mu.Unlock()

	if !session.verified || session.account == nil {
		return Result{
			Message: "I need to verify your identity before I can discuss your account. Could you give me the last four digits of your account number and your postal code?",
		}
	}

	options := n.policy.ComputeOptions(session.account.Balance, session.account.DaysOverdue)
	session.options = options

	var lines []string
	for _, key := range optionOrder {
		opt, ok := options[key]
		if !ok {
			continue
		}
		lines = append(lines, opt.Description)
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("Here are your options. %s. Which of these works best for you?",
			strings.Join(lines, ". ")),
		Data: map[string]any{"options": options},
	}
}

// RecordChoice persists the caller's chosen arrangement. A repository
// failure does not fail the negotiation; the confirmation is returned
// with recorded=false so the arrangement can be reconciled later.
func (n *Negotiator) RecordChoice(ctx context.Context, session *Session, paymentMethod, chosenKey string) Result {
	session.mu.Lock()
	defer session.mu.Unlock()

	if !session.verified || session.account == nil {
		return Result{
			Message: "I need to verify your identity before I can set up a payment. Could you give me the last four digits of your account number and your postal code?",
		}
	}

	opt, ok := session.options[chosenKey]
	if !ok {
		return Result{
			Message: "I'm sorry, that isn't one of the options I offered. Let me go over them again.",
		}
	}

	arr := &models.PaymentArrangement{
		PaymentMethod: paymentMethod,
		Option:        chosenKey,
		Amount:        opt.Amount,
		Timestamp:     time.Now().UTC(),
		CustomerID:    session.account.CustomerID,
	}

	recorded := true
	if err := n.calls.RecordArrangement(ctx, session.callSID, arr); err != nil {
		recorded = false
		n.logger.Error("recording arrangement failed",
			"call_sid", session.callSID, "option", chosenKey, "error", err)
	}

	if session.arrangement == nil {
		session.arrangement = arr
	}

	return Result{
		Success: true,
		Message: n.confirmation(paymentMethod, opt),
		Data: map[string]any{
			"recorded":       recorded,
			"payment_method": paymentMethod,
			"option":         chosenKey,
			"amount":         opt.Amount,
		},
	}
}

func (n *Negotiator) confirmation(paymentMethod string, opt PaymentOption) string {
	switch paymentMethod {
	case MethodSMSLink:
		return fmt.Sprintf("You're all set. I'll text you a secure payment link for $%.2f. It arrives within a few minutes.", opt.Amount)
	case MethodBankTransfer:
		return fmt.Sprintf("You're all set. We'll email you our bank transfer details for $%.2f, along with your reference number.", opt.Amount)
	case MethodPaymentPlan:
		months := opt.Months
		if months <= 0 {
			months = n.policy.PaymentPlanMonths
		}
		total := round2(opt.Amount * float64(months))
		return fmt.Sprintf("You're all set. Your %d-month plan of $%.2f per month starts next month, for a total of $%.2f.", months, opt.Amount, total)
	default:
		return fmt.Sprintf("You're all set. We've noted your arrangement for $%.2f.", opt.Amount)
	}
}
