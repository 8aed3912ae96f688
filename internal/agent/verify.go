package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/duevoice/duevoice/internal/database"
)

// Verifier gates account disclosure behind two-factor identity
// verification. A caller must supply the last four digits of their
// account number and their postal code; after MaxAttempts mismatches
// the session is locked and the call must end.
type Verifier struct {
	customers   database.CustomerRepository
	maxAttempts int
	logger      *slog.Logger

	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewVerifier creates a Verifier. maxAttempts values below 1 are
// clamped to 1.
func NewVerifier(customers database.CustomerRepository, maxAttempts int, logger *slog.Logger) *Verifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Verifier{
		customers:   customers,
		maxAttempts: maxAttempts,
		logger:      logger.With("subsystem", "verify"),
	}
}

// VerificationStats returns running totals of factor checks: successful
// matches and mismatches. Locked-out and lookup-error results are not
// counted since no factor comparison took place.
func (v *Verifier) VerificationStats() (succeeded, failed int64) {
	return v.succeeded.Load(), v.failed.Load()
}

// Verify checks the submitted factors against the account on file for
// the session's phone number. It mutates only the session's verified
// flag, attempt counter and account snapshot.
func (v *Verifier) Verify(ctx context.Context, session *Session, last4, postalCode string) Result {
	if session.phone == "" {
		v.logger.Warn("verification without caller phone", "call_sid", session.callSID)
		return Result{
			Message: "I'm sorry, I can't verify your identity on this call. Please call back from the phone number we have on file.",
			EndCall: true,
		}
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.verifyAttempts >= v.maxAttempts {
		return Result{
			Message: "I'm sorry, we weren't able to verify your identity. Please call back to try again. Goodbye.",
			EndCall: true,
		}
	}

	customer, err := v.customers.VerifyIdentity(ctx, session.phone, last4, postalCode)
	if err != nil {
		v.logger.Error("identity lookup failed", "call_sid", session.callSID, "error", err)
		return Result{
			Message: "I'm sorry, I'm unable to verify your identity right now. Please call back later. Goodbye.",
			EndCall: true,
		}
	}

	if customer == nil {
		v.failed.Add(1)
		session.verifyAttempts++
		remaining := v.maxAttempts - session.verifyAttempts
		if remaining <= 0 {
			v.logger.Info("verification locked", "call_sid", session.callSID, "attempts", session.verifyAttempts)
			return Result{
				Message: "I'm sorry, that information doesn't match our records. For your security, please call back to try again. Goodbye.",
				EndCall: true,
			}
		}
		plural := "attempts"
		if remaining == 1 {
			plural = "attempt"
		}
		return Result{
			Message: fmt.Sprintf("That information doesn't match our records. You have %d %s remaining.", remaining, plural),
		}
	}

	v.succeeded.Add(1)
	session.verified = true
	session.account = &AccountSnapshot{
		CustomerID:  customer.ID,
		Name:        customer.Name,
		Balance:     round2(customer.Balance),
		DaysOverdue: customer.DaysOverdue,
	}
	v.logger.Info("caller verified", "call_sid", session.callSID, "customer_id", customer.ID)

	return Result{
		Success: true,
		Message: fmt.Sprintf("Thank you, %s, your identity is verified.", customer.Name),
		Data: map[string]any{
			"customer_id":  customer.ID,
			"balance":      session.account.Balance,
			"days_overdue": session.account.DaysOverdue,
		},
	}
}
