package database

import (
	"context"
	"time"

	"github.com/duevoice/duevoice/internal/database/models"
)

// CustomerRepository manages account holders and identity verification.
type CustomerRepository interface {
	Create(ctx context.Context, c *models.Customer) error
	GetByID(ctx context.Context, id int64) (*models.Customer, error)
	// GetByPhone returns the customer with the given phone number, or nil
	// if no customer matches.
	GetByPhone(ctx context.Context, phone string) (*models.Customer, error)
	// VerifyIdentity performs the two-factor match of account last four and
	// postal code for the customer on the given phone number. Returns the
	// matching customer, or nil when any factor does not match.
	VerifyIdentity(ctx context.Context, phone, accountLast4, postalCode string) (*models.Customer, error)
	UpdateBalance(ctx context.Context, id int64, balance float64, daysOverdue int) error
}

// CallListFilter narrows the result set of CallRepository.List.
type CallListFilter struct {
	CustomerID int64  // 0 = all customers
	Status     string // "" = all statuses
	Limit      int
	Offset     int
}

// CallRepository manages call records and their terminal state.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	// GetBySID returns the call with the given provider call SID, or nil
	// if no call matches.
	GetBySID(ctx context.Context, callSID string) (*models.Call, error)
	List(ctx context.Context, filter CallListFilter) ([]models.Call, int, error)
	// UpdateEnd marks the call completed with the given end time, duration
	// and, when non-empty, outcome.
	UpdateEnd(ctx context.Context, callSID string, endTime time.Time, durationSeconds int, outcome string) error
	// UpdateStatus sets the call status without touching terminal fields.
	UpdateStatus(ctx context.Context, callSID, status string) error
	// MergeExtraData merges the given patch into the call's extra data
	// object. Existing keys not present in the patch are preserved.
	MergeExtraData(ctx context.Context, callSID string, patch map[string]any) error
	// RecordArrangement stores a payment arrangement under the call's
	// extra data and sets the call outcome.
	RecordArrangement(ctx context.Context, callSID string, arr *models.PaymentArrangement) error
	// CountByOutcome returns call counts grouped by outcome. Calls with no
	// outcome are grouped under "none".
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// AdminUserRepository manages operator accounts for the admin API.
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	Count(ctx context.Context) (int64, error)
}
