package models

import "time"

// Customer represents an account holder reachable by phone.
// AccountLast4 and PostalCode are the two verification factors; they are
// compared against caller-supplied values and never returned by the API.
type Customer struct {
	ID           int64
	Name         string
	PhoneNumber  string
	Email        string // optional, used for payment confirmation emails
	AccountLast4 string
	PostalCode   string
	Balance      float64 // outstanding balance in dollars
	DaysOverdue  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Call statuses.
const (
	CallStatusInProgress = "in_progress"
	CallStatusRinging    = "ringing"
	CallStatusCompleted  = "completed"
	CallStatusFailed     = "failed"
)

// Call outcomes.
const (
	OutcomePaymentArranged = "payment_arranged"
)

// Call represents a single telephony call and its conversational outcome.
// ExtraData holds provider metadata and the recorded payment arrangement as
// a JSON object.
type Call struct {
	ID              int64
	CallSID         string
	CustomerID      int64
	CallType        string // "real_call" | "test_call"
	Direction       string // "inbound" | "outbound"
	Status          string
	Outcome         string
	StartTime       time.Time
	EndTime         *time.Time
	DurationSeconds *int
	ExtraData       map[string]any
	CreatedAt       time.Time
}

// PaymentArrangement is the record stored under the "payment_arrangement"
// key of a call's extra data when the caller commits to a payment.
type PaymentArrangement struct {
	PaymentMethod string    `json:"payment_method"`
	Option        string    `json:"option"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
	CustomerID    int64     `json:"customer_id"`
}

// AdminUser represents an operator account for the admin API.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
