// Package agent implements the conversational core of a collections call:
// caller identity verification, payment option calculation and payment
// negotiation. State for a single call lives in a Session, which the
// bridge creates when the media stream starts and the tool handlers
// mutate as the conversation progresses.
package agent

import (
	"sync"
	"time"

	"github.com/duevoice/duevoice/internal/database/models"
)

// AccountSnapshot is the subset of customer data exposed to the
// conversation after a successful identity verification.
type AccountSnapshot struct {
	CustomerID  int64   `json:"customer_id"`
	Name        string  `json:"name"`
	Balance     float64 `json:"balance"`
	DaysOverdue int     `json:"days_overdue"`
}

// Session holds the mutable state of one call. All methods are safe for
// concurrent use; the bridge's relay goroutines and the tool handlers
// touch the same session.
type Session struct {
	callSID string
	phone   string

	mu             sync.Mutex
	streamSID      string
	conversationID string
	startedAt      time.Time
	verified       bool
	verifyAttempts int
	account        *AccountSnapshot
	options        map[string]PaymentOption
	arrangement    *models.PaymentArrangement
}

// NewSession creates a session for a call to the given phone number.
func NewSession(callSID, phone string) *Session {
	return &Session{
		callSID:   callSID,
		phone:     phone,
		startedAt: time.Now(),
	}
}

// CallSID returns the provider call SID the session belongs to.
func (s *Session) CallSID() string { return s.callSID }

// Phone returns the customer phone number the call is with.
func (s *Session) Phone() string { return s.phone }

// StartedAt returns the session creation time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// SetStreamSID records the media stream identifier once the provider's
// start frame arrives.
func (s *Session) SetStreamSID(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamSID = sid
}

// StreamSID returns the media stream identifier, or "" before the start
// frame has been seen.
func (s *Session) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// SetConversationID records the voice engine's conversation handle once
// the engine acknowledges session creation.
func (s *Session) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// ConversationID returns the voice engine's conversation handle, or ""
// before the engine has acknowledged the session.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Verified reports whether the caller has passed identity verification.
func (s *Session) Verified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

// Account returns the account snapshot, or nil before verification.
func (s *Session) Account() *AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Arrangement returns the recorded payment arrangement, or nil if the
// caller has not committed to one.
func (s *Session) Arrangement() *models.PaymentArrangement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arrangement
}

// Outcome returns the call outcome derived from session state, or ""
// when no outcome has been reached.
func (s *Session) Outcome() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.arrangement != nil {
		return models.OutcomePaymentArranged
	}
	return ""
}
