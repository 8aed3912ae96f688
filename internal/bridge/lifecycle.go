package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duevoice/duevoice/internal/agent"
	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/database/models"
)

// Lifecycle is the production SessionHandler. It opens a call session
// when the telephony stream starts and flushes terminal state to the
// call record when the bridge closes.
type Lifecycle struct {
	calls     database.CallRepository
	customers database.CustomerRepository
	logger    *slog.Logger
}

// NewLifecycle creates a Lifecycle over the given repositories.
func NewLifecycle(calls database.CallRepository, customers database.CustomerRepository, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		calls:     calls,
		customers: customers,
		logger:    logger.With("subsystem", "lifecycle"),
	}
}

// StreamStarted resolves the call record announced by the start frame
// and opens a session carrying the caller's phone number. The call
// record is created by the inbound webhook before the stream opens; a
// start frame for an unknown call is an error.
func (l *Lifecycle) StreamStarted(ctx context.Context, start *StartFrame) (*agent.Session, error) {
	callSID := start.CallSID
	if callSID == "" {
		callSID = start.CustomParams["call_sid"]
	}
	if callSID == "" {
		return nil, fmt.Errorf("start frame carries no call sid")
	}

	call, err := l.calls.GetBySID(ctx, callSID)
	if err != nil {
		return nil, fmt.Errorf("resolving call %s: %w", callSID, err)
	}
	if call == nil {
		return nil, fmt.Errorf("no call record for sid %s", callSID)
	}

	phone := start.CustomParams["customer_phone"]
	if phone == "" {
		customer, err := l.customers.GetByID(ctx, call.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("resolving customer %d: %w", call.CustomerID, err)
		}
		if customer != nil {
			phone = customer.PhoneNumber
		}
	}

	if err := l.calls.UpdateStatus(ctx, callSID, models.CallStatusInProgress); err != nil {
		l.logger.Error("marking call in progress failed", "call_sid", callSID, "error", err)
	}

	l.logger.Info("call session opened", "call_sid", callSID, "customer_id", call.CustomerID)
	return agent.NewSession(callSID, phone), nil
}

// StreamEnded persists the call's terminal state. Persistence errors
// are logged and swallowed; a teardown must never fail because the
// write path hiccuped.
func (l *Lifecycle) StreamEnded(ctx context.Context, session *agent.Session, term Termination) {
	if session == nil {
		l.logger.Warn("bridge ended before a stream started", "cause", term.Cause)
		return
	}

	endTime := time.Now().UTC()
	duration := int(endTime.Sub(session.StartedAt()).Seconds())
	outcome := session.Outcome()

	if err := l.calls.UpdateEnd(ctx, session.CallSID(), endTime, duration, outcome); err != nil {
		l.logger.Error("persisting call end failed", "call_sid", session.CallSID(), "error", err)
	}

	if !term.Cause.Normal() && term.Cause != CauseTelephonyClosed {
		if err := l.calls.UpdateStatus(ctx, session.CallSID(), models.CallStatusFailed); err != nil {
			l.logger.Error("persisting call failure status failed", "call_sid", session.CallSID(), "error", err)
		}
	}

	patch := map[string]any{"termination_cause": string(term.Cause)}
	if id := session.ConversationID(); id != "" {
		patch["conversation_id"] = id
	}
	if err := l.calls.MergeExtraData(ctx, session.CallSID(), patch); err != nil {
		l.logger.Error("persisting call metadata failed", "call_sid", session.CallSID(), "error", err)
	}

	l.logger.Info("call session closed",
		"call_sid", session.CallSID(),
		"cause", term.Cause,
		"duration_seconds", duration,
		"outcome", outcome,
	)
}
