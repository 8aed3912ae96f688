package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/duevoice/duevoice/internal/database/models"
)

// declinedMessage is spoken to callers whose number has no account on
// file. The call is never bridged to the voice engine.
const declinedMessage = "We're sorry, we could not match your phone number to an account. Please contact us during business hours. Goodbye."

// unavailableMessage is spoken when the call cannot be set up.
const unavailableMessage = "We're sorry, we're unable to take your call right now. Please try again later. Goodbye."

// handleIncomingCall answers the provider's incoming-call webhook. A
// caller with an account on file gets connected to the media stream;
// anyone else is declined before a bridge is ever opened.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	callSID := r.PostFormValue("CallSid")
	from := r.PostFormValue("From")
	if callSID == "" || from == "" {
		writeError(w, http.StatusBadRequest, "CallSid and From are required")
		return
	}

	customer, err := s.customers.GetByPhone(r.Context(), from)
	if err != nil {
		s.logger.Error("incoming call: customer lookup failed", "call_sid", callSID, "error", err)
		writeTwiML(w, declineTwiML(unavailableMessage))
		return
	}
	if customer == nil {
		s.logger.Info("incoming call declined: no matching account", "call_sid", callSID, "from", from)
		writeTwiML(w, declineTwiML(declinedMessage))
		return
	}

	call := &models.Call{
		CallSID:    callSID,
		CustomerID: customer.ID,
		CallType:   "real_call",
		Direction:  "inbound",
		Status:     models.CallStatusRinging,
		StartTime:  time.Now().UTC(),
	}
	if err := s.calls.Create(r.Context(), call); err != nil {
		s.logger.Error("incoming call: creating call record failed", "call_sid", callSID, "error", err)
		writeTwiML(w, declineTwiML(unavailableMessage))
		return
	}

	s.logger.Info("incoming call accepted", "call_sid", callSID, "customer_id", customer.ID)
	writeTwiML(w, connectStreamTwiML(s.cfg.StreamURL(), "", map[string]string{
		"call_sid": callSID,
	}))
}

// completedDuration derives a call duration when the provider omits
// CallDuration. A duration the bridge already persisted wins; otherwise
// it is computed from the call's start time.
func (s *Server) completedDuration(ctx context.Context, callSID string, endTime time.Time) int {
	call, err := s.calls.GetBySID(ctx, callSID)
	if err != nil {
		s.logger.Error("call status: duration fallback lookup failed", "call_sid", callSID, "error", err)
		return 0
	}
	if call == nil {
		return 0
	}
	if call.DurationSeconds != nil && *call.DurationSeconds > 0 {
		return *call.DurationSeconds
	}
	if call.StartTime.IsZero() || endTime.Before(call.StartTime) {
		return 0
	}
	return int(endTime.Sub(call.StartTime).Seconds())
}

// handleCallStatus answers the provider's call-status webhook.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	callSID := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")
	if callSID == "" || status == "" {
		writeError(w, http.StatusBadRequest, "CallSid and CallStatus are required")
		return
	}

	switch status {
	case "completed":
		endTime := time.Now().UTC()
		duration, err := strconv.Atoi(r.PostFormValue("CallDuration"))
		if err != nil {
			duration = s.completedDuration(r.Context(), callSID, endTime)
		}
		// An empty outcome preserves whatever the bridge recorded.
		if err := s.calls.UpdateEnd(r.Context(), callSID, endTime, duration, ""); err != nil {
			s.logger.Error("call status: persisting completion failed", "call_sid", callSID, "error", err)
		}

	case "busy", "failed", "no-answer", "canceled":
		if err := s.calls.UpdateStatus(r.Context(), callSID, models.CallStatusFailed); err != nil {
			s.logger.Error("call status: persisting failure failed", "call_sid", callSID, "error", err)
		}

	case "ringing", "queued", "initiated":
		if err := s.calls.UpdateStatus(r.Context(), callSID, models.CallStatusRinging); err != nil {
			s.logger.Error("call status: persisting ringing failed", "call_sid", callSID, "error", err)
		}

	case "in-progress", "answered":
		if err := s.calls.UpdateStatus(r.Context(), callSID, models.CallStatusInProgress); err != nil {
			s.logger.Error("call status: persisting progress failed", "call_sid", callSID, "error", err)
		}

	default:
		s.logger.Debug("ignoring call status", "call_sid", callSID, "status", status)
	}

	w.WriteHeader(http.StatusNoContent)
}
