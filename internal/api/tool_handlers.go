package api

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/duevoice/duevoice/internal/agent"
	"github.com/duevoice/duevoice/internal/database/models"
	"github.com/duevoice/duevoice/internal/email"
)

// Tool endpoints are invoked by the voice engine while a call is live.
// Failures are returned as spoken-style results with HTTP 200 so the
// engine can relay them to the caller; transport-level errors are the
// only non-200 responses.

// noSessionResult is returned when a tool call cannot be matched to an
// active call.
var noSessionResult = agent.Result{
	Message: "I'm sorry, I've lost track of this call. Please call back. Goodbye.",
	EndCall: true,
}

// toolRequest identifies the call a tool invocation belongs to. The
// engine sends whichever identifier it has.
type toolRequest struct {
	CallSID        string `json:"call_sid"`
	ConversationID string `json:"conversation_id"`
}

// resolveSession finds the active session for a tool request.
func (s *Server) resolveSession(req toolRequest) *agent.Session {
	if session := s.sessions.GetByCallSID(req.CallSID); session != nil {
		return session
	}
	return s.sessions.GetByConversationID(req.ConversationID)
}

type verifyIdentityRequest struct {
	toolRequest
	AccountLast4 string `json:"account_last4"`
	PostalCode   string `json:"postal_code"`
}

// handleToolVerifyIdentity runs the identity verification gate.
func (s *Server) handleToolVerifyIdentity(w http.ResponseWriter, r *http.Request) {
	var req verifyIdentityRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	session := s.resolveSession(req.toolRequest)
	if session == nil {
		writeJSON(w, http.StatusOK, noSessionResult)
		return
	}

	result := s.verifier.Verify(r.Context(), session, req.AccountLast4, req.PostalCode)
	writeJSON(w, http.StatusOK, result)
}

// handleToolPaymentOptions presents the payment options for a verified
// caller.
func (s *Server) handleToolPaymentOptions(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	session := s.resolveSession(req)
	if session == nil {
		writeJSON(w, http.StatusOK, noSessionResult)
		return
	}

	writeJSON(w, http.StatusOK, s.negotiator.PresentOptions(session))
}

type recordPaymentRequest struct {
	toolRequest
	PaymentMethod string `json:"payment_method"`
	Option        string `json:"option"`
}

// handleToolRecordPayment records the caller's chosen arrangement.
func (s *Server) handleToolRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	session := s.resolveSession(req.toolRequest)
	if session == nil {
		writeJSON(w, http.StatusOK, noSessionResult)
		return
	}

	result := s.negotiator.RecordChoice(r.Context(), session, req.PaymentMethod, req.Option)
	if result.Success {
		if arr := session.Arrangement(); arr != nil && s.smtpConf.Valid() {
			go s.sendPaymentConfirmation(arr)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// sendPaymentConfirmation emails the customer a record of the
// arrangement. Failures are logged; the call outcome is not affected.
func (s *Server) sendPaymentConfirmation(arr *models.PaymentArrangement) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	customer, err := s.customers.GetByID(ctx, arr.CustomerID)
	if err != nil {
		s.logger.Error("confirmation email: customer lookup failed", "customer_id", arr.CustomerID, "error", err)
		return
	}
	if customer == nil || customer.Email == "" {
		return
	}

	conf := email.PaymentConfirmation{
		To:            customer.Email,
		CustomerName:  customer.Name,
		PaymentMethod: arr.PaymentMethod,
		Option:        arr.Option,
		Amount:        arr.Amount,
		Timestamp:     arr.Timestamp,
	}
	// A plan arrangement is stored at its monthly installment; the email
	// quotes both the installment and the total over the term.
	if arr.PaymentMethod == agent.MethodPaymentPlan && s.cfg.PaymentPlanMonths > 0 {
		conf.Months = s.cfg.PaymentPlanMonths
		conf.MonthlyAmount = arr.Amount
		conf.Amount = math.Round(arr.Amount*float64(s.cfg.PaymentPlanMonths)*100) / 100
	}

	if err := s.mailer.SendPaymentConfirmation(ctx, s.smtpConf, conf); err != nil {
		s.logger.Error("confirmation email failed", "customer_id", arr.CustomerID, "error", err)
	}
}
