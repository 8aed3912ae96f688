package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/duevoice/duevoice/internal/agent"
	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/database/models"
)

// callResponse is the JSON representation of a call record.
type callResponse struct {
	ID              int64          `json:"id"`
	CallSID         string         `json:"call_sid"`
	CustomerID      int64          `json:"customer_id"`
	CallType        string         `json:"call_type"`
	Direction       string         `json:"direction"`
	Status          string         `json:"status"`
	Outcome         string         `json:"outcome,omitempty"`
	StartTime       string         `json:"start_time"`
	EndTime         *string        `json:"end_time"`
	DurationSeconds *int           `json:"duration_seconds"`
	ExtraData       map[string]any `json:"extra_data,omitempty"`
}

func toCallResponse(c *models.Call) callResponse {
	resp := callResponse{
		ID:              c.ID,
		CallSID:         c.CallSID,
		CustomerID:      c.CustomerID,
		CallType:        c.CallType,
		Direction:       c.Direction,
		Status:          c.Status,
		Outcome:         c.Outcome,
		StartTime:       c.StartTime.Format(time.RFC3339),
		DurationSeconds: c.DurationSeconds,
		ExtraData:       c.ExtraData,
	}
	if c.EndTime != nil {
		s := c.EndTime.Format(time.RFC3339)
		resp.EndTime = &s
	}
	return resp
}

// handleListCalls returns calls with pagination and optional filters.
// Query params: limit, offset, customer_id, status.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	q := r.URL.Query()
	filter := database.CallListFilter{
		Status: q.Get("status"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "customer_id must be a positive integer")
			return
		}
		filter.CustomerID = id
	}

	calls, total, err := s.calls.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list calls: query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]callResponse, len(calls))
	for i := range calls {
		items[i] = toCallResponse(&calls[i])
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetCall returns a single call by its provider call SID.
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")

	call, err := s.calls.GetBySID(r.Context(), sid)
	if err != nil {
		s.logger.Error("get call: query failed", "call_sid", sid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	writeJSON(w, http.StatusOK, toCallResponse(call))
}

// customerResponse is the JSON representation of a customer. The
// verification factors are never included.
type customerResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	PhoneNumber string  `json:"phone_number"`
	Email       string  `json:"email,omitempty"`
	Balance     float64 `json:"balance"`
	DaysOverdue int     `json:"days_overdue"`
}

func toCustomerResponse(c *models.Customer) customerResponse {
	return customerResponse{
		ID:          c.ID,
		Name:        c.Name,
		PhoneNumber: c.PhoneNumber,
		Email:       c.Email,
		Balance:     c.Balance,
		DaysOverdue: c.DaysOverdue,
	}
}

type createCustomerRequest struct {
	Name         string  `json:"name"`
	PhoneNumber  string  `json:"phone_number"`
	Email        string  `json:"email"`
	AccountLast4 string  `json:"account_last4"`
	PostalCode   string  `json:"postal_code"`
	Balance      float64 `json:"balance"`
	DaysOverdue  int     `json:"days_overdue"`
}

func (req *createCustomerRequest) validate() string {
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateNoControlChars("name", req.Name); errMsg != "" {
		return errMsg
	}
	if errMsg := validatePhone("phone_number", req.PhoneNumber); errMsg != "" {
		return errMsg
	}
	if errMsg := validateEmail("email", req.Email); errMsg != "" {
		return errMsg
	}
	if errMsg := validateLast4("account_last4", req.AccountLast4); errMsg != "" {
		return errMsg
	}
	if errMsg := validatePostalCode("postal_code", req.PostalCode); errMsg != "" {
		return errMsg
	}
	if req.Balance < 0 {
		return "balance must not be negative"
	}
	if req.DaysOverdue < 0 {
		return "days_overdue must not be negative"
	}
	return ""
}

// handleCreateCustomer registers an account holder.
func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing, err := s.customers.GetByPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		s.logger.Error("create customer: lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "a customer with this phone number already exists")
		return
	}

	customer := &models.Customer{
		Name:         req.Name,
		PhoneNumber:  req.PhoneNumber,
		Email:        req.Email,
		AccountLast4: req.AccountLast4,
		PostalCode:   req.PostalCode,
		Balance:      req.Balance,
		DaysOverdue:  req.DaysOverdue,
	}
	if err := s.customers.Create(r.Context(), customer); err != nil {
		s.logger.Error("create customer: insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, toCustomerResponse(customer))
}

// handleGetCustomer returns a single customer by ID.
func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer id")
		return
	}

	customer, err := s.customers.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get customer: query failed", "customer_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}

	writeJSON(w, http.StatusOK, toCustomerResponse(customer))
}

type createTestCallRequest struct {
	CustomerID int64 `json:"customer_id"`
}

// handleCreateTestCall creates a synthetic call for a customer and
// registers an active session for it, so the agent tool endpoints can
// be exercised without a telephony provider. Test calls carry the
// "test_call" type and never touch the media path.
func (s *Server) handleCreateTestCall(w http.ResponseWriter, r *http.Request) {
	var req createTestCallRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, http.StatusBadRequest, "customer_id must be a positive integer")
		return
	}

	customer, err := s.customers.GetByID(r.Context(), req.CustomerID)
	if err != nil {
		s.logger.Error("create test call: lookup failed", "customer_id", req.CustomerID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "customer not found")
		return
	}

	call := &models.Call{
		CallSID:    "test_" + uuid.NewString(),
		CustomerID: customer.ID,
		CallType:   "test_call",
		Direction:  "outbound",
		Status:     models.CallStatusInProgress,
		StartTime:  time.Now().UTC(),
	}
	if err := s.calls.Create(r.Context(), call); err != nil {
		s.logger.Error("create test call: insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.sessions.Put(agent.NewSession(call.CallSID, customer.PhoneNumber))

	s.logger.Info("test call created", "call_sid", call.CallSID, "customer_id", customer.ID)
	writeJSON(w, http.StatusCreated, toCallResponse(call))
}

// handleDashboardStats returns live bridge and call outcome counters.
func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.calls.CountByOutcome(r.Context())
	if err != nil {
		s.logger.Error("dashboard stats: counting outcomes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	inbound, outbound, dropped := s.registry.FrameTotals()
	writeJSON(w, http.StatusOK, map[string]any{
		"active_bridges":  s.registry.ActiveBridges(),
		"active_sessions": s.sessions.Len(),
		"frames": map[string]int64{
			"inbound":  inbound,
			"outbound": outbound,
			"dropped":  dropped,
		},
		"outcomes": outcomes,
	})
}
