package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/duevoice/duevoice/internal/agent"
	"github.com/duevoice/duevoice/internal/config"
	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/database/models"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPPort:              8080,
		PublicHost:            "voice.example.com",
		LogLevel:              "info",
		LogFormat:             "text",
		JWTSecret:             strings.Repeat("ab", 32),
		EngineConnectTimeout:  time.Second,
		BridgeReadTimeout:     time.Second,
		MaxVerifyAttempts:     2,
		SettlementDiscountPct: 30,
		SettlementMinOverdue:  90,
		PaymentPlanMonths:     6,
	}
}

func newTestServer(t *testing.T) (*Server, *database.DB, *agent.Store) {
	t.Helper()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sessions := agent.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := NewServer(testConfig(), db, nil, nil, sessions, nil, logger)
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	t.Cleanup(srv.Close)

	return srv, db, sessions
}

// doJSON sends a JSON request and returns the recorded response.
func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// doForm posts form-encoded values, the way the telephony provider does.
func doForm(t *testing.T, srv *Server, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the "data" field of a response envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %q)", err, rec.Body.String())
	}
	if env.Error != "" {
		t.Fatalf("unexpected error in envelope: %q", env.Error)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decoding data: %v (data %q)", err, string(env.Data))
	}
}

// envelopeError returns the "error" field of a response envelope.
func envelopeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %q)", err, rec.Body.String())
	}
	return env.Error
}

func seedTestCustomer(t *testing.T, db *database.DB) *models.Customer {
	t.Helper()

	customer := &models.Customer{
		Name:         "Jordan Miller",
		PhoneNumber:  "+15550001111",
		AccountLast4: "4321",
		PostalCode:   "94110",
		Balance:      600.00,
		DaysOverdue:  30,
	}
	if err := database.NewCustomerRepository(db).Create(context.Background(), customer); err != nil {
		t.Fatalf("seeding customer: %v", err)
	}
	return customer
}

func seedTestCall(t *testing.T, db *database.DB, callSID string, customerID int64) *models.Call {
	t.Helper()

	call := &models.Call{
		CallSID:    callSID,
		CustomerID: customerID,
		CallType:   "real_call",
		Direction:  "inbound",
		Status:     models.CallStatusRinging,
		StartTime:  time.Now().UTC(),
	}
	if err := database.NewCallRepository(db).Create(context.Background(), call); err != nil {
		t.Fatalf("seeding call: %v", err)
	}
	return call
}
