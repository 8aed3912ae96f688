package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/duevoice/duevoice/internal/agent"
	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/database/models"
)

// toolResult mirrors the JSON shape of an agent tool response.
type toolResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	EndCall bool           `json:"end_call"`
	Data    map[string]any `json:"data"`
}

func TestToolVerifyIdentity(t *testing.T) {
	srv, db, sessions := newTestServer(t)
	customer := seedTestCustomer(t, db)
	seedTestCall(t, db, "CA1", customer.ID)
	sessions.Put(agent.NewSession("CA1", customer.PhoneNumber))

	// Wrong credentials first.
	rec := doJSON(t, srv, http.MethodPost, "/webhooks/tools/verify-identity", "", map[string]any{
		"call_sid":      "CA1",
		"account_last4": "0000",
		"postal_code":   "94110",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result toolResult
	decodeData(t, rec, &result)
	if result.Success {
		t.Error("mismatched credentials must not verify")
	}
	if result.EndCall {
		t.Error("first mismatch must not end the call")
	}
	if !strings.Contains(result.Message, "1 attempt remaining") {
		t.Errorf("message = %q, want remaining-attempt phrasing", result.Message)
	}

	// Correct credentials on the second attempt.
	rec = doJSON(t, srv, http.MethodPost, "/webhooks/tools/verify-identity", "", map[string]any{
		"call_sid":      "CA1",
		"account_last4": "4321",
		"postal_code":   "94110",
	})
	decodeData(t, rec, &result)
	if !result.Success {
		t.Fatalf("verification failed: %q", result.Message)
	}
	if !strings.Contains(result.Message, "Jordan Miller") {
		t.Errorf("message = %q, want customer name", result.Message)
	}
}

func TestToolUnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{
		"/webhooks/tools/verify-identity",
		"/webhooks/tools/payment-options",
		"/webhooks/tools/record-payment",
	} {
		t.Run(path, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, path, "", map[string]any{
				"call_sid": "CA_missing",
			})
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var result toolResult
			decodeData(t, rec, &result)
			if result.Success {
				t.Error("unknown session must not succeed")
			}
			if !result.EndCall {
				t.Error("unknown session must end the call")
			}
		})
	}
}

func TestToolResolvesByConversationID(t *testing.T) {
	srv, db, sessions := newTestServer(t)
	customer := seedTestCustomer(t, db)
	seedTestCall(t, db, "CA2", customer.ID)

	session := agent.NewSession("CA2", customer.PhoneNumber)
	session.SetConversationID("conv_42")
	sessions.Put(session)

	rec := doJSON(t, srv, http.MethodPost, "/webhooks/tools/verify-identity", "", map[string]any{
		"conversation_id": "conv_42",
		"account_last4":   "4321",
		"postal_code":     "94110",
	})
	var result toolResult
	decodeData(t, rec, &result)
	if !result.Success {
		t.Fatalf("verification failed: %q", result.Message)
	}
}

func TestToolPaymentFlow(t *testing.T) {
	srv, db, sessions := newTestServer(t)
	customer := seedTestCustomer(t, db)
	seedTestCall(t, db, "CA3", customer.ID)
	sessions.Put(agent.NewSession("CA3", customer.PhoneNumber))

	// Options are gated on verification.
	rec := doJSON(t, srv, http.MethodPost, "/webhooks/tools/payment-options", "", map[string]any{
		"call_sid": "CA3",
	})
	var result toolResult
	decodeData(t, rec, &result)
	if result.Success {
		t.Error("options must not be presented before verification")
	}

	rec = doJSON(t, srv, http.MethodPost, "/webhooks/tools/verify-identity", "", map[string]any{
		"call_sid":      "CA3",
		"account_last4": "4321",
		"postal_code":   "94110",
	})
	decodeData(t, rec, &result)
	if !result.Success {
		t.Fatalf("verification failed: %q", result.Message)
	}

	rec = doJSON(t, srv, http.MethodPost, "/webhooks/tools/payment-options", "", map[string]any{
		"call_sid": "CA3",
	})
	decodeData(t, rec, &result)
	if !result.Success {
		t.Fatalf("presenting options failed: %q", result.Message)
	}
	if !strings.Contains(result.Message, "$600.00") {
		t.Errorf("message = %q, want full balance amount", result.Message)
	}
	if _, ok := result.Data["options"]; !ok {
		t.Error("options missing from data")
	}

	rec = doJSON(t, srv, http.MethodPost, "/webhooks/tools/record-payment", "", map[string]any{
		"call_sid":       "CA3",
		"payment_method": "sms_link",
		"option":         "full_payment",
	})
	decodeData(t, rec, &result)
	if !result.Success {
		t.Fatalf("recording payment failed: %q", result.Message)
	}
	if recorded, ok := result.Data["recorded"].(bool); !ok || !recorded {
		t.Errorf("recorded = %v, want true", result.Data["recorded"])
	}

	call, err := database.NewCallRepository(db).GetBySID(context.Background(), "CA3")
	if err != nil {
		t.Fatalf("looking up call: %v", err)
	}
	if call.Outcome != models.OutcomePaymentArranged {
		t.Errorf("outcome = %q, want %q", call.Outcome, models.OutcomePaymentArranged)
	}
	if _, ok := call.ExtraData["payment_arrangement"]; !ok {
		t.Error("arrangement missing from call extra data")
	}
}

func TestToolBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := doJSON(t, srv, http.MethodPost, "/webhooks/tools/verify-identity", "", nil)
	if req.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", req.Code)
	}
	if msg := envelopeError(t, req); msg != "request body must not be empty" {
		t.Errorf("error = %q", msg)
	}
}
