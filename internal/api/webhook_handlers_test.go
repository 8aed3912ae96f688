package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/database/models"
)

func TestIncomingCallKnownCaller(t *testing.T) {
	srv, db, _ := newTestServer(t)
	seedTestCustomer(t, db)

	rec := doForm(t, srv, "/webhooks/voice/incoming", url.Values{
		"CallSid": {"CA100"},
		"From":    {"+15550001111"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "<Connect>") {
		t.Errorf("response does not connect the stream: %q", body)
	}
	if !strings.Contains(body, `url="wss://voice.example.com/ws/stream"`) {
		t.Errorf("response missing stream url: %q", body)
	}
	if !strings.Contains(body, `name="call_sid"`) || !strings.Contains(body, `value="CA100"`) {
		t.Errorf("response missing call_sid parameter: %q", body)
	}

	call, err := database.NewCallRepository(db).GetBySID(context.Background(), "CA100")
	if err != nil {
		t.Fatalf("looking up call: %v", err)
	}
	if call == nil {
		t.Fatal("no call record created")
	}
	if call.Status != models.CallStatusRinging {
		t.Errorf("call status = %q, want %q", call.Status, models.CallStatusRinging)
	}
	if call.CallType != "real_call" {
		t.Errorf("call type = %q, want real_call", call.CallType)
	}
}

func TestIncomingCallUnknownCaller(t *testing.T) {
	srv, db, _ := newTestServer(t)

	rec := doForm(t, srv, "/webhooks/voice/incoming", url.Values{
		"CallSid": {"CA200"},
		"From":    {"+15559998888"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "<Hangup") {
		t.Errorf("response does not hang up: %q", body)
	}
	if strings.Contains(body, "<Connect>") {
		t.Errorf("unknown caller must not be connected: %q", body)
	}
	if !strings.Contains(body, "could not match your phone number") {
		t.Errorf("response missing decline message: %q", body)
	}

	call, err := database.NewCallRepository(db).GetBySID(context.Background(), "CA200")
	if err != nil {
		t.Fatalf("looking up call: %v", err)
	}
	if call != nil {
		t.Error("declined call must not create a call record")
	}
}

func TestIncomingCallMissingFields(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doForm(t, srv, "/webhooks/voice/incoming", url.Values{
		"CallSid": {"CA300"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCallStatusCompleted(t *testing.T) {
	srv, db, _ := newTestServer(t)
	customer := seedTestCustomer(t, db)
	seedTestCall(t, db, "CA400", customer.ID)

	rec := doForm(t, srv, "/webhooks/voice/status", url.Values{
		"CallSid":      {"CA400"},
		"CallStatus":   {"completed"},
		"CallDuration": {"42"},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	call, err := database.NewCallRepository(db).GetBySID(context.Background(), "CA400")
	if err != nil {
		t.Fatalf("looking up call: %v", err)
	}
	if call.Status != models.CallStatusCompleted {
		t.Errorf("call status = %q, want %q", call.Status, models.CallStatusCompleted)
	}
	if call.EndTime == nil {
		t.Error("end time not set")
	}
	if call.DurationSeconds == nil || *call.DurationSeconds != 42 {
		t.Errorf("duration = %v, want 42", call.DurationSeconds)
	}
}

func TestCallStatusCompletedNoDuration(t *testing.T) {
	srv, db, _ := newTestServer(t)
	customer := seedTestCustomer(t, db)

	calls := database.NewCallRepository(db)
	call := &models.Call{
		CallSID:    "CA410",
		CustomerID: customer.ID,
		CallType:   "real_call",
		Direction:  "inbound",
		Status:     models.CallStatusInProgress,
		StartTime:  time.Now().UTC().Add(-90 * time.Second),
	}
	if err := calls.Create(context.Background(), call); err != nil {
		t.Fatalf("seeding call: %v", err)
	}

	rec := doForm(t, srv, "/webhooks/voice/status", url.Values{
		"CallSid":    {"CA410"},
		"CallStatus": {"completed"},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	got, err := calls.GetBySID(context.Background(), "CA410")
	if err != nil {
		t.Fatalf("looking up call: %v", err)
	}
	if got.DurationSeconds == nil {
		t.Fatal("duration not set")
	}
	// No CallDuration on the wire, so the duration falls back to the
	// time elapsed since the call started.
	if *got.DurationSeconds < 89 || *got.DurationSeconds > 120 {
		t.Errorf("duration = %d, want about 90 seconds", *got.DurationSeconds)
	}
}

func TestCallStatusCompletedKeepsBridgeDuration(t *testing.T) {
	srv, db, _ := newTestServer(t)
	customer := seedTestCustomer(t, db)
	seedTestCall(t, db, "CA420", customer.ID)

	calls := database.NewCallRepository(db)
	if err := calls.UpdateEnd(context.Background(), "CA420", time.Now().UTC(), 33, ""); err != nil {
		t.Fatalf("recording bridge end: %v", err)
	}

	rec := doForm(t, srv, "/webhooks/voice/status", url.Values{
		"CallSid":    {"CA420"},
		"CallStatus": {"completed"},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	got, err := calls.GetBySID(context.Background(), "CA420")
	if err != nil {
		t.Fatalf("looking up call: %v", err)
	}
	if got.DurationSeconds == nil || *got.DurationSeconds != 33 {
		t.Errorf("duration = %v, want the already-recorded 33", got.DurationSeconds)
	}
}

func TestCallStatusPreservesOutcome(t *testing.T) {
	srv, db, _ := newTestServer(t)
	customer := seedTestCustomer(t, db)
	seedTestCall(t, db, "CA500", customer.ID)

	calls := database.NewCallRepository(db)
	arr := &models.PaymentArrangement{
		PaymentMethod: "sms_link",
		Option:        "full_payment",
		Amount:        600.00,
		Timestamp:     time.Now().UTC(),
		CustomerID:    customer.ID,
	}
	if err := calls.RecordArrangement(context.Background(), "CA500", arr); err != nil {
		t.Fatalf("recording arrangement: %v", err)
	}

	rec := doForm(t, srv, "/webhooks/voice/status", url.Values{
		"CallSid":    {"CA500"},
		"CallStatus": {"completed"},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	call, err := calls.GetBySID(context.Background(), "CA500")
	if err != nil {
		t.Fatalf("looking up call: %v", err)
	}
	if call.Outcome != models.OutcomePaymentArranged {
		t.Errorf("outcome = %q, want %q", call.Outcome, models.OutcomePaymentArranged)
	}
}

func TestCallStatusMapping(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"busy", models.CallStatusFailed},
		{"no-answer", models.CallStatusFailed},
		{"canceled", models.CallStatusFailed},
		{"in-progress", models.CallStatusInProgress},
		{"queued", models.CallStatusRinging},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			srv, db, _ := newTestServer(t)
			customer := seedTestCustomer(t, db)
			seedTestCall(t, db, "CA600", customer.ID)

			rec := doForm(t, srv, "/webhooks/voice/status", url.Values{
				"CallSid":    {"CA600"},
				"CallStatus": {tt.provider},
			})
			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want 204", rec.Code)
			}

			call, err := database.NewCallRepository(db).GetBySID(context.Background(), "CA600")
			if err != nil {
				t.Fatalf("looking up call: %v", err)
			}
			if call.Status != tt.want {
				t.Errorf("call status = %q, want %q", call.Status, tt.want)
			}
		})
	}
}
