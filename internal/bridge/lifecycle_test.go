package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/database/models"
)

func openLifecycle(t *testing.T) (*Lifecycle, database.CallRepository, database.CustomerRepository) {
	t.Helper()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	calls := database.NewCallRepository(db)
	customers := database.NewCustomerRepository(db)
	return NewLifecycle(calls, customers, discardLogger()), calls, customers
}

func seedCall(t *testing.T, calls database.CallRepository, customers database.CustomerRepository, callSID string) *models.Customer {
	t.Helper()
	customer := &models.Customer{
		Name:         "Jordan Miller",
		PhoneNumber:  "+15550001111",
		AccountLast4: "4321",
		PostalCode:   "94110",
		Balance:      600.00,
		DaysOverdue:  30,
	}
	if err := customers.Create(context.Background(), customer); err != nil {
		t.Fatalf("seeding customer: %v", err)
	}
	call := &models.Call{
		CallSID:    callSID,
		CustomerID: customer.ID,
		CallType:   "real_call",
		Direction:  "inbound",
		Status:     models.CallStatusRinging,
		StartTime:  time.Now().UTC(),
	}
	if err := calls.Create(context.Background(), call); err != nil {
		t.Fatalf("seeding call: %v", err)
	}
	return customer
}

func TestLifecycleStreamStarted(t *testing.T) {
	lc, calls, customers := openLifecycle(t)
	seedCall(t, calls, customers, "CA500")

	session, err := lc.StreamStarted(context.Background(), &StartFrame{CallSID: "CA500"})
	if err != nil {
		t.Fatalf("stream started: %v", err)
	}
	if session.CallSID() != "CA500" {
		t.Errorf("session call sid = %q", session.CallSID())
	}
	if session.Phone() != "+15550001111" {
		t.Errorf("session phone = %q, want customer phone", session.Phone())
	}

	call, err := calls.GetBySID(context.Background(), "CA500")
	if err != nil || call == nil {
		t.Fatalf("fetching call: %v", err)
	}
	if call.Status != models.CallStatusInProgress {
		t.Errorf("call status = %q, want %q", call.Status, models.CallStatusInProgress)
	}
}

func TestLifecycleStreamStartedUnknownCall(t *testing.T) {
	lc, _, _ := openLifecycle(t)

	if _, err := lc.StreamStarted(context.Background(), &StartFrame{CallSID: "CA999"}); err == nil {
		t.Fatal("stream started for unknown call sid")
	}
	if _, err := lc.StreamStarted(context.Background(), &StartFrame{}); err == nil {
		t.Fatal("stream started without a call sid")
	}
}

func TestLifecycleStreamEnded(t *testing.T) {
	lc, calls, customers := openLifecycle(t)
	seedCall(t, calls, customers, "CA600")

	session, err := lc.StreamStarted(context.Background(), &StartFrame{CallSID: "CA600", StreamSID: "MZ600"})
	if err != nil {
		t.Fatalf("stream started: %v", err)
	}
	session.SetConversationID("conv_600")

	lc.StreamEnded(context.Background(), session, Termination{Cause: CauseNormal})

	call, err := calls.GetBySID(context.Background(), "CA600")
	if err != nil || call == nil {
		t.Fatalf("fetching call: %v", err)
	}
	if call.Status != models.CallStatusCompleted {
		t.Errorf("call status = %q, want %q", call.Status, models.CallStatusCompleted)
	}
	if call.EndTime == nil || call.DurationSeconds == nil {
		t.Fatal("terminal fields not persisted")
	}
	if call.ExtraData["conversation_id"] != "conv_600" {
		t.Errorf("conversation id not persisted: %v", call.ExtraData)
	}
	if call.ExtraData["termination_cause"] != "normal" {
		t.Errorf("termination cause not persisted: %v", call.ExtraData)
	}
}

func TestLifecycleStreamEndedFailure(t *testing.T) {
	lc, calls, customers := openLifecycle(t)
	seedCall(t, calls, customers, "CA700")

	session, err := lc.StreamStarted(context.Background(), &StartFrame{CallSID: "CA700"})
	if err != nil {
		t.Fatalf("stream started: %v", err)
	}

	lc.StreamEnded(context.Background(), session, Termination{Cause: CauseError})

	call, err := calls.GetBySID(context.Background(), "CA700")
	if err != nil || call == nil {
		t.Fatalf("fetching call: %v", err)
	}
	if call.Status != models.CallStatusFailed {
		t.Errorf("call status = %q, want %q", call.Status, models.CallStatusFailed)
	}
}

func TestLifecycleStreamEndedNilSession(t *testing.T) {
	lc, _, _ := openLifecycle(t)
	// Must not panic or write anything.
	lc.StreamEnded(context.Background(), nil, Termination{Cause: CauseConnectFailed})
}
