package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/duevoice/duevoice/internal/database/models"
)

// callRepo implements CallRepository.
type callRepo struct {
	db *DB
}

// NewCallRepository creates a new CallRepository.
func NewCallRepository(db *DB) CallRepository {
	return &callRepo{db: db}
}

// Create inserts a new call record.
func (r *callRepo) Create(ctx context.Context, call *models.Call) error {
	extra, err := marshalExtraData(call.ExtraData)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO calls (call_sid, customer_id, call_type, direction, status,
		 outcome, start_time, end_time, duration_seconds, extra_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		call.CallSID, call.CustomerID, call.CallType, call.Direction, call.Status,
		call.Outcome, call.StartTime, call.EndTime, call.DurationSeconds, extra,
	)
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	call.ID = id
	return nil
}

// GetBySID returns a call by its provider call SID.
func (r *callRepo) GetBySID(ctx context.Context, callSID string) (*models.Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, call_sid, customer_id, call_type, direction, status, outcome,
		 start_time, end_time, duration_seconds, extra_data, created_at
		 FROM calls WHERE call_sid = ?`, callSID,
	))
}

// List returns calls matching the filter, along with the total count.
func (r *callRepo) List(ctx context.Context, filter CallListFilter) ([]models.Call, int, error) {
	where := "1=1"
	args := []any{}

	if filter.CustomerID != 0 {
		where += " AND customer_id = ?"
		args = append(args, filter.CustomerID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM calls WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting calls: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_sid, customer_id, call_type, direction, status, outcome,
		 start_time, end_time, duration_seconds, extra_data, created_at
		 FROM calls WHERE `+where+` ORDER BY start_time DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	var calls []models.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, *call)
	}
	return calls, total, rows.Err()
}

// UpdateEnd marks a call completed with its end time, duration and outcome.
// An empty outcome preserves any outcome already recorded.
func (r *callRepo) UpdateEnd(ctx context.Context, callSID string, endTime time.Time, durationSeconds int, outcome string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status = ?, end_time = ?, duration_seconds = ?,
		 outcome = CASE WHEN ? != '' THEN ? ELSE outcome END
		 WHERE call_sid = ?`,
		models.CallStatusCompleted, endTime, durationSeconds, outcome, outcome, callSID,
	)
	if err != nil {
		return fmt.Errorf("updating call end: %w", err)
	}
	return nil
}

// UpdateStatus sets the call status.
func (r *callRepo) UpdateStatus(ctx context.Context, callSID, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status = ? WHERE call_sid = ?`, status, callSID,
	)
	if err != nil {
		return fmt.Errorf("updating call status: %w", err)
	}
	return nil
}

// MergeExtraData merges the patch into the call's extra data JSON object.
// The merge is shallow: top-level keys in the patch replace existing keys.
func (r *callRepo) MergeExtraData(ctx context.Context, callSID string, patch map[string]any) error {
	call, err := r.GetBySID(ctx, callSID)
	if err != nil {
		return err
	}
	if call == nil {
		return fmt.Errorf("merging extra data: no call with sid %q", callSID)
	}

	merged := call.ExtraData
	if merged == nil {
		merged = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		merged[k] = v
	}

	extra, err := marshalExtraData(merged)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE calls SET extra_data = ? WHERE call_sid = ?`, extra, callSID,
	)
	if err != nil {
		return fmt.Errorf("updating call extra data: %w", err)
	}
	return nil
}

// RecordArrangement stores the payment arrangement in the call's extra data
// and sets the call outcome.
func (r *callRepo) RecordArrangement(ctx context.Context, callSID string, arr *models.PaymentArrangement) error {
	if err := r.MergeExtraData(ctx, callSID, map[string]any{"payment_arrangement": arr}); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET outcome = ? WHERE call_sid = ?`,
		models.OutcomePaymentArranged, callSID,
	)
	if err != nil {
		return fmt.Errorf("updating call outcome: %w", err)
	}
	return nil
}

// CountByOutcome returns call counts grouped by outcome. Calls with no
// outcome are grouped under "none".
func (r *callRepo) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT CASE WHEN outcome = '' THEN 'none' ELSE outcome END, COUNT(*)
		 FROM calls GROUP BY 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("counting calls by outcome: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*models.Call, error) {
	var c models.Call
	var extra string
	err := row.Scan(&c.ID, &c.CallSID, &c.CustomerID, &c.CallType, &c.Direction,
		&c.Status, &c.Outcome, &c.StartTime, &c.EndTime, &c.DurationSeconds,
		&extra, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning call: %w", err)
	}
	if extra != "" {
		if err := json.Unmarshal([]byte(extra), &c.ExtraData); err != nil {
			return nil, fmt.Errorf("decoding call extra data: %w", err)
		}
	}
	return &c, nil
}

func (r *callRepo) scanOne(row *sql.Row) (*models.Call, error) {
	call, err := scanCall(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return call, nil
}

func marshalExtraData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding call extra data: %w", err)
	}
	return string(b), nil
}
