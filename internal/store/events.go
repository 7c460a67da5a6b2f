package store

import (
	"context"
	"time"
)

// ClaimEvent records a webhook event as processed and reports whether this
// call was the first to claim it. Insert-first, process-after: external
// systems deliver webhooks at least once, and the unique constraint on
// (provider, event_id) is what keeps a replay from double-triggering
// fulfillment or notifications.
func (s *Store) ClaimEvent(ctx context.Context, provider, eventID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (provider, event_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, time.Now())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ReleaseEvent removes a claim so a failed handler can be retried by the
// sender's next delivery attempt.
func (s *Store) ReleaseEvent(ctx context.Context, provider, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_events WHERE provider = $1 AND event_id = $2`,
		provider, eventID)
	return err
}

// LogActivity appends an audit record. Best-effort from callers that are
// already past their own commit point.
func (s *Store) LogActivity(ctx context.Context, action, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_logs (action, description, created_at) VALUES ($1, $2, $3)`,
		action, description, time.Now())
	return err
}

type ActivityEntry struct {
	ID          int64     `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecentActivity returns the newest audit records for the admin dashboard.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, description, created_at
		FROM activity_logs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
