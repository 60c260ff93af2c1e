package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flemzord/daybook/internal/cron"
)

// Get implements cron.Store.
func (s *jobStore) Get(ctx context.Context, key cron.Key) (*cron.Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM jobs WHERE key = ?", string(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get job %s: %w", key, err)
	}
	return decodeRecord(raw)
}

// Put implements cron.Store.
func (s *jobStore) Put(ctx context.Context, r *cron.Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("sqlite: encode job %s: %w", r.Key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (key, state, next_fire_at, record, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			state = excluded.state,
			next_fire_at = excluded.next_fire_at,
			record = excluded.record,
			updated_at = excluded.updated_at`,
		string(r.Key), string(r.State), formatTime(r.NextFireAt), string(raw), formatTime(r.UpdatedAt).String,
	)
	if err != nil {
		return fmt.Errorf("sqlite: put job %s: %w", r.Key, err)
	}
	return nil
}

// List implements cron.Store.
func (s *jobStore) List(ctx context.Context) ([]*cron.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT record FROM jobs ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*cron.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan job: %w", err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list jobs rows: %w", err)
	}
	return out, nil
}

func decodeRecord(raw string) (*cron.Record, error) {
	var rec cron.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("sqlite: decode job: %w", err)
	}
	return &rec, nil
}
