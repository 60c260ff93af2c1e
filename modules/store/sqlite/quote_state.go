package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flemzord/daybook/internal/quote"
)

// LoadQuoteState implements quote.StateStore. An unknown family has the
// zero state.
func (s *quoteStateStore) LoadQuoteState(ctx context.Context, family string) (quote.State, error) {
	var st quote.State
	err := s.db.QueryRowContext(ctx, "SELECT last_shown_id FROM widget_state WHERE family = ?", family).Scan(&st.LastShownID)
	if errors.Is(err, sql.ErrNoRows) {
		return quote.State{}, nil
	}
	if err != nil {
		return quote.State{}, fmt.Errorf("sqlite: load widget state %s: %w", family, err)
	}
	return st, nil
}

// SaveQuoteState implements quote.StateStore.
func (s *quoteStateStore) SaveQuoteState(ctx context.Context, family string, st quote.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO widget_state (family, last_shown_id, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(family) DO UPDATE SET
			last_shown_id = excluded.last_shown_id,
			updated_at = excluded.updated_at`,
		family, st.LastShownID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save widget state %s: %w", family, err)
	}
	return nil
}
