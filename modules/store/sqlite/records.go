package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/daybook/internal/records"
)

const taskColumns = "id, title, notes, due_at, reminder_at, completed, updated_at"

func scanTask(s scanner) (records.Task, error) {
	var (
		t                      records.Task
		due, reminder, updated sql.NullString
		completed              int
	)
	if err := s.Scan(&t.ID, &t.Title, &t.Notes, &due, &reminder, &completed, &updated); err != nil {
		return t, err
	}
	t.Completed = completed != 0

	var err error
	if t.DueAt, err = parseTime(due); err != nil {
		return t, err
	}
	if t.ReminderAt, err = parseTime(reminder); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return t, err
	}
	return t, nil
}

// GetTaskByID implements records.Store.
func (s *recordStore) GetTaskByID(ctx context.Context, id string) (records.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return records.Task{}, records.ErrNotFound
	}
	if err != nil {
		return records.Task{}, fmt.Errorf("sqlite: get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasksDueBetween implements records.Store.
func (s *recordStore) ListTasksDueBetween(ctx context.Context, start, end time.Time) ([]records.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE due_at IS NOT NULL AND due_at >= ? AND due_at < ? ORDER BY due_at, id",
		formatTime(start).String, formatTime(end).String,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list due tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []records.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list due tasks rows: %w", err)
	}
	return out, nil
}

// UpdateTaskCompletion implements records.Store.
func (s *recordStore) UpdateTaskCompletion(ctx context.Context, id string, done bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET completed = ?, updated_at = ? WHERE id = ?",
		boolInt(done), formatTime(time.Now()).String, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update task %s: %w", id, err)
	}
	return expectRow(res, id)
}

// UpsertTask implements records.Store.
func (s *recordStore) UpsertTask(ctx context.Context, t records.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			notes = excluded.notes,
			due_at = excluded.due_at,
			reminder_at = excluded.reminder_at,
			completed = excluded.completed,
			updated_at = excluded.updated_at`,
		t.ID, t.Title, t.Notes, formatTime(t.DueAt), formatTime(t.ReminderAt), boolInt(t.Completed), formatTime(t.UpdatedAt).String,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert task %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTask implements records.Store.
func (s *recordStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete task %s: %w", id, err)
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return records.ErrNotFound
	}
	return nil
}

// ListQuoteCandidates implements records.Store.
func (s *recordStore) ListQuoteCandidates(ctx context.Context, activeOnly bool) ([]records.Quote, error) {
	query := "SELECT id, text, author, active FROM quotes"
	if activeOnly {
		query += " WHERE active = 1"
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list quotes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []records.Quote
	for rows.Next() {
		var (
			q      records.Quote
			active int
		)
		if err := rows.Scan(&q.ID, &q.Text, &q.Author, &active); err != nil {
			return nil, fmt.Errorf("sqlite: scan quote: %w", err)
		}
		q.Active = active != 0
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list quotes rows: %w", err)
	}
	return out, nil
}

// UpsertQuote implements records.Store.
func (s *recordStore) UpsertQuote(ctx context.Context, q records.Quote) error {
	if q.ID == "" || q.Text == "" {
		return errors.New("sqlite: quote id and text are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quotes (id, text, author, active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text, author = excluded.author, active = excluded.active`,
		q.ID, q.Text, q.Author, boolInt(q.Active),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert quote %s: %w", q.ID, err)
	}
	return nil
}

// ListActiveHabits implements records.Store.
func (s *recordStore) ListActiveHabits(ctx context.Context) ([]records.Habit, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, streak FROM habits WHERE active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list habits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []records.Habit
	for rows.Next() {
		h := records.Habit{Active: true}
		if err := rows.Scan(&h.ID, &h.Name, &h.Streak); err != nil {
			return nil, fmt.Errorf("sqlite: scan habit: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list habits rows: %w", err)
	}
	return out, nil
}

// UpsertHabit implements records.Store.
func (s *recordStore) UpsertHabit(ctx context.Context, h records.Habit) error {
	if h.ID == "" || h.Name == "" {
		return errors.New("sqlite: habit id and name are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (id, name, active, streak) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active, streak = excluded.streak`,
		h.ID, h.Name, boolInt(h.Active), h.Streak,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert habit %s: %w", h.ID, err)
	}
	return nil
}
