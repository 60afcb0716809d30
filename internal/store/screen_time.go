package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/merelax/internal/model"
)

type ScreenTimeStore struct {
	db *sql.DB
}

func NewScreenTimeStore(db *sql.DB) *ScreenTimeStore {
	return &ScreenTimeStore{db: db}
}

func scanScreenTimeSession(s scanner) (*model.ScreenTimeSession, error) {
	var st model.ScreenTimeSession
	var endTime sql.NullTime
	var total sql.NullInt64
	if err := s.Scan(&st.ID, &st.ChildID, &st.StartTime, &endTime, &total, &st.AlertFlag); err != nil {
		return nil, err
	}
	if endTime.Valid {
		st.EndTime = &endTime.Time
	}
	if total.Valid {
		n := int(total.Int64)
		st.TotalMinutes = &n
	}
	return &st, nil
}

const screenTimeCols = `id, child_id, start_time, end_time, total_minutes, alert_flag`

// GetActive returns the child's open session, or nil if there is none.
func (s *ScreenTimeStore) GetActive(ctx context.Context, childID int64) (*model.ScreenTimeSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+screenTimeCols+` FROM screen_time_sessions WHERE child_id = ? AND end_time IS NULL`,
		childID,
	)
	st, err := scanScreenTimeSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active screen time session: %w", err)
	}
	return st, nil
}

func (s *ScreenTimeStore) GetByID(ctx context.Context, id int64) (*model.ScreenTimeSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+screenTimeCols+` FROM screen_time_sessions WHERE id = ?`, id)
	st, err := scanScreenTimeSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get screen time session: %w", err)
	}
	return st, nil
}

// Create opens a session. Returns ErrDuplicate when the child already has
// an open one.
func (s *ScreenTimeStore) Create(ctx context.Context, childID int64, start time.Time) (*model.ScreenTimeSession, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO screen_time_sessions (child_id, start_time) VALUES (?, ?)`,
		childID, start.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert screen time session: %w", mapInsertErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// End closes an open session. It reports false when the session was
// already closed.
func (s *ScreenTimeStore) End(ctx context.Context, id int64, end time.Time, totalMinutes int, alert bool) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE screen_time_sessions SET end_time = ?, total_minutes = ?, alert_flag = ? WHERE id = ? AND end_time IS NULL`,
		end.UTC(), totalMinutes, alert, id,
	)
	if err != nil {
		return false, fmt.Errorf("end screen time session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
