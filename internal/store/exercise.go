package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/merelax/internal/model"
)

type ExerciseStore struct {
	db *sql.DB
}

func NewExerciseStore(db *sql.DB) *ExerciseStore {
	return &ExerciseStore{db: db}
}

func scanExercise(s scanner) (*model.Exercise, error) {
	var e model.Exercise
	if err := s.Scan(&e.ID, &e.Type, &e.Name, &e.Description, &e.SortOrder); err != nil {
		return nil, err
	}
	return &e, nil
}

const exerciseCols = `id, exercise_type, name, description, sort_order`

// List returns the exercise catalogue in its fixed display order.
func (s *ExerciseStore) List(ctx context.Context) ([]model.Exercise, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+exerciseCols+` FROM exercises ORDER BY sort_order ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var exercises []model.Exercise
	for rows.Next() {
		e, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		exercises = append(exercises, *e)
	}
	return exercises, rows.Err()
}

func (s *ExerciseStore) GetByID(ctx context.Context, id int64) (*model.Exercise, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+exerciseCols+` FROM exercises WHERE id = ?`, id)
	e, err := scanExercise(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exercise: %w", err)
	}
	return e, nil
}

// CreateLog records a completion. Returns ErrDuplicate when the child already
// completed the exercise on that date.
func (s *ExerciseStore) CreateLog(ctx context.Context, childID, exerciseID int64, date string, now time.Time) (*model.ExerciseLog, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO exercise_logs (child_id, exercise_id, exercise_date, created_at) VALUES (?, ?, ?, ?)`,
		childID, exerciseID, date, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert exercise log: %w", mapInsertErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var l model.ExerciseLog
	err = s.db.QueryRowContext(ctx,
		`SELECT id, child_id, exercise_id, exercise_date, created_at FROM exercise_logs WHERE id = ?`, id,
	).Scan(&l.ID, &l.ChildID, &l.ExerciseID, &l.ExerciseDate, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get exercise log: %w", err)
	}
	return &l, nil
}

// ListDates returns the distinct dates on which the child logged any exercise, newest first.
func (s *ExerciseStore) ListDates(ctx context.Context, childID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT exercise_date FROM exercise_logs WHERE child_id = ? ORDER BY exercise_date DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list exercise dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan exercise date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// CompletedOn returns the set of exercise ids the child logged on date.
func (s *ExerciseStore) CompletedOn(ctx context.Context, childID int64, date string) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT exercise_id FROM exercise_logs WHERE child_id = ? AND exercise_date = ?`,
		childID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list completed exercises: %w", err)
	}
	defer rows.Close()

	done := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan exercise id: %w", err)
		}
		done[id] = true
	}
	return done, rows.Err()
}
