package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/merelax/internal/model"
)

type ChildStore struct {
	db *sql.DB
}

func NewChildStore(db *sql.DB) *ChildStore {
	return &ChildStore{db: db}
}

func scanChild(s scanner) (*model.Child, error) {
	var c model.Child
	if err := s.Scan(&c.ID, &c.ParentID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

const childCols = `id, parent_id, name, created_at, updated_at`

func (s *ChildStore) Create(ctx context.Context, parentID int64, name string, now time.Time) (*model.Child, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO children (parent_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		parentID, name, now.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert child: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ChildStore) GetByID(ctx context.Context, id int64) (*model.Child, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+childCols+` FROM children WHERE id = ?`, id)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return c, nil
}

func (s *ChildStore) ListByParent(ctx context.Context, parentID int64) ([]model.Child, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+childCols+` FROM children WHERE parent_id = ? ORDER BY id ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children []model.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, *c)
	}
	return children, rows.Err()
}

// Delete removes the child together with its exercise logs and screen time
// sessions. Child data is owned by the child and goes with it.
func (s *ChildStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exercise_logs WHERE child_id = ?`, id); err != nil {
		return fmt.Errorf("delete exercise logs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM screen_time_sessions WHERE child_id = ?`, id); err != nil {
		return fmt.Errorf("delete screen time sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM children WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	return tx.Commit()
}
