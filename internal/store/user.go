package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/merelax/internal/model"
)

type ParentStore struct {
	db *sql.DB
}

func NewParentStore(db *sql.DB) *ParentStore {
	return &ParentStore{db: db}
}

func scanParent(s scanner) (*model.Parent, error) {
	var p model.Parent
	var passwordHash, lineID sql.NullString
	err := s.Scan(&p.ID, &p.Email, &passwordHash, &lineID, &p.EmailVerified, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.PasswordHash = passwordHash.String
	if lineID.Valid {
		p.LineID = &lineID.String
	}
	return &p, nil
}

const parentCols = `id, email, password_hash, line_id, email_verified, created_at, updated_at`

// Create inserts a password credential. Returns ErrDuplicate if the email is taken.
func (s *ParentStore) Create(ctx context.Context, email, passwordHash string) (*model.Parent, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO parents (email, password_hash) VALUES (?, ?)`,
		email, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert parent: %w", mapInsertErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// CreateWithLine inserts a pre-verified credential bound to a LINE user id.
// Returns ErrDuplicate if the email or the LINE id is taken.
func (s *ParentStore) CreateWithLine(ctx context.Context, email, lineID string) (*model.Parent, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO parents (email, line_id, email_verified) VALUES (?, ?, 1)`,
		email, lineID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert line parent: %w", mapInsertErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ParentStore) GetByID(ctx context.Context, id int64) (*model.Parent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+parentCols+` FROM parents WHERE id = ?`, id)
	p, err := scanParent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parent: %w", err)
	}
	return p, nil
}

func (s *ParentStore) GetByEmail(ctx context.Context, email string) (*model.Parent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+parentCols+` FROM parents WHERE email = ?`, email)
	p, err := scanParent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parent by email: %w", err)
	}
	return p, nil
}

func (s *ParentStore) GetByLineID(ctx context.Context, lineID string) (*model.Parent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+parentCols+` FROM parents WHERE line_id = ?`, lineID)
	p, err := scanParent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parent by line id: %w", err)
	}
	return p, nil
}
