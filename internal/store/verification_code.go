package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/merelax/internal/model"
)

type VerificationCodeStore struct {
	db *sql.DB
}

func NewVerificationCodeStore(db *sql.DB) *VerificationCodeStore {
	return &VerificationCodeStore{db: db}
}

func scanVerificationCode(s scanner) (*model.VerificationCode, error) {
	var vc model.VerificationCode
	var consumedAt sql.NullTime

	err := s.Scan(
		&vc.ID, &vc.SessionID, &vc.Email, &vc.CodeHash,
		&vc.ExpiresAt, &consumedAt, &vc.Attempts, &vc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if consumedAt.Valid {
		vc.ConsumedAt = &consumedAt.Time
	}
	return &vc, nil
}

const verificationCodeCols = `id, session_id, email, code_hash, expires_at, consumed_at, attempts, created_at`

// Create stores a hashed code under sessionID. Pending codes for the same
// email are consumed first so only the newest one can be verified.
func (s *VerificationCodeStore) Create(ctx context.Context, sessionID, email, codeHash string, now, expiresAt time.Time) (*model.VerificationCode, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE verification_codes SET consumed_at = ? WHERE email = ? AND consumed_at IS NULL`,
		now.UTC(), email,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_codes (session_id, email, code_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, email, codeHash, expiresAt.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert verification code: %w", mapInsertErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+verificationCodeCols+` FROM verification_codes WHERE id = ?`, id)
	return scanVerificationCode(row)
}

// GetBySessionID returns the code record for sessionID regardless of state, or nil if absent.
func (s *VerificationCodeStore) GetBySessionID(ctx context.Context, sessionID string) (*model.VerificationCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+verificationCodeCols+` FROM verification_codes WHERE session_id = ?`,
		sessionID,
	)
	vc, err := scanVerificationCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verification code: %w", err)
	}
	return vc, nil
}

// IncrementAttempts increments the attempt count and returns the new value.
func (s *VerificationCodeStore) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx,
		`UPDATE verification_codes SET attempts = attempts + 1 WHERE id = ? RETURNING attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return attempts, nil
}

// Consume marks the code used. It reports false when another caller
// consumed it first.
func (s *VerificationCodeStore) Consume(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE verification_codes SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// DeleteStale removes codes that expired or were consumed before now.
func (s *VerificationCodeStore) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE expires_at <= ? OR consumed_at IS NOT NULL`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale verification codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
