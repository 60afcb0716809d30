package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/merelax/internal/model"
)

type RefreshTokenStore struct {
	db *sql.DB
}

func NewRefreshTokenStore(db *sql.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

func scanRefreshToken(s scanner) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	var revokedAt sql.NullTime
	err := s.Scan(&rt.ID, &rt.TokenID, &rt.ParentID, &rt.TokenHash, &rt.ExpiresAt, &revokedAt, &rt.CreatedAt)
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		rt.RevokedAt = &revokedAt.Time
	}
	return &rt, nil
}

const refreshTokenCols = `id, token_id, parent_id, token_hash, expires_at, revoked_at, created_at`

func (s *RefreshTokenStore) Create(ctx context.Context, tokenID string, parentID int64, tokenHash string, now, expiresAt time.Time) (*model.RefreshToken, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_id, parent_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		tokenID, parentID, tokenHash, expiresAt.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", mapInsertErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE id = ?`, id)
	return scanRefreshToken(row)
}

// GetByTokenID returns the record for the token's public selector, or nil if absent.
func (s *RefreshTokenStore) GetByTokenID(ctx context.Context, tokenID string) (*model.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE token_id = ?`, tokenID)
	rt, err := scanRefreshToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return rt, nil
}

// Revoke reports whether a live token was revoked by this call.
func (s *RefreshTokenStore) Revoke(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_id = ? AND revoked_at IS NULL`,
		at.UTC(), tokenID,
	)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *RefreshTokenStore) RevokeAllForParent(ctx context.Context, parentID int64, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE parent_id = ? AND revoked_at IS NULL`,
		at.UTC(), parentID,
	)
	if err != nil {
		return 0, fmt.Errorf("revoke parent refresh tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// DeleteStale removes expired and revoked tokens.
func (s *RefreshTokenStore) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ? OR revoked_at IS NOT NULL`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
