// Package credential implements parent sign-up, password plus one-time code
// login, LINE login and bearer token issuance.
package credential

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/merelax/internal/clock"
	"github.com/dukerupert/merelax/internal/metrics"
	"github.com/dukerupert/merelax/internal/model"
	"github.com/dukerupert/merelax/internal/store"
)

const (
	defaultCodeTTL  = 5 * time.Minute
	maxCodeAttempts = 5
	minPasswordLen  = 8
	maxPasswordLen  = 72 // bcrypt ignores anything longer
	tokenTypeBearer = "bearer"
)

type Options struct {
	Parents    *store.ParentStore
	Codes      *store.VerificationCodeStore
	Tokens     *store.RefreshTokenStore
	Codec      *Codec
	Clock      clock.Clock
	CodeTTL    time.Duration
	BcryptCost int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

type Engine struct {
	parents    *store.ParentStore
	codes      *store.VerificationCodeStore
	tokens     *store.RefreshTokenStore
	codec      *Codec
	clock      clock.Clock
	codeTTL    time.Duration
	bcryptCost int
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Compared against when no password hash exists, so unknown emails
	// cost the same bcrypt work as wrong passwords.
	dummyHash []byte
}

var compareHashAndPassword = bcrypt.CompareHashAndPassword

func NewEngine(opts Options) *Engine {
	e := &Engine{
		parents:    opts.Parents,
		codes:      opts.Codes,
		tokens:     opts.Tokens,
		codec:      opts.Codec,
		clock:      opts.Clock,
		codeTTL:    opts.CodeTTL,
		bcryptCost: opts.BcryptCost,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.codeTTL <= 0 {
		e.codeTTL = defaultCodeTTL
	}
	if e.bcryptCost == 0 {
		e.bcryptCost = bcrypt.DefaultCost
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	// Only fails for an out-of-range cost, which Register would reject too.
	e.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("merelax-no-password"), e.bcryptCost)
	return e
}

// Challenge is the pending second step of a password login.
type Challenge struct {
	SessionID string
	Code      string
	ExpiresAt time.Time
	ExpiresIn int
}

type Grant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	Parent       *model.Parent
}

type AccessGrant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return ErrInvalidPassword
	}
	return nil
}

func (e *Engine) Register(ctx context.Context, email, password string) (*model.Parent, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), e.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	p, err := e.parents.Create(ctx, email, string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		e.metrics.AuthEvent("register", "conflict")
		return nil, ErrAlreadyRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	e.metrics.AuthEvent("register", "success")
	e.logger.Info("parent registered", "parent_id", p.ID)
	return p, nil
}

// Login checks a password and opens a verification challenge. The code is
// returned to the caller; only its hash is stored.
func (e *Engine) Login(ctx context.Context, email, password string) (*Challenge, error) {
	email = NormalizeEmail(email)
	p, err := e.parents.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	hash := e.dummyHash
	if p != nil && p.HasPassword() {
		hash = []byte(p.PasswordHash)
	}
	if err := compareHashAndPassword(hash, []byte(password)); err != nil || p == nil || !p.HasPassword() {
		e.metrics.AuthEvent("login", "failure")
		return nil, ErrInvalidCredential
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), e.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}
	now := e.clock.Now()
	expiresAt := now.Add(e.codeTTL)
	sessionID := uuid.NewString()

	if _, err := e.codes.Create(ctx, sessionID, email, string(codeHash), now, expiresAt); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	e.metrics.AuthEvent("login", "success")
	return &Challenge{
		SessionID: sessionID,
		Code:      code,
		ExpiresAt: expiresAt,
		ExpiresIn: int(e.codeTTL / time.Second),
	}, nil
}

// VerifyCode completes a password login. A code verifies at most once.
func (e *Engine) VerifyCode(ctx context.Context, sessionID, code string) (*Grant, error) {
	vc, err := e.codes.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	now := e.clock.Now()
	if vc == nil || !vc.Usable(now) {
		e.metrics.AuthEvent("verify_code", "failure")
		return nil, ErrInvalidOrExpiredCode
	}

	if bcrypt.CompareHashAndPassword([]byte(vc.CodeHash), []byte(code)) != nil {
		e.metrics.AuthEvent("verify_code", "failure")
		attempts, err := e.codes.IncrementAttempts(ctx, vc.ID)
		if err != nil {
			return nil, fmt.Errorf("verify code: %w", err)
		}
		if attempts >= maxCodeAttempts {
			if _, err := e.codes.Consume(ctx, vc.ID, now); err != nil {
				return nil, fmt.Errorf("verify code: %w", err)
			}
			e.logger.Warn("verification code locked after too many attempts", "session_id", sessionID)
		}
		return nil, ErrInvalidOrExpiredCode
	}

	ok, err := e.codes.Consume(ctx, vc.ID, now)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	if !ok {
		e.metrics.AuthEvent("verify_code", "failure")
		return nil, ErrInvalidOrExpiredCode
	}

	p, err := e.parents.GetByEmail(ctx, vc.Email)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	if p == nil {
		return nil, ErrInvalidOrExpiredCode
	}
	e.metrics.AuthEvent("verify_code", "success")
	return e.issue(ctx, p)
}

// LoginWithLine signs in the parent bound to lineUserID, creating a
// pre-verified credential on first use.
func (e *Engine) LoginWithLine(ctx context.Context, lineUserID, profileEmail string) (*Grant, error) {
	if lineUserID == "" {
		return nil, ErrInvalidCredential
	}
	p, err := e.parents.GetByLineID(ctx, lineUserID)
	if err != nil {
		return nil, fmt.Errorf("line login: %w", err)
	}
	if p == nil {
		p, err = e.createLineParent(ctx, lineUserID, NormalizeEmail(profileEmail))
		if err != nil {
			return nil, fmt.Errorf("line login: %w", err)
		}
	}
	e.metrics.AuthEvent("line_login", "success")
	return e.issue(ctx, p)
}

func (e *Engine) createLineParent(ctx context.Context, lineUserID, email string) (*model.Parent, error) {
	placeholder := lineUserID + "@line.user"
	if email == "" {
		email = placeholder
	}

	p, err := e.parents.CreateWithLine(ctx, email, lineUserID)
	if errors.Is(err, store.ErrDuplicate) && email != placeholder {
		// The email may belong to another credential, or a concurrent first
		// login may have claimed the LINE id.
		if winner, gerr := e.parents.GetByLineID(ctx, lineUserID); gerr != nil || winner != nil {
			return winner, gerr
		}
		p, err = e.parents.CreateWithLine(ctx, placeholder, lineUserID)
	}
	if errors.Is(err, store.ErrDuplicate) {
		winner, gerr := e.parents.GetByLineID(ctx, lineUserID)
		if gerr != nil {
			return nil, gerr
		}
		if winner == nil {
			return nil, fmt.Errorf("create line parent %s: %w", lineUserID, err)
		}
		return winner, nil
	}
	if err != nil {
		return nil, err
	}
	e.logger.Info("parent registered via LINE", "parent_id", p.ID)
	return p, nil
}

func (e *Engine) issue(ctx context.Context, p *model.Parent) (*Grant, error) {
	access, _, err := e.codec.Sign(p.ID, KindAccess, "")
	if err != nil {
		return nil, err
	}
	jti := uuid.NewString()
	refresh, refreshExpires, err := e.codec.Sign(p.ID, KindRefresh, jti)
	if err != nil {
		return nil, err
	}
	if _, err := e.tokens.Create(ctx, jti, p.ID, hashToken(refresh), e.clock.Now(), refreshExpires); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &Grant{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int(e.codec.AccessTTL() / time.Second),
		Parent:       p,
	}, nil
}

// Authenticate resolves an access token to its parent.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*model.Parent, error) {
	claims, err := e.codec.Parse(accessToken, KindAccess)
	if err != nil {
		return nil, err
	}
	parentID, _ := claims.ParentID()
	p, err := e.parents.GetByID(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if p == nil {
		return nil, ErrInvalidToken
	}
	return p, nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is not rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	claims, err := e.lookupRefresh(ctx, refreshToken)
	if err != nil {
		e.metrics.AuthEvent("refresh", "failure")
		return nil, err
	}
	parentID, _ := claims.ParentID()
	access, _, err := e.codec.Sign(parentID, KindAccess, "")
	if err != nil {
		return nil, err
	}
	e.metrics.AuthEvent("refresh", "success")
	return &AccessGrant{
		AccessToken: access,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int(e.codec.AccessTTL() / time.Second),
	}, nil
}

// Logout revokes a refresh token.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.lookupRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	ok, err := e.tokens.Revoke(ctx, claims.ID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}
	e.metrics.AuthEvent("logout", "success")
	return nil
}

func (e *Engine) lookupRefresh(ctx context.Context, raw string) (*Claims, error) {
	claims, err := e.codec.Parse(raw, KindRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrInvalidToken
	}
	rt, err := e.tokens.GetByTokenID(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if rt == nil || !rt.Usable(e.clock.Now()) {
		return nil, ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(rt.TokenHash), []byte(hashToken(raw))) != 1 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Purge deletes verification codes and refresh tokens that can no longer be used.
func (e *Engine) Purge(ctx context.Context) (codes, tokens int64, err error) {
	now := e.clock.Now()
	codes, err = e.codes.DeleteStale(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	tokens, err = e.tokens.DeleteStale(ctx, now)
	if err != nil {
		return codes, 0, err
	}
	return codes, tokens, nil
}

// generateCode returns a 6-digit numeric code, leading zeros allowed.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
