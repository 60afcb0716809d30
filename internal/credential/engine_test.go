package credential

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/merelax/internal/clock"
	"github.com/dukerupert/merelax/internal/database"
	"github.com/dukerupert/merelax/internal/store"
)

const testSecret = "test-secret-0123456789"

type testEnv struct {
	engine  *Engine
	clock   *clock.Mock
	parents *store.ParentStore
}

func setupEngine(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "merelax.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clk := clock.NewMock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	parents := store.NewParentStore(db)
	e := NewEngine(Options{
		Parents:    parents,
		Codes:      store.NewVerificationCodeStore(db),
		Tokens:     store.NewRefreshTokenStore(db),
		Codec:      NewCodec(testSecret, 30*time.Minute, 7*24*time.Hour, clk),
		Clock:      clk,
		BcryptCost: bcrypt.MinCost,
	})
	return &testEnv{engine: e, clock: clk, parents: parents}
}

func (env *testEnv) register(t *testing.T, email, password string) {
	t.Helper()
	if _, err := env.engine.Register(t.Context(), email, password); err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
}

func (env *testEnv) login(t *testing.T) *Grant {
	t.Helper()
	env.register(t, "alice@example.com", "password123")
	ch, err := env.engine.Login(t.Context(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	g, err := env.engine.VerifyCode(t.Context(), ch.SessionID, ch.Code)
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}
	return g
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestRegister(t *testing.T) {
	env := setupEngine(t)

	p, err := env.engine.Register(t.Context(), "  Alice@Example.com ", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", p.Email, "alice@example.com")
	}
	if p.EmailVerified {
		t.Error("new credential should not be verified")
	}
	if p.PasswordHash == "password123" {
		t.Error("password stored in plain text")
	}

	_, err = env.engine.Register(t.Context(), "alice@example.com", "otherpassword")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate err = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := setupEngine(t)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"missing at", "alice.example.com", "password123", ErrInvalidEmail},
		{"empty email", "", "password123", ErrInvalidEmail},
		{"display name", "Alice <alice@example.com>", "password123", ErrInvalidEmail},
		{"short password", "alice@example.com", "short", ErrInvalidPassword},
		{"long password", "alice@example.com", string(make([]byte, 73)), ErrInvalidPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Register(t.Context(), tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := setupEngine(t)
	env.register(t, "alice@example.com", "password123")

	if _, err := env.engine.Login(t.Context(), "alice@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredential", err)
	}
	if _, err := env.engine.Login(t.Context(), "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("unknown email err = %v, want ErrInvalidCredential", err)
	}
}

func TestLoginHashesEvenWithoutPassword(t *testing.T) {
	env := setupEngine(t)
	if _, err := env.engine.LoginWithLine(t.Context(), "U500", "dave@example.com"); err != nil {
		t.Fatalf("line login: %v", err)
	}

	var compared int
	orig := compareHashAndPassword
	compareHashAndPassword = func(hash, password []byte) error {
		compared++
		return orig(hash, password)
	}
	t.Cleanup(func() { compareHashAndPassword = orig })

	// The placeholder plaintext behind the comparison must not sign anyone in.
	for _, email := range []string{"nobody@example.com", "dave@example.com"} {
		compared = 0
		if _, err := env.engine.Login(t.Context(), email, "merelax-no-password"); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("%s err = %v, want ErrInvalidCredential", email, err)
		}
		if compared != 1 {
			t.Errorf("%s ran %d hash comparisons, want 1", email, compared)
		}
	}
}

func TestLoginIssuesChallenge(t *testing.T) {
	env := setupEngine(t)
	env.register(t, "alice@example.com", "password123")

	ch, err := env.engine.Login(t.Context(), "ALICE@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(ch.Code) != 6 {
		t.Errorf("code = %q, want 6 digits", ch.Code)
	}
	for _, r := range ch.Code {
		if r < '0' || r > '9' {
			t.Errorf("code %q has non-digit %q", ch.Code, r)
		}
	}
	if ch.SessionID == "" {
		t.Error("expected session id")
	}
	if ch.ExpiresIn != 300 {
		t.Errorf("expires_in = %d, want 300", ch.ExpiresIn)
	}
	if want := env.clock.Now().Add(5 * time.Minute); !ch.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", ch.ExpiresAt, want)
	}
}

func TestVerifyCodeOnce(t *testing.T) {
	env := setupEngine(t)
	env.register(t, "alice@example.com", "password123")
	ch, err := env.engine.Login(t.Context(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	g, err := env.engine.VerifyCode(t.Context(), ch.SessionID, ch.Code)
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}
	if g.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", g.TokenType)
	}
	if g.ExpiresIn != 1800 {
		t.Errorf("expires_in = %d, want 1800", g.ExpiresIn)
	}
	if g.Parent.Email != "alice@example.com" {
		t.Errorf("parent email = %q", g.Parent.Email)
	}

	_, err = env.engine.VerifyCode(t.Context(), ch.SessionID, ch.Code)
	if !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Errorf("second verify err = %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestVerifyCodeExpires(t *testing.T) {
	env := setupEngine(t)
	env.register(t, "alice@example.com", "password123")
	ch, err := env.engine.Login(t.Context(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.clock.Advance(5 * time.Minute)
	_, err = env.engine.VerifyCode(t.Context(), ch.SessionID, ch.Code)
	if !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Errorf("err = %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestVerifyCodeUnknownSession(t *testing.T) {
	env := setupEngine(t)

	_, err := env.engine.VerifyCode(t.Context(), "no-such-session", "123456")
	if !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Errorf("err = %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestVerifyCodeLocksAfterFailedAttempts(t *testing.T) {
	env := setupEngine(t)
	env.register(t, "alice@example.com", "password123")
	ch, err := env.engine.Login(t.Context(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	for i := 0; i < maxCodeAttempts; i++ {
		_, err := env.engine.VerifyCode(t.Context(), ch.SessionID, wrongCode(ch.Code))
		if !errors.Is(err, ErrInvalidOrExpiredCode) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidOrExpiredCode", i+1, err)
		}
	}
	_, err = env.engine.VerifyCode(t.Context(), ch.SessionID, ch.Code)
	if !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Errorf("correct code after lockout err = %v, want ErrInvalidOrExpiredCode", err)
	}
}

func TestVerifyCodeConcurrent(t *testing.T) {
	env := setupEngine(t)
	env.register(t, "alice@example.com", "password123")
	ch, err := env.engine.Login(t.Context(), "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.VerifyCode(t.Context(), ch.SessionID, ch.Code)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrInvalidOrExpiredCode) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
}

func TestAuthenticate(t *testing.T) {
	env := setupEngine(t)
	g := env.login(t)

	p, err := env.engine.Authenticate(t.Context(), g.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.ID != g.Parent.ID {
		t.Errorf("parent id = %d, want %d", p.ID, g.Parent.ID)
	}

	if _, err := env.engine.Authenticate(t.Context(), g.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh as access err = %v, want ErrInvalidToken", err)
	}
	if _, err := env.engine.Authenticate(t.Context(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage err = %v, want ErrInvalidToken", err)
	}

	env.clock.Advance(30 * time.Minute)
	if _, err := env.engine.Authenticate(t.Context(), g.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired access err = %v, want ErrInvalidToken", err)
	}
}

func TestRefresh(t *testing.T) {
	env := setupEngine(t)
	g := env.login(t)

	env.clock.Advance(time.Hour)
	ag, err := env.engine.Refresh(t.Context(), g.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if ag.TokenType != "bearer" || ag.ExpiresIn != 1800 {
		t.Errorf("grant = %+v", ag)
	}
	p, err := env.engine.Authenticate(t.Context(), ag.AccessToken)
	if err != nil {
		t.Fatalf("authenticate refreshed token: %v", err)
	}
	if p.ID != g.Parent.ID {
		t.Errorf("parent id = %d, want %d", p.ID, g.Parent.ID)
	}

	if _, err := env.engine.Refresh(t.Context(), ag.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access as refresh err = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshExpires(t *testing.T) {
	env := setupEngine(t)
	g := env.login(t)

	env.clock.Advance(7 * 24 * time.Hour)
	if _, err := env.engine.Refresh(t.Context(), g.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshForeignSignature(t *testing.T) {
	env := setupEngine(t)
	g := env.login(t)

	other := NewCodec("another-secret", 30*time.Minute, 7*24*time.Hour, env.clock)
	forged, _, err := other.Sign(g.Parent.ID, KindRefresh, "forged")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := env.engine.Refresh(t.Context(), forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestLogout(t *testing.T) {
	env := setupEngine(t)
	g := env.login(t)

	if err := env.engine.Logout(t.Context(), g.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.engine.Refresh(t.Context(), g.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh after logout err = %v, want ErrInvalidToken", err)
	}
	if err := env.engine.Logout(t.Context(), g.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("second logout err = %v, want ErrInvalidToken", err)
	}
}

func TestLoginWithLine(t *testing.T) {
	env := setupEngine(t)

	first, err := env.engine.LoginWithLine(t.Context(), "U100", "Bob@Example.com")
	if err != nil {
		t.Fatalf("first line login: %v", err)
	}
	if first.Parent.Email != "bob@example.com" {
		t.Errorf("email = %q, want bob@example.com", first.Parent.Email)
	}
	if !first.Parent.EmailVerified {
		t.Error("line credential should be verified")
	}

	second, err := env.engine.LoginWithLine(t.Context(), "U100", "")
	if err != nil {
		t.Fatalf("second line login: %v", err)
	}
	if second.Parent.ID != first.Parent.ID {
		t.Errorf("parent id = %d, want %d", second.Parent.ID, first.Parent.ID)
	}
	if _, err := env.engine.Authenticate(t.Context(), second.AccessToken); err != nil {
		t.Errorf("authenticate line token: %v", err)
	}
}

func TestLoginWithLinePlaceholderEmail(t *testing.T) {
	env := setupEngine(t)
	env.register(t, "taken@example.com", "password123")

	g, err := env.engine.LoginWithLine(t.Context(), "U200", "taken@example.com")
	if err != nil {
		t.Fatalf("line login: %v", err)
	}
	if g.Parent.Email != "U200@line.user" {
		t.Errorf("email = %q, want U200@line.user", g.Parent.Email)
	}

	g, err = env.engine.LoginWithLine(t.Context(), "U300", "")
	if err != nil {
		t.Fatalf("line login without email: %v", err)
	}
	if g.Parent.Email != "U300@line.user" {
		t.Errorf("email = %q, want U300@line.user", g.Parent.Email)
	}
}

func TestLineOnlyCredentialCannotUsePassword(t *testing.T) {
	env := setupEngine(t)
	if _, err := env.engine.LoginWithLine(t.Context(), "U400", "carol@example.com"); err != nil {
		t.Fatalf("line login: %v", err)
	}

	_, err := env.engine.Login(t.Context(), "carol@example.com", "anything-at-all")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential", err)
	}
}

func TestPurge(t *testing.T) {
	env := setupEngine(t)
	g := env.login(t)
	if _, err := env.engine.Login(t.Context(), "alice@example.com", "password123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.engine.Logout(t.Context(), g.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	env.clock.Advance(10 * time.Minute)
	codes, tokens, err := env.engine.Purge(t.Context())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if codes != 2 {
		t.Errorf("codes purged = %d, want 2", codes)
	}
	if tokens != 1 {
		t.Errorf("tokens purged = %d, want 1", tokens)
	}
}
