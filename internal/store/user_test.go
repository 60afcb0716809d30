package store

import (
	"errors"
	"testing"
)

func TestParentCreate(t *testing.T) {
	ps := NewParentStore(setupTestDB(t))

	p, err := ps.Create(t.Context(), "alice@example.com", "bcrypt-hash")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if p.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if p.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", p.Email, "alice@example.com")
	}
	if p.PasswordHash != "bcrypt-hash" {
		t.Errorf("password hash = %q, want %q", p.PasswordHash, "bcrypt-hash")
	}
	if p.EmailVerified {
		t.Error("new parent should not be verified")
	}
	if p.LineID != nil {
		t.Errorf("line_id = %v, want nil", *p.LineID)
	}
}

func TestParentCreateDuplicateEmail(t *testing.T) {
	ps := NewParentStore(setupTestDB(t))

	if _, err := ps.Create(t.Context(), "alice@example.com", "h"); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	_, err := ps.Create(t.Context(), "alice@example.com", "h2")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestParentCreateWithLine(t *testing.T) {
	ps := NewParentStore(setupTestDB(t))

	p, err := ps.CreateWithLine(t.Context(), "bob@example.com", "U123")
	if err != nil {
		t.Fatalf("create line parent: %v", err)
	}
	if !p.EmailVerified {
		t.Error("line parent should be verified")
	}
	if p.HasPassword() {
		t.Error("line parent should have no password")
	}
	if p.LineID == nil || *p.LineID != "U123" {
		t.Errorf("line_id = %v, want U123", p.LineID)
	}

	_, err = ps.CreateWithLine(t.Context(), "other@example.com", "U123")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate line id err = %v, want ErrDuplicate", err)
	}

	got, err := ps.GetByLineID(t.Context(), "U123")
	if err != nil {
		t.Fatalf("get by line id: %v", err)
	}
	if got == nil || got.ID != p.ID {
		t.Errorf("got %v, want parent %d", got, p.ID)
	}
}

func TestParentGetNotFound(t *testing.T) {
	ps := NewParentStore(setupTestDB(t))

	p, err := ps.GetByEmail(t.Context(), "nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
	p, err = ps.GetByID(t.Context(), 999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}
