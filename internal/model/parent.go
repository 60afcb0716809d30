package model

import "time"

// Parent is the credential record of a parent account. A parent signs in
// with a password, a LINE identity, or both.
type Parent struct {
	ID            int64     `json:"parent_id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	LineID        *string   `json:"line_id,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p *Parent) HasPassword() bool {
	return p.PasswordHash != ""
}
