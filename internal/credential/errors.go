package credential

import "errors"

var (
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrInvalidPassword      = errors.New("password must be 8 to 72 bytes")
	ErrAlreadyRegistered    = errors.New("email already registered")
	ErrInvalidCredential    = errors.New("incorrect email or password")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code")
	ErrInvalidToken         = errors.New("could not validate credentials")
)
