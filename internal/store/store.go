package store

import (
	"errors"

	"github.com/dukerupert/merelax/internal/database"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate entry")

type scanner interface{ Scan(...any) error }

func mapInsertErr(err error) error {
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
