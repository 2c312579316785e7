package models

import (
	"time"

	"github.com/google/uuid"
)

// TimestampResolution is the precision every stored timestamp is truncated
// to. MongoDB dates carry milliseconds, so keys built from timestamps compare
// the same on every backend.
const TimestampResolution = time.Millisecond

// Timestamp normalizes t for storage: UTC, truncated to TimestampResolution.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampResolution)
}

// Account is a user's login identity, optionally pointing at one active Character.
type Account struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Active       *uuid.UUID `json:"active"`
	// ActiveAt is the timestamp of the write that last set Active.
	ActiveAt  time.Time `json:"-"`
	CreatedAt time.Time `json:"creation"`
}

// HasActive reports whether the account currently points at id.
func (a *Account) HasActive(id uuid.UUID) bool {
	return a.Active != nil && *a.Active == id
}

// CharacterUpserted is published after a character insert or update commits.
// At is the timestamp of the triggering write and orders competing events for
// the same account.
type CharacterUpserted struct {
	CharacterID uuid.UUID
	Owner       string
	At          time.Time
}
