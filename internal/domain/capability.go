package domain

import "github.com/google/uuid"

// Capability is an unforgeable in-process access token. A guard constructs
// one at wiring time and hands it to the parties allowed to invoke a guarded
// operation; callers present it at the call site and the guard compares it
// against the value it was constructed with. The zero Capability matches
// nothing, so a caller that was never issued the token cannot pass the check.
type Capability struct {
	id uuid.UUID
}

// NewCapability mints a fresh capability token.
func NewCapability() Capability {
	return Capability{id: uuid.New()}
}

// IsZero reports whether c is the zero (never-issued) capability.
func (c Capability) IsZero() bool {
	return c.id == uuid.Nil
}

// Matches reports whether other is the same issued token as c.
func (c Capability) Matches(other Capability) bool {
	return !c.IsZero() && c.id == other.id
}
