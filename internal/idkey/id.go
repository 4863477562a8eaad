// Package idkey implements C1: stable, 256-bit opaque identifiers for
// every principal kind in the system, and the VerifyingKey registry that
// binds principals to their current signing key.
package idkey

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ID is the 32-byte opaque identifier shape shared by every principal
// kind. Equality is bytewise; kinds are distinguished by Go type, not by
// any tag carried in the bytes themselves.
type ID [32]byte

// Derive produces a domain-separated ID by hashing label || seed with
// BLAKE3, the same hash used for fact identity elsewhere in this
// module.
func Derive(label string, seed []byte) ID {
	h := blake3.New()
	h.Write([]byte(label))
	h.Write([]byte{0})
	h.Write(seed)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// Bytes returns a copy of the identifier's bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, 32)
	copy(b, id[:])
	return b
}

// IsZero reports whether id is the zero value (never a legitimate,
// derived identifier).
func (id ID) IsZero() bool { return id == ID{} }

// The identifier kinds are type-distinct wrappers around the same shape:
// AuthorityID, DeviceID, ContextID, GuardianID, CapabilityID, SessionID,
// HomeID, and NeighborhoodID all share the same 32-byte layout but are
// distinguished at compile time so they can never be mixed up.
type (
	AuthorityID     struct{ ID }
	DeviceID        struct{ ID }
	ContextID       struct{ ID }
	GuardianID      struct{ ID }
	CapabilityID    struct{ ID }
	SessionID       struct{ ID }
	HomeID          struct{ ID }
	NeighborhoodID  struct{ ID }
	AccountID       struct{ ID }
)

func NewAuthorityID(seed []byte) AuthorityID    { return AuthorityID{Derive("authority", seed)} }
func NewDeviceID(seed []byte) DeviceID          { return DeviceID{Derive("device", seed)} }
func NewContextID(seed []byte) ContextID        { return ContextID{Derive("context", seed)} }
func NewGuardianID(seed []byte) GuardianID      { return GuardianID{Derive("guardian", seed)} }
func NewCapabilityID(seed []byte) CapabilityID  { return CapabilityID{Derive("capability", seed)} }
func NewSessionID(seed []byte) SessionID        { return SessionID{Derive("session", seed)} }
func NewHomeID(seed []byte) HomeID              { return HomeID{Derive("home", seed)} }
func NewNeighborhoodID(seed []byte) NeighborhoodID {
	return NeighborhoodID{Derive("neighborhood", seed)}
}
func NewAccountID(seed []byte) AccountID { return AccountID{Derive("account", seed)} }
