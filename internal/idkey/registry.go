package idkey

import (
	"crypto/ed25519"
	"sync"

	"github.com/cockroachdb/errors"
)

// VerifyingKey is a principal's current public signing key plus the epoch
// at which it was installed. Rotation replaces the entry and bumps the
// epoch; it never mutates a previously issued VerifyingKey value, so
// callers holding an older copy can still verify facts signed before the
// rotation.
type VerifyingKey struct {
	Public ed25519.PublicKey
	Epoch  uint64
}

// Verify checks sig over msg under this key.
func (k VerifyingKey) Verify(msg, sig []byte) bool {
	if len(k.Public) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(k.Public, msg, sig)
}

var errKeyNotFound = errors.New("idkey: no key registered for principal")

// Registry maps principal identifiers to their current VerifyingKey.
// Keys are never duplicated: a registry holds at most one key per
// principal at any time. Rotation is explicit via the Put*Key methods
// with a strictly greater epoch; the *Key lookups always return the
// latest.
//
// Three independent maps mirror three registries
// (AuthorityId→VerifyingKey, GuardianId→VerifyingKey,
// AccountId→GroupVerifyingKey) rather than one map keyed by a boxed
// interface, so each principal kind keeps its static Go type.
type Registry struct {
	mu         sync.RWMutex
	authority  map[AuthorityID]VerifyingKey
	guardian   map[GuardianID]VerifyingKey
	account    map[AccountID]VerifyingKey
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		authority: make(map[AuthorityID]VerifyingKey),
		guardian:  make(map[GuardianID]VerifyingKey),
		account:   make(map[AccountID]VerifyingKey),
	}
}

// PutAuthorityKey installs or rotates the key for an authority. The epoch
// must be strictly greater than any previously installed epoch for that
// authority, enforcing monotonic rotation.
func (r *Registry) PutAuthorityKey(id AuthorityID, pub ed25519.PublicKey, epoch uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.authority[id]; ok && epoch <= cur.Epoch {
		return errors.Newf("idkey: rotation epoch %d not greater than current %d", epoch, cur.Epoch)
	}
	r.authority[id] = VerifyingKey{Public: pub, Epoch: epoch}
	return nil
}

func (r *Registry) AuthorityKey(id AuthorityID) (VerifyingKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.authority[id]
	if !ok {
		return VerifyingKey{}, errKeyNotFound
	}
	return k, nil
}

func (r *Registry) PutGuardianKey(id GuardianID, pub ed25519.PublicKey, epoch uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.guardian[id]; ok && epoch <= cur.Epoch {
		return errors.Newf("idkey: rotation epoch %d not greater than current %d", epoch, cur.Epoch)
	}
	r.guardian[id] = VerifyingKey{Public: pub, Epoch: epoch}
	return nil
}

func (r *Registry) GuardianKey(id GuardianID) (VerifyingKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.guardian[id]
	if !ok {
		return VerifyingKey{}, errKeyNotFound
	}
	return k, nil
}

func (r *Registry) PutGroupKey(id AccountID, pub ed25519.PublicKey, epoch uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.account[id]; ok && epoch <= cur.Epoch {
		return errors.Newf("idkey: rotation epoch %d not greater than current %d", epoch, cur.Epoch)
	}
	r.account[id] = VerifyingKey{Public: pub, Epoch: epoch}
	return nil
}

func (r *Registry) GroupKey(id AccountID) (VerifyingKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.account[id]
	if !ok {
		return VerifyingKey{}, errKeyNotFound
	}
	return k, nil
}

// ErrKeyNotFound is exposed for callers that want errors.Is matching
// without importing the sentinel's unexported form.
var ErrKeyNotFound = errKeyNotFound
