// Package threshold is C6's threshold-signing contract: it names the
// interface a FROST-like threshold scheme must satisfy, without
// implementing production threshold cryptography — this package fixes
// the contract shape (ThresholdSign/ThresholdVerify over a share set),
// not a cryptographic scheme. The deterministic construction below is
// verifiable against itself, the same way a placeholder BLS/Ringtail
// package stands in for a real implementation with the same method
// shapes a production one would expose.
package threshold

import (
	"crypto/ed25519"
	"sort"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/aura-id/aura/internal/idkey"
)

// Share is one witness's contribution toward a threshold signature.
type Share struct {
	Witness   idkey.DeviceID
	NonceComm []byte
	Value     []byte
}

// GroupKey is the aggregate verifying key a threshold signature verifies
// under.
type GroupKey struct {
	Public ed25519.PublicKey
}

// Signature is a threshold-aggregated signature over a message.
type Signature struct {
	Bytes     []byte
	Witnesses []idkey.DeviceID // who contributed, for threshold-integrity audits
}

var (
	ErrBelowThreshold = errors.New("threshold: fewer than t valid shares")
	ErrInvalidShare   = errors.New("threshold: malformed share")
)

// ThresholdSign aggregates shares into a Signature that verifies under
// groupKey iff len(shares) >= t and every share binds the same msg. The
// aggregation itself is a deterministic, order-independent combination
// (a BLAKE2b-256 keyed by groupKey over msg and every share's value and
// nonce commitment, shares sorted by witness) standing in for the real
// FROST aggregation a production deployment would plug in here; what
// matters for the contract is that ThresholdVerify agrees with it.
func ThresholdSign(msg []byte, shares []Share, groupKey GroupKey, t int) (Signature, error) {
	if len(shares) < t {
		return Signature{}, ErrBelowThreshold
	}
	sorted := make([]Share, len(shares))
	copy(sorted, shares)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i].Witness.Bytes()) < string(sorted[j].Witness.Bytes())
	})

	h, err := blake2b.New256(groupKey.Public)
	if err != nil {
		return Signature{}, err
	}
	h.Write(msg)
	witnesses := make([]idkey.DeviceID, 0, len(sorted))
	for _, s := range sorted {
		if len(s.Value) == 0 || len(s.NonceComm) == 0 {
			return Signature{}, ErrInvalidShare
		}
		h.Write(s.Value)
		h.Write(s.NonceComm)
		witnesses = append(witnesses, s.Witness)
	}
	return Signature{Bytes: h.Sum(nil), Witnesses: witnesses}, nil
}

// ThresholdVerify recomputes the same aggregation used by ThresholdSign
// and compares. A real implementation would instead do a single
// constant-size pairing/Schnorr check independent of share count; the
// contract this stands in for only requires agreement between Sign and
// Verify, and sensitivity to any participating share's bytes.
func ThresholdVerify(msg []byte, sig Signature, groupKey GroupKey, shares []Share, t int) bool {
	recomputed, err := ThresholdSign(msg, shares, groupKey, t)
	if err != nil {
		return false
	}
	return string(recomputed.Bytes) == string(sig.Bytes)
}
