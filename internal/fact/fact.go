// Package fact implements C2: the append-only, content-addressed log of
// signed facts and its deterministic cross-replica merge.
package fact

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/aura-id/aura/internal/idkey"
)

// TypeID names a fact schema in the wire format
// (fact_type_id is a 16-byte tag).
type TypeID [16]byte

// Hash is a fact's content-addressed identity: BLAKE3 over its full
// canonical encoding, signature included (see ContentHash).
type Hash [32]byte

func (h Hash) String() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range h {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// Fact is a tagged, immutable, signed record.
type Fact struct {
	TypeID    TypeID
	Payload   []byte
	Issuer    idkey.AuthorityID
	IssuedAt  int64 // ms since epoch
	Signature []byte
}

// canonicalUnsigned returns the canonical encoding of the record minus
// the signature field:
// fact_type_id(16) || payload_len(u32) || payload || issuer(32) ||
// issued_at_ms(u64). Little-endian integers, length-prefixed fields.
func (f *Fact) canonicalUnsigned() []byte {
	buf := make([]byte, 0, 16+4+len(f.Payload)+32+8)
	buf = append(buf, f.TypeID[:]...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f.Payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, f.Payload...)
	buf = append(buf, f.Issuer.Bytes()...)
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(f.IssuedAt))
	buf = append(buf, tsBuf[:]...)
	return buf
}

// CanonicalBytes returns the full canonical wire encoding, signature
// included: canonicalUnsigned() || sig_len(u16) || sig.
func (f *Fact) CanonicalBytes() []byte {
	unsigned := f.canonicalUnsigned()
	out := make([]byte, 0, len(unsigned)+2+len(f.Signature))
	out = append(out, unsigned...)
	var sigLen [2]byte
	binary.LittleEndian.PutUint16(sigLen[:], uint16(len(f.Signature)))
	out = append(out, sigLen[:]...)
	out = append(out, f.Signature...)
	return out
}

// ContentHash is the fact's identity: BLAKE3 of its full canonical
// encoding. Two facts are equal iff their canonical encodings are
// byte-identical, which this hash detects with overwhelming
// probability and at fixed cost.
func (f *Fact) ContentHash() Hash {
	sum := blake3.Sum256(f.CanonicalBytes())
	return Hash(sum)
}

// Sign populates f.Signature by signing the canonical-minus-signature
// encoding under priv.
func (f *Fact) Sign(priv ed25519.PrivateKey) {
	f.Signature = ed25519.Sign(priv, f.canonicalUnsigned())
}

// VerifySignature checks f.Signature against the unsigned canonical
// encoding using key.
func (f *Fact) VerifySignature(key idkey.VerifyingKey) bool {
	return key.Verify(f.canonicalUnsigned(), f.Signature)
}
