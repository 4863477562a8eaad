// Package hpke implements C6's HPKE contract using
// github.com/cloudflare/circl/hpke, a complete KEM+AEAD HPKE
// implementation. Unlike the threshold-signing contract, which is
// deliberately left as a stub, HPKE is exactly the kind of primitive the
// ecosystem already ships correctly, and circl is a real dependency
// already pulled in for it.
package hpke

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/cloudflare/circl/hpke"
	"github.com/cockroachdb/errors"

	"github.com/aura-id/aura/internal/errs"
)

// Suite fixes the KEM/KDF/AEAD combination used throughout Aura: X25519
// for the KEM, HKDF-SHA256 for the KDF, and AES-128-GCM for the AEAD.
var Suite = hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_AES128GCM)

// GenerateKeyPair creates a fresh X25519 HPKE key pair.
func GenerateKeyPair() (pub, priv interface{}, err error) {
	scheme := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, errors.Wrap(err, "hpke: generate key pair")
	}
	return pk, sk, nil
}

// Ciphertext is the serialized form of an HPKE sealed message:
// encapped_len(u32) || encapped_key || aead_ciphertext.
type Ciphertext struct {
	Encapped []byte
	Sealed   []byte
}

// Marshal serializes c to that wire format.
func (c Ciphertext) Marshal() []byte {
	out := make([]byte, 0, 4+len(c.Encapped)+len(c.Sealed))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(c.Encapped)))
	out = append(out, lenBuf[:]...)
	out = append(out, c.Encapped...)
	out = append(out, c.Sealed...)
	return out
}

// Unmarshal parses that wire format back into a Ciphertext.
func Unmarshal(b []byte) (Ciphertext, error) {
	if len(b) < 4 {
		return Ciphertext{}, errs.ErrDecryptionFailed
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return Ciphertext{}, errs.ErrDecryptionFailed
	}
	return Ciphertext{Encapped: b[:n], Sealed: b[n:]}, nil
}

// EncryptBase seals pt for recipientPK with no AAD — used for sub-share
// transport.
func EncryptBase(recipientPK interface{}, pt []byte) (Ciphertext, error) {
	return seal(recipientPK, pt, nil, rand.Reader)
}

// EncryptWithAAD seals pt for recipientPK bound to aad — used for
// guardian-share transport, where aad = request_id || guardian_id, preventing cross-session replay.
func EncryptWithAAD(recipientPK interface{}, pt, aad []byte) (Ciphertext, error) {
	return seal(recipientPK, pt, aad, rand.Reader)
}

func seal(recipientPK interface{}, pt, aad []byte, rnd io.Reader) (Ciphertext, error) {
	if recipientPK == nil {
		return Ciphertext{}, errs.ErrInvalidSignature
	}
	sender, err := Suite.NewSender(recipientPK.(hpke.KEMPublicKey), nil)
	if err != nil {
		return Ciphertext{}, errors.Wrap(err, "hpke: new sender")
	}
	enc, sealer, err := sender.Setup(rnd)
	if err != nil {
		return Ciphertext{}, errors.Wrap(err, "hpke: sender setup")
	}
	ct, err := sealer.Seal(pt, aad)
	if err != nil {
		return Ciphertext{}, errors.Wrap(err, "hpke: seal")
	}
	return Ciphertext{Encapped: enc, Sealed: ct}, nil
}

// DecryptBase opens a Ciphertext produced by EncryptBase.
func DecryptBase(recipientSK interface{}, ct Ciphertext) ([]byte, error) {
	return open(recipientSK, ct, nil)
}

// DecryptWithAAD opens a Ciphertext produced by EncryptWithAAD. It
// returns errs.ErrDecryptionFailed (which subsumes AAD mismatch, wrong
// recipient, and truncation) if aad does not match the
// value used at encryption time.
func DecryptWithAAD(recipientSK interface{}, ct Ciphertext, aad []byte) ([]byte, error) {
	return open(recipientSK, ct, aad)
}

func open(recipientSK interface{}, ct Ciphertext, aad []byte) ([]byte, error) {
	receiver, err := Suite.NewReceiver(recipientSK.(hpke.KEMPrivateKey), nil)
	if err != nil {
		return nil, errors.Mark(err, errs.ErrDecryptionFailed)
	}
	opener, err := receiver.Setup(ct.Encapped)
	if err != nil {
		return nil, errors.Mark(err, errs.ErrDecryptionFailed)
	}
	pt, err := opener.Open(ct.Sealed, aad)
	if err != nil {
		return nil, errors.Mark(err, errs.ErrDecryptionFailed)
	}
	return pt, nil
}
