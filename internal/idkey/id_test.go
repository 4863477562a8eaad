package idkey

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	a := Derive("device", []byte("seed-1"))
	b := Derive("device", []byte("seed-1"))
	require.Equal(t, a, b)
}

func TestDerive_DomainSeparated(t *testing.T) {
	a := Derive("device", []byte("seed-1"))
	b := Derive("guardian", []byte("seed-1"))
	require.NotEqual(t, a, b)
}

func TestID_StringLengthAndIsZero(t *testing.T) {
	id := Derive("authority", []byte("x"))
	require.Len(t, id.String(), 64)
	require.False(t, id.IsZero())
	require.True(t, ID{}.IsZero())
}

func TestRegistry_RotationMonotonic(t *testing.T) {
	reg := NewRegistry()
	aid := NewAuthorityID([]byte("a1"))
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	require.NoError(t, reg.PutAuthorityKey(aid, pub, 1))
	_, err = reg.AuthorityKey(aid)
	require.NoError(t, err)

	require.Error(t, reg.PutAuthorityKey(aid, pub, 1))
	require.Error(t, reg.PutAuthorityKey(aid, pub, 0))
	require.NoError(t, reg.PutAuthorityKey(aid, pub, 2))
}

func TestRegistry_LookupMissing(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.AuthorityKey(NewAuthorityID([]byte("nope")))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestVerifyingKey_Verify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	k := VerifyingKey{Public: pub, Epoch: 1}
	msg := []byte("hello")
	sig := ed25519.Sign(priv, msg)
	require.True(t, k.Verify(msg, sig))
	require.False(t, k.Verify([]byte("tampered"), sig))
}
