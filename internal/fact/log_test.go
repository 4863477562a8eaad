package fact

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aura-id/aura/internal/idkey"
)

type noopValidator struct{}

func (noopValidator) Validate(payload []byte) error { return nil }
func (noopValidator) PrimaryKey(payload []byte) ([]byte, error) {
	return payload, nil // whole payload is the primary key, for collision tests
}
func (noopValidator) ConflictWins(incumbent, candidate *Fact) bool {
	return DefaultConflictWins(incumbent, candidate)
}

var testType = TypeID{0x01}

func newTestLog(t *testing.T) (*Log, idkey.AuthorityID, ed25519.PrivateKey) {
	t.Helper()
	reg := idkey.NewRegistry()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	aid := idkey.NewAuthorityID([]byte("issuer"))
	require.NoError(t, reg.PutAuthorityKey(aid, pub, 1))

	validators := NewValidatorRegistry()
	validators.Register(testType, noopValidator{})

	return NewLog(nil, validators, reg, time.Hour), aid, priv
}

func sign(f *Fact, priv ed25519.PrivateKey) *Fact {
	f.Sign(priv)
	return f
}

func allowAll(idkey.AuthorityID, TypeID) bool { return true }

func TestLog_AppendVerifiesSignature(t *testing.T) {
	l, aid, priv := newTestLog(t)
	f := sign(&Fact{TypeID: testType, Payload: []byte("p1"), Issuer: aid, IssuedAt: 1}, priv)
	h, err := l.Append(f, allowAll)
	require.NoError(t, err)

	got, ok := l.Get(h)
	require.True(t, ok)
	require.Equal(t, f.Payload, got.Payload)
}

func TestLog_AppendRejectsBadSignature(t *testing.T) {
	l, aid, priv := newTestLog(t)
	f := sign(&Fact{TypeID: testType, Payload: []byte("p1"), Issuer: aid, IssuedAt: 1}, priv)
	f.Payload = []byte("tampered")
	_, err := l.Append(f, allowAll)
	require.Error(t, err)
}

func TestLog_AppendIdempotent(t *testing.T) {
	l, aid, priv := newTestLog(t)
	f := sign(&Fact{TypeID: testType, Payload: []byte("p1"), Issuer: aid, IssuedAt: 1}, priv)
	h1, err := l.Append(f, allowAll)
	require.NoError(t, err)
	h2, err := l.Append(f, allowAll)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, l.List(), 1)
}

func TestLog_MergeIsCommutativeAndIdempotent(t *testing.T) {
	l1, aid, priv := newTestLog(t)
	l2 := NewLog(nil, l1.validators, l1.registry, time.Hour)

	f1 := sign(&Fact{TypeID: testType, Payload: []byte("alpha"), Issuer: aid, IssuedAt: 10}, priv)
	f2 := sign(&Fact{TypeID: testType, Payload: []byte("beta"), Issuer: aid, IssuedAt: 20}, priv)
	_, err := l1.Append(f1, allowAll)
	require.NoError(t, err)
	_, err = l2.Append(f2, allowAll)
	require.NoError(t, err)

	l1.Merge(l2)
	l2.Merge(l1)

	require.Len(t, l1.List(), 2)
	require.Len(t, l2.List(), 2)

	// idempotent: merging again changes nothing
	report := l1.Merge(l2)
	require.Equal(t, 0, report.Added)
	require.Len(t, l1.List(), 2)
}

func TestLog_MergeConflictEarliestWins(t *testing.T) {
	l1, aid, priv := newTestLog(t)
	l2 := NewLog(nil, l1.validators, l1.registry, time.Hour)

	// Same primary key (payload), different issued_at -> earliest wins.
	early := sign(&Fact{TypeID: testType, Payload: []byte("dup"), Issuer: aid, IssuedAt: 5}, priv)
	late := sign(&Fact{TypeID: testType, Payload: []byte("dup"), Issuer: aid, IssuedAt: 50}, priv)

	_, err := l1.Append(late, allowAll)
	require.NoError(t, err)
	_, err = l2.Append(early, allowAll)
	require.NoError(t, err)

	report := l1.Merge(l2)
	require.Equal(t, 1, report.Conflicts)
	require.Len(t, l1.List(), 1)
	require.Equal(t, early.IssuedAt, l1.List()[0].IssuedAt)
}

func TestLog_PendingResolvesOnceDependencyArrives(t *testing.T) {
	l, aid, priv := newTestLog(t)
	dep := sign(&Fact{TypeID: testType, Payload: []byte("dep"), Issuer: aid, IssuedAt: 1}, priv)
	depHash := dep.ContentHash()

	child := sign(&Fact{TypeID: testType, Payload: []byte("child"), Issuer: aid, IssuedAt: 2}, priv)
	l.AddPending(child, depHash, time.Now())

	resolved, expired := l.ResolvePending(time.Now(), allowAll)
	require.Equal(t, 0, resolved)
	require.Equal(t, 0, expired)

	_, err := l.Append(dep, allowAll)
	require.NoError(t, err)

	resolved, expired = l.ResolvePending(time.Now(), allowAll)
	require.Equal(t, 1, resolved)
	require.Equal(t, 0, expired)
}

func TestLog_PendingExpiresPastStalenessHorizon(t *testing.T) {
	reg := idkey.NewRegistry()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	aid := idkey.NewAuthorityID([]byte("issuer"))
	require.NoError(t, reg.PutAuthorityKey(aid, pub, 1))
	validators := NewValidatorRegistry()
	validators.Register(testType, noopValidator{})
	l := NewLog(nil, validators, reg, time.Millisecond)

	child := sign(&Fact{TypeID: testType, Payload: []byte("child"), Issuer: aid, IssuedAt: 2}, priv)
	l.AddPending(child, Hash{0xFF}, time.Now().Add(-time.Hour))

	_, expired := l.ResolvePending(time.Now(), allowAll)
	require.Equal(t, 1, expired)
}
