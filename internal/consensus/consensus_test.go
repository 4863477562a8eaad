package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aura-id/aura/internal/idkey"
)

func witnessSet(n int) []idkey.DeviceID {
	out := make([]idkey.DeviceID, n)
	for i := range out {
		out[i] = idkey.NewDeviceID([]byte{byte('w'), byte(i)})
	}
	return out
}

func propose(t *testing.T, in *Instance, w idkey.DeviceID, rid ResultID) error {
	t.Helper()
	return in.Propose(Proposal{
		Witness:      w,
		ResultID:     rid,
		ShareValue:   []byte{1, 2, 3},
		NonceBinding: []byte{4, 5, 6},
		DataBinding:  DataBinding(in.CID, rid, in.PrestateHash),
	})
}

// Scenario 1: DKD 3-of-3 happy path.
func TestInstance_ThreeOfThreeHappyPath(t *testing.T) {
	w := witnessSet(3)
	cid := idkey.NewSessionID([]byte("cid1"))
	in := NewInstance(cid, []byte("op"), [32]byte{0xAA}, 3, w, w[0], nil, nil)
	in.Start(time.Now(), nil, time.Minute, time.Minute)
	require.Equal(t, FallbackActive, in.Phase())

	var rid1 ResultID
	copy(rid1[:], []byte("rid1"))

	for _, witness := range w {
		require.NoError(t, propose(t, in, witness, rid1))
	}
	require.Equal(t, Committed, in.Phase())
	cf := in.CommitFactOrNil()
	require.NotNil(t, cf)
	require.Equal(t, rid1, cf.ResultID)
}

// Scenario 2: Consensus agreement violation must not occur.
func TestCheckAgreement_DetectsViolation(t *testing.T) {
	cid := idkey.NewSessionID([]byte("cid1"))
	var rid1, rid2 ResultID
	copy(rid1[:], []byte("rid1"))
	copy(rid2[:], []byte("rid2"))

	facts := []CommitFact{
		{CID: cid, ResultID: rid1},
		{CID: cid, ResultID: rid2},
	}
	require.False(t, CheckAgreement(facts))

	facts[1].ResultID = rid1
	require.True(t, CheckAgreement(facts))
}

// Scenario 3: Equivocator isolation.
func TestInstance_EquivocatorIsolated(t *testing.T) {
	w := witnessSet(3)
	cid := idkey.NewSessionID([]byte("cid1"))
	in := NewInstance(cid, []byte("op"), [32]byte{0xAA}, 3, w, w[0], nil, nil)
	in.Start(time.Now(), nil, time.Minute, time.Minute)

	var rid1, rid2 ResultID
	copy(rid1[:], []byte("rid1"))
	copy(rid2[:], []byte("rid2"))

	require.NoError(t, propose(t, in, w[0], rid1))
	err := propose(t, in, w[0], rid2)
	require.Error(t, err)

	equivocators := in.Equivocators()
	require.Len(t, equivocators, 1)
	require.Equal(t, w[0], equivocators[0])

	// threshold 3 with only 2 non-equivocating witnesses left cannot commit on rid1
	require.NoError(t, propose(t, in, w[1], rid1))
	require.NoError(t, propose(t, in, w[2], rid1))
	require.NotEqual(t, Committed, in.Phase())
}

func TestInstance_RejectsWitnessNotInW(t *testing.T) {
	w := witnessSet(2)
	cid := idkey.NewSessionID([]byte("cid2"))
	in := NewInstance(cid, []byte("op"), [32]byte{}, 2, w, w[0], nil, nil)
	in.Start(time.Now(), nil, time.Minute, time.Minute)

	stranger := idkey.NewDeviceID([]byte("stranger"))
	var rid ResultID
	err := propose(t, in, stranger, rid)
	require.Error(t, err)
}

func TestInstance_FallbackTimeoutTransitionsToFailed(t *testing.T) {
	w := witnessSet(3)
	cid := idkey.NewSessionID([]byte("cid3"))
	in := NewInstance(cid, []byte("op"), [32]byte{}, 3, w, w[0], nil, nil)
	start := time.Now()
	in.Start(start, nil, time.Minute, time.Millisecond)

	fired := in.CheckFallbackTimeout(start.Add(time.Hour))
	require.True(t, fired)
	require.Equal(t, Failed, in.Phase())
}

func TestInstance_FastPathSelectedWhenNoncesCached(t *testing.T) {
	w := witnessSet(2)
	cid := idkey.NewSessionID([]byte("cid4"))
	in := NewInstance(cid, []byte("op"), [32]byte{}, 2, w, w[0], nil, nil)
	now := time.Now()
	cache := map[idkey.DeviceID]NonceCache{
		w[0]: {CachedAt: now},
		w[1]: {CachedAt: now},
	}
	in.Start(now, cache, time.Minute, time.Minute)
	require.Equal(t, FastPathActive, in.Phase())
}
