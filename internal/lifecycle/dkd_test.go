package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aura-id/aura/internal/authority"
	"github.com/aura-id/aura/internal/consensus"
	"github.com/aura-id/aura/internal/guard"
	"github.com/aura-id/aura/internal/idkey"
)

func grantedChain(t *testing.T, caller idkey.DeviceID, scope authority.Scope) *guard.Chain {
	t.Helper()
	g := authority.NewGraph()
	issuer := idkey.NewAuthorityID([]byte("issuer"))
	capID := idkey.NewCapabilityID([]byte("cap"))
	require.NoError(t, g.ApplyDelegation(authority.Delegation{
		CapabilityID: capID,
		Scope:        scope,
		Subject:      caller,
		Issuer:       issuer,
		IssuedAt:     time.Now(),
	}))
	return guard.NewChain(nil, nil, g, nil, func() [16]byte { return [16]byte{9} })
}

func TestDKDLifecycle_LocalProposalGuardedThenAdmitted(t *testing.T) {
	self := idkey.NewDeviceID([]byte("w0"))
	w := []idkey.DeviceID{self, idkey.NewDeviceID([]byte("w1")), idkey.NewDeviceID([]byte("w2"))}
	cid := idkey.NewSessionID([]byte("cid"))
	instance := consensus.NewInstance(cid, []byte("op"), [32]byte{0xAA}, 3, w, self, nil, nil)
	instance.Start(time.Now(), nil, time.Minute, time.Minute)

	scope := authority.Scope{Namespace: "dkd", Operation: "propose"}
	chain := grantedChain(t, self, scope)
	ctxID := idkey.NewContextID([]byte("ctx"))
	lc := NewDKDLifecycle(instance, chain, self, ctxID, scope, 1)

	var rid consensus.ResultID
	copy(rid[:], []byte("rid1"))
	prop := consensus.Proposal{
		Witness: self, ResultID: rid, ShareValue: []byte{1}, NonceBinding: []byte{2},
		DataBinding: consensus.DataBinding(cid, rid, [32]byte{0xAA}),
	}
	snap := guard.Snapshot{Now: time.Now(), Epoch: 1, Limit: 100}

	cmds, err := lc.Step(ProtocolInput{Kind: LocalSignal, Now: time.Now()}, prop, snap)
	require.NoError(t, err)
	require.NotEmpty(t, cmds)
	require.False(t, lc.Finished())
}

func TestDKDLifecycle_UngrantedCallerBlocked(t *testing.T) {
	self := idkey.NewDeviceID([]byte("w0"))
	w := []idkey.DeviceID{self}
	cid := idkey.NewSessionID([]byte("cid2"))
	instance := consensus.NewInstance(cid, []byte("op"), [32]byte{}, 1, w, self, nil, nil)
	instance.Start(time.Now(), nil, time.Minute, time.Minute)

	scope := authority.Scope{Namespace: "dkd", Operation: "propose"}
	chain := guard.NewChain(nil, nil, authority.NewGraph(), nil, func() [16]byte { return [16]byte{} })
	ctxID := idkey.NewContextID([]byte("ctx"))
	lc := NewDKDLifecycle(instance, chain, self, ctxID, scope, 1)

	var rid consensus.ResultID
	prop := consensus.Proposal{Witness: self, ResultID: rid}
	_, err := lc.Step(ProtocolInput{Kind: LocalSignal}, prop, guard.Snapshot{Now: time.Now(), Limit: 100})
	require.Error(t, err)
}
