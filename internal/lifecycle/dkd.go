package lifecycle

import (
	"time"

	"github.com/aura-id/aura/internal/authority"
	"github.com/aura-id/aura/internal/consensus"
	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/guard"
	"github.com/aura-id/aura/internal/idkey"
)

// DKDLifecycle choreographs a distributed-key-derivation round: each
// local share proposal is guarded (capability to sign, flow cost of the
// broadcast) before being handed to the underlying consensus.Instance.
// The guard plan carries no delta facts.
type DKDLifecycle struct {
	instance *consensus.Instance
	chain    *guard.Chain
	self     idkey.DeviceID
	contextID idkey.ContextID
	scope    authority.Scope
	flowCost uint64

	cancelled bool
	err       error
}

// NewDKDLifecycle wraps a consensus instance with the guard chain used
// for every local share proposal it broadcasts.
func NewDKDLifecycle(instance *consensus.Instance, chain *guard.Chain, self idkey.DeviceID, contextID idkey.ContextID, scope authority.Scope, flowCost uint64) *DKDLifecycle {
	return &DKDLifecycle{instance: instance, chain: chain, self: self, contextID: contextID, scope: scope, flowCost: flowCost}
}

// Step accepts a LocalSignal carrying this replica's share proposal
// (already marshaled by the caller into in.Data, interpreted by the
// caller's own proposal builder) or a PeerMessage relaying another
// witness's proposal. The guard chain only runs for the local send; a
// relayed peer proposal is admitted directly into the instance.
func (d *DKDLifecycle) Step(in ProtocolInput, prop consensus.Proposal, snap guard.Snapshot) ([]guard.EffectCommand, error) {
	if d.cancelled || d.instance.Phase().Terminal() {
		return nil, errs.ErrConsensusTimeout
	}

	var cmds []guard.EffectCommand
	if in.Kind == LocalSignal {
		plan := guard.Plan{
			Caller:         d.self,
			ContextID:      d.contextID,
			Peer:           d.self,
			FlowCost:       d.flowCost,
			RequiredScopes: []authority.Scope{d.scope},
		}
		var err error
		cmds, err = runGuard(d.chain, plan, snap)
		if err != nil {
			return nil, err
		}
	}

	if err := d.instance.Propose(prop); err != nil {
		if err == errs.ErrEquivocation {
			return cmds, nil // equivocation is recorded, not a lifecycle failure
		}
		return cmds, err
	}
	return cmds, nil
}

func (d *DKDLifecycle) Finished() bool { return d.instance.Phase().Terminal() }

func (d *DKDLifecycle) Output() []byte {
	cf := d.instance.CommitFactOrNil()
	if cf == nil {
		return nil
	}
	return cf.ResultID[:]
}

func (d *DKDLifecycle) Err() error { return d.err }

func (d *DKDLifecycle) Cancel() error {
	d.cancelled = true
	return nil
}

// CheckTimeout forwards to the instance's fallback timer.
func (d *DKDLifecycle) CheckTimeout(now time.Time) bool {
	return d.instance.CheckFallbackTimeout(now)
}
