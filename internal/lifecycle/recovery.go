package lifecycle

import (
	"time"

	"github.com/aura-id/aura/internal/authority"
	"github.com/aura-id/aura/internal/guard"
	"github.com/aura-id/aura/internal/idkey"
	"github.com/aura-id/aura/internal/recovery"
)

// RecoveryLifecycle wraps a recovery.Coordinator ceremony, guarding the
// Initiate broadcast (capability to request recovery, flow cost) before
// handing off to the coordinator's own policy enforcement. The guard
// plan carries no delta facts.
type RecoveryLifecycle struct {
	coord     *recovery.Coordinator
	chain     *guard.Chain
	recID     idkey.SessionID
	requester idkey.DeviceID
	contextID idkey.ContextID
	scope     authority.Scope
	flowCost  uint64
}

// NewRecoveryLifecycle constructs a lifecycle around the ceremony id
// that Start will initiate; callers run guard+Initiate together via
// Start.
func NewRecoveryLifecycle(coord *recovery.Coordinator, chain *guard.Chain, recID idkey.SessionID, requester idkey.DeviceID, contextID idkey.ContextID, scope authority.Scope, flowCost uint64) *RecoveryLifecycle {
	return &RecoveryLifecycle{coord: coord, chain: chain, recID: recID, requester: requester, contextID: contextID, scope: scope, flowCost: flowCost}
}

// Start guards and initiates the ceremony in one step.
func (r *RecoveryLifecycle) Start(op recovery.Operation, guardians []idkey.GuardianID, threshold int, priority recovery.Priority, justification string, now time.Time, ttl time.Duration, snap guard.Snapshot) ([]guard.EffectCommand, *recovery.State, error) {
	plan := guard.Plan{
		Caller:         r.requester,
		ContextID:      r.contextID,
		Peer:           r.requester,
		FlowCost:       r.flowCost,
		RequiredScopes: []authority.Scope{r.scope},
	}
	cmds, err := runGuard(r.chain, plan, snap)
	if err != nil {
		return nil, nil, err
	}
	st, err := r.coord.Initiate(r.recID, r.requester, op, guardians, threshold, priority, justification, now, ttl)
	if err != nil {
		return cmds, nil, err
	}
	return cmds, st, nil
}

// Approve, Reconstruct, Dispute, Finalize, and Cancel forward directly
// to the coordinator: guardian approvals and the reconstruction outcome
// are not outgoing sends from this replica's perspective, so they carry
// no guard plan of their own.

func (r *RecoveryLifecycle) Approve(approval recovery.Approval, now time.Time) (*recovery.State, error) {
	return r.coord.Approve(r.recID, approval, now)
}

func (r *RecoveryLifecycle) Reconstruct(recipientSK interface{}, now time.Time, apply func(*recovery.State, map[idkey.GuardianID][]byte) error) (*recovery.State, error) {
	return r.coord.Reconstruct(r.recID, recipientSK, now, apply)
}

func (r *RecoveryLifecycle) Dispute(now time.Time) (*recovery.State, error) {
	return r.coord.Dispute(r.recID, now)
}

func (r *RecoveryLifecycle) Finalize(now time.Time) (*recovery.State, error) {
	return r.coord.Finalize(r.recID, now)
}

func (r *RecoveryLifecycle) Cancel() error {
	_, err := r.coord.Cancel(r.recID)
	return err
}
