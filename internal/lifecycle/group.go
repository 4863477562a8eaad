package lifecycle

import (
	"github.com/aura-id/aura/internal/authority"
	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/guard"
	"github.com/aura-id/aura/internal/hpke"
	"github.com/aura-id/aura/internal/idkey"
)

// GroupPhase is a node in the group (BeeKEM-style tree key agreement)
// lifecycle.
type GroupPhase int

const (
	GroupAwaitingMembers GroupPhase = iota
	GroupRatcheting
	GroupStable
	GroupCancelled
	GroupFailed
)

func (p GroupPhase) Terminal() bool { return p == GroupCancelled || p == GroupFailed }

// MemberUpdate is one tree-path update a member broadcasts when it
// rotates its leaf key, HPKE-sealed to the copath.
type MemberUpdate struct {
	Member     idkey.DeviceID
	PathSecret *hpke.Ciphertext
}

// GroupLifecycle choreographs a group's key-tree updates: any member
// can propose a path update; it is guarded (capability to update the
// group, flow cost of the broadcast) before being merged into the member
// set. The guard plan carries no delta facts.
type GroupLifecycle struct {
	groupID      idkey.AccountID
	self         idkey.DeviceID
	chain        *guard.Chain
	contextID    idkey.ContextID
	scope        authority.Scope
	flowCost     uint64
	minMembers   int

	members map[idkey.DeviceID]*hpke.Ciphertext
	phase   GroupPhase
	err     error
}

// NewGroupLifecycle constructs a group lifecycle rooted at groupID with
// the initial member set (each mapped to its sealed path secret, or nil
// if not yet contributed).
func NewGroupLifecycle(groupID idkey.AccountID, self idkey.DeviceID, chain *guard.Chain, contextID idkey.ContextID, scope authority.Scope, flowCost uint64, minMembers int, initial map[idkey.DeviceID]*hpke.Ciphertext) *GroupLifecycle {
	members := make(map[idkey.DeviceID]*hpke.Ciphertext, len(initial))
	for k, v := range initial {
		members[k] = v
	}
	phase := GroupAwaitingMembers
	if len(members) >= minMembers {
		phase = GroupRatcheting
	}
	g := &GroupLifecycle{
		groupID: groupID, self: self, chain: chain, contextID: contextID,
		scope: scope, flowCost: flowCost, minMembers: minMembers,
		members: members, phase: phase,
	}
	if g.allContributed() {
		g.phase = GroupStable
	}
	return g
}

// ProposeUpdate broadcasts a local path-secret rotation through the
// guard chain, then applies it to the member map. A rotation from a
// non-member is rejected.
func (g *GroupLifecycle) ProposeUpdate(update MemberUpdate, snap guard.Snapshot) ([]guard.EffectCommand, error) {
	if g.phase.Terminal() {
		return nil, errs.ErrAuthorization
	}
	if _, ok := g.members[update.Member]; !ok {
		return nil, errs.ErrAuthorization
	}

	plan := guard.Plan{
		Caller:         update.Member,
		ContextID:      g.contextID,
		Peer:           update.Member,
		FlowCost:       g.flowCost,
		RequiredScopes: []authority.Scope{g.scope},
	}
	cmds, err := runGuard(g.chain, plan, snap)
	if err != nil {
		return nil, err
	}

	g.members[update.Member] = update.PathSecret
	if g.allContributed() {
		g.phase = GroupStable
	}
	return cmds, nil
}

// AddMember admits a new member to the tree; the group re-enters
// Ratcheting since the new leaf has no path secret yet.
func (g *GroupLifecycle) AddMember(member idkey.DeviceID) {
	if g.phase.Terminal() {
		return
	}
	g.members[member] = nil
	g.phase = GroupRatcheting
}

// RemoveMember evicts a member; remaining members must ratchet again
// before the group is Stable.
func (g *GroupLifecycle) RemoveMember(member idkey.DeviceID) {
	if g.phase.Terminal() {
		return
	}
	delete(g.members, member)
	if len(g.members) < g.minMembers {
		g.phase = GroupAwaitingMembers
		return
	}
	g.phase = GroupRatcheting
	for _, secret := range g.members {
		if secret == nil {
			return
		}
	}
	g.phase = GroupStable
}

func (g *GroupLifecycle) allContributed() bool {
	if len(g.members) < g.minMembers {
		return false
	}
	for _, secret := range g.members {
		if secret == nil {
			return false
		}
	}
	return true
}

// Evidence captures (group_id, participants) for rehydration, per the
// group lifecycle's documented rehydration seed.
func (g *GroupLifecycle) Evidence() Evidence {
	ev := Evidence{SessionIDBytes: [32]byte(g.groupID.ID), Phase: groupPhaseString(g.phase)}
	for m := range g.members {
		ev.ParticipantBytes = append(ev.ParticipantBytes, [32]byte(m.ID))
	}
	return ev
}

func (g *GroupLifecycle) Phase() GroupPhase { return g.phase }
func (g *GroupLifecycle) Finished() bool    { return g.phase.Terminal() }
func (g *GroupLifecycle) Err() error        { return g.err }

func (g *GroupLifecycle) Cancel() error {
	g.phase = GroupCancelled
	return nil
}

func groupPhaseString(p GroupPhase) string {
	switch p {
	case GroupAwaitingMembers:
		return "AwaitingMembers"
	case GroupRatcheting:
		return "Ratcheting"
	case GroupStable:
		return "Stable"
	case GroupCancelled:
		return "Cancelled"
	case GroupFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
