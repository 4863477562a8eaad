package lifecycle

import (
	"time"

	"github.com/aura-id/aura/internal/authority"
	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/guard"
	"github.com/aura-id/aura/internal/idkey"
	"github.com/aura-id/aura/internal/rendezvous"
)

// AuthPhase is a node in the authority-auth lifecycle: a device proving
// it holds a granted capability before a rendezvous handshake is
// allowed to complete.
type AuthPhase int

const (
	AuthAwaitingOffer AuthPhase = iota
	AuthAwaitingAnswer
	AuthAuthorized
	AuthDenied
	AuthCancelled
)

func (p AuthPhase) Terminal() bool { return p == AuthAuthorized || p == AuthDenied || p == AuthCancelled }

// AuthorityAuthLifecycle choreographs a device's authentication to an
// authority: the device's required scope is checked through the guard
// chain before its Offer is accepted. AcceptAnswer does not run the
// guard chain again.
type AuthorityAuthLifecycle struct {
	device    idkey.DeviceID
	authority idkey.AuthorityID
	chain     *guard.Chain
	contextID idkey.ContextID
	scope     authority.Scope
	flowCost  uint64
	handshake *rendezvous.HandshakeState

	phase AuthPhase
	err   error
}

// NewAuthorityAuthLifecycle constructs a lifecycle for one device
// authenticating to one authority.
func NewAuthorityAuthLifecycle(device idkey.DeviceID, auth idkey.AuthorityID, chain *guard.Chain, contextID idkey.ContextID, scope authority.Scope, flowCost uint64) *AuthorityAuthLifecycle {
	return &AuthorityAuthLifecycle{
		device: device, authority: auth, chain: chain, contextID: contextID,
		scope: scope, flowCost: flowCost,
		handshake: rendezvous.NewHandshakeState(device),
		phase:     AuthAwaitingOffer,
	}
}

// AcceptOffer runs the guard chain for the device's claimed capability,
// then validates the handshake's counter/expiry rules.
func (a *AuthorityAuthLifecycle) AcceptOffer(msg rendezvous.RendezvousMessage, now time.Time, snap guard.Snapshot) ([]guard.EffectCommand, error) {
	if a.phase.Terminal() {
		return nil, errs.ErrAuthorization
	}
	plan := guard.Plan{
		Caller:         a.device,
		ContextID:      a.contextID,
		Peer:           a.device,
		FlowCost:       a.flowCost,
		RequiredScopes: []authority.Scope{a.scope},
	}
	cmds, err := runGuard(a.chain, plan, snap)
	if err != nil {
		a.phase = AuthDenied
		a.err = err
		return nil, err
	}
	if err := a.handshake.AcceptOffer(msg, now); err != nil {
		a.phase = AuthDenied
		a.err = err
		return cmds, err
	}
	a.phase = AuthAwaitingAnswer
	return cmds, nil
}

// AcceptAnswer completes the handshake once a valid Answer arrives.
func (a *AuthorityAuthLifecycle) AcceptAnswer(msg rendezvous.RendezvousMessage, now time.Time) error {
	if a.phase != AuthAwaitingAnswer {
		return errs.ErrAuthorization
	}
	if err := a.handshake.AcceptAnswer(msg, now); err != nil {
		a.phase = AuthDenied
		a.err = err
		return err
	}
	a.phase = AuthAuthorized
	return nil
}

func (a *AuthorityAuthLifecycle) Phase() AuthPhase { return a.phase }
func (a *AuthorityAuthLifecycle) Finished() bool   { return a.phase.Terminal() }
func (a *AuthorityAuthLifecycle) Err() error        { return a.err }

func (a *AuthorityAuthLifecycle) Cancel() error {
	a.phase = AuthCancelled
	return nil
}
