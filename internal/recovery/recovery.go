// Package recovery implements C7: the guardian-based recovery ceremony.
//
// Two parallel recovery coordinator designs were on the table — a
// guardian-centric one and a policy-centric one — with overlapping fact
// emissions. This package is the policy-enforcing coordinator, chosen as
// canonical; see DESIGN.md for the reasoning.
package recovery

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/hpke"
	"github.com/aura-id/aura/internal/idkey"
	"github.com/aura-id/aura/internal/telemetry/metrics"
)

// Priority is the recovery urgency tier.
type Priority int

const (
	Normal Priority = iota
	Urgent
	Emergency
)

// Operation names the kind of recovery being performed.
type Operation int

const (
	AddDevice Operation = iota
	RemoveDevice
	ReplaceTree
	UpdateGuardians
)

// Phase is a node in the recovery state machine.
type Phase int

const (
	Initiated Phase = iota
	CollectingApprovals
	Reconstructing
	Completed
	RecFailed
	Disputed
	Cancelled
	Expired
	Finalized
)

func (p Phase) Terminal() bool {
	switch p {
	case Completed, RecFailed, Disputed, Cancelled, Expired, Finalized:
		return true
	}
	return false
}

// Approval is one guardian's signed contribution.
type Approval struct {
	RecoveryID  idkey.SessionID
	GuardianID  idkey.GuardianID
	Signature   []byte
	ShareData   *hpke.Ciphertext // HPKE(share, aad=GuardianShareAAD(RecoveryID, GuardianID))
	ApprovedAt  time.Time
}

// GuardianShareAAD returns the AAD binding a guardian's HPKE-sealed
// share must carry: recovery_id || guardian_id. Reconstruct rejects any
// approval whose ShareData does not open under this exact binding, so a
// share sealed for one recovery ceremony or guardian cannot be replayed
// as a valid contribution to another.
func GuardianShareAAD(recoveryID idkey.SessionID, guardianID idkey.GuardianID) []byte {
	aad := make([]byte, 0, len(recoveryID.Bytes())+len(guardianID.Bytes()))
	aad = append(aad, recoveryID.Bytes()...)
	aad = append(aad, guardianID.Bytes()...)
	return aad
}

// Policy holds the threshold-requirement, cooldown, and dispute-window
// tables enforced at Initiate.
type Policy struct {
	// MinThreshold overrides the caller-supplied threshold upward, never
	// downward, keyed by priority.
	MinThreshold map[Priority]int
	// Cooldown rejects a new recovery by the same principal within this
	// window of a prior one, keyed by priority.
	Cooldown map[Priority]time.Duration
	// DisputeWindow is the default dispute window; Emergency uses
	// EmergencyDisputeWindow instead, with a warning rather than an
	// error.
	DisputeWindow          time.Duration
	EmergencyDisputeWindow time.Duration
}

// DefaultPolicy returns the conservative preset, matching the
// Default/Production/Development preset idiom used in internal/config.
func DefaultPolicy() Policy {
	return Policy{
		MinThreshold: map[Priority]int{
			Normal:    2,
			Urgent:    2,
			Emergency: 3,
		},
		Cooldown: map[Priority]time.Duration{
			Normal:    24 * time.Hour,
			Urgent:    6 * time.Hour,
			Emergency: 0,
		},
		DisputeWindow:          72 * time.Hour,
		EmergencyDisputeWindow: 6 * time.Hour,
	}
}

// Evaluation is the result of a policy check at Initiate.
type Evaluation struct {
	Valid      bool
	Violations []errs.PolicyViolation
	Warnings   []errs.PolicyViolation
}

// Evaluate checks requestedThreshold/n/priority/lastAttempt against the
// policy tables and returns the effective (possibly raised) threshold
// plus any violations/warnings.
func (p Policy) Evaluate(requestedThreshold, availableGuardians int, priority Priority, now, lastAttempt time.Time, hasLastAttempt bool) (effectiveThreshold int, eval Evaluation) {
	eval.Valid = true
	effectiveThreshold = requestedThreshold
	if min, ok := p.MinThreshold[priority]; ok && min > effectiveThreshold {
		effectiveThreshold = min
	}
	if effectiveThreshold > availableGuardians {
		eval.Valid = false
		eval.Violations = append(eval.Violations, errs.PolicyViolation{
			Rule:   "threshold-requirement",
			Detail: "required exceeds available guardians",
		})
	}
	if hasLastAttempt {
		if cd, ok := p.Cooldown[priority]; ok && now.Sub(lastAttempt) < cd {
			eval.Valid = false
			eval.Violations = append(eval.Violations, errs.PolicyViolation{
				Rule:   "cooldown",
				Detail: "recovery attempted within cooldown window",
			})
		}
	}
	if priority == Emergency {
		eval.Warnings = append(eval.Warnings, errs.PolicyViolation{
			Rule:   "dispute-window-reduced",
			Detail: "emergency priority uses a reduced dispute window",
		})
	}
	return effectiveThreshold, eval
}

func (p Policy) disputeWindowFor(priority Priority) time.Duration {
	if priority == Emergency {
		return p.EmergencyDisputeWindow
	}
	return p.DisputeWindow
}

// Metrics is the per-run summary every ceremony emits on completion.
type Metrics struct {
	GuardiansContacted int
	GuardiansApproved  int
	CooldownBlocked    bool
	CompletedAt        time.Time
}

// State is one recovery ceremony instance, owned by the Coordinator
// keyed by RecoveryID.
type State struct {
	RecoveryID       idkey.SessionID
	Requester        idkey.DeviceID
	Operation        Operation
	Guardians        []idkey.GuardianID
	Threshold        int
	Priority         Priority
	Justification    string
	ExpiresAt        time.Time
	DisputeDeadline  time.Time
	CooldownStart    time.Time

	Phase     Phase
	Approvals map[idkey.GuardianID]Approval
	Metrics   Metrics
}

// Coordinator runs the canonical, policy-enforcing recovery ceremony.
type Coordinator struct {
	policy Policy
	log    *zap.Logger
	metrics *metrics.Registry

	states       map[idkey.SessionID]*State
	lastAttempt  map[idkey.DeviceID]time.Time
}

// NewCoordinator constructs a coordinator with the given policy.
func NewCoordinator(policy Policy, log *zap.Logger, m *metrics.Registry) *Coordinator {
	return &Coordinator{
		policy:      policy,
		log:         log,
		metrics:     m,
		states:      make(map[idkey.SessionID]*State),
		lastAttempt: make(map[idkey.DeviceID]time.Time),
	}
}

// Initiate starts a new recovery ceremony, enforcing the policy layer
//. On rejection it returns *errs.PolicyViolationError.
func (c *Coordinator) Initiate(recoveryID idkey.SessionID, requester idkey.DeviceID, op Operation, guardians []idkey.GuardianID, requestedThreshold int, priority Priority, justification string, now time.Time, ttl time.Duration) (*State, error) {
	lastAttempt, hasLast := c.lastAttempt[requester]
	effectiveThreshold, eval := c.policy.Evaluate(requestedThreshold, len(guardians), priority, now, lastAttempt, hasLast)
	if !eval.Valid {
		return nil, &errs.PolicyViolationError{Violations: eval.Violations, Warnings: eval.Warnings}
	}

	st := &State{
		RecoveryID:    recoveryID,
		Requester:     requester,
		Operation:     op,
		Guardians:     guardians,
		Threshold:     effectiveThreshold,
		Priority:      priority,
		Justification: justification,
		ExpiresAt:     now.Add(ttl),
		Phase:         Initiated,
		Approvals:     make(map[idkey.GuardianID]Approval),
		Metrics:       Metrics{GuardiansContacted: len(guardians)},
	}
	c.states[recoveryID] = st
	c.lastAttempt[requester] = now
	if c.log != nil {
		c.log.Info("recovery initiated",
			zap.String("recovery_id", recoveryID.String()),
			zap.Int("threshold", effectiveThreshold))
	}
	return st, nil
}

var errUnknownRecovery = mkErr("recovery: unknown recovery_id")
var errAlreadyApproved = mkErr("recovery: guardian already approved")
var errNotCollecting = mkErr("recovery: not accepting approvals in current phase")

// Approve records a guardian's approval. On the kth valid approval the
// ceremony transitions to Reconstructing.
func (c *Coordinator) Approve(recoveryID idkey.SessionID, approval Approval, now time.Time) (*State, error) {
	st, ok := c.states[recoveryID]
	if !ok {
		return nil, errUnknownRecovery
	}
	if st.Phase.Terminal() {
		return nil, errNotCollecting
	}
	if st.Phase == Initiated {
		st.Phase = CollectingApprovals
	}
	if st.Phase != CollectingApprovals {
		return nil, errNotCollecting
	}
	if _, exists := st.Approvals[approval.GuardianID]; exists {
		return nil, errAlreadyApproved
	}
	st.Approvals[approval.GuardianID] = approval
	st.Metrics.GuardiansApproved = len(st.Approvals)

	if len(st.Approvals) >= st.Threshold {
		st.Phase = Reconstructing
	}
	return st, nil
}

// Reconstruct performs the recovery operation once Reconstructing. It
// first opens every approving guardian's ShareData with
// hpke.DecryptWithAAD under GuardianShareAAD(recoveryID, guardianID): an
// approval with no ShareData, or whose ciphertext fails to open under
// that exact binding, fails reconstruction outright and the ceremony
// moves to RecFailed without ever calling apply — a malformed or
// replayed guardian share can never reduce the effective threshold. Only
// once every approval's share has been decrypted does apply run with
// the recovered plaintext shares; the actual device/tree mutation is
// left to that caller-supplied func, since C7 doesn't own the authority
// graph or fact log directly.
func (c *Coordinator) Reconstruct(recoveryID idkey.SessionID, recipientSK interface{}, now time.Time, apply func(*State, map[idkey.GuardianID][]byte) error) (*State, error) {
	st, ok := c.states[recoveryID]
	if !ok {
		return nil, errUnknownRecovery
	}
	if st.Phase != Reconstructing {
		return nil, errNotCollecting
	}

	shares := make(map[idkey.GuardianID][]byte, len(st.Approvals))
	for guardianID, approval := range st.Approvals {
		if approval.ShareData == nil {
			st.Phase = RecFailed
			if c.metrics != nil {
				c.metrics.RecoveryOutcome.WithLabelValues("failed").Inc()
			}
			return st, errors.Wrapf(errs.ErrDecryptionFailed, "recovery: guardian %s submitted no share data", guardianID)
		}
		aad := GuardianShareAAD(recoveryID, guardianID)
		pt, err := hpke.DecryptWithAAD(recipientSK, *approval.ShareData, aad)
		if err != nil {
			st.Phase = RecFailed
			if c.metrics != nil {
				c.metrics.RecoveryOutcome.WithLabelValues("failed").Inc()
			}
			return st, errors.Wrapf(err, "recovery: guardian %s share failed to open under its AAD binding", guardianID)
		}
		shares[guardianID] = pt
	}

	if err := apply(st, shares); err != nil {
		st.Phase = RecFailed
		if c.metrics != nil {
			c.metrics.RecoveryOutcome.WithLabelValues("failed").Inc()
		}
		return st, err
	}
	st.Phase = Completed
	st.DisputeDeadline = now.Add(c.policy.disputeWindowFor(st.Priority))
	st.Metrics.CompletedAt = now
	if c.metrics != nil {
		c.metrics.RecoveryOutcome.WithLabelValues("completed").Inc()
	}
	return st, nil
}

// Dispute files a dispute within the dispute window.
func (c *Coordinator) Dispute(recoveryID idkey.SessionID, now time.Time) (*State, error) {
	st, ok := c.states[recoveryID]
	if !ok {
		return nil, errUnknownRecovery
	}
	if st.Phase != Completed {
		return nil, errNotCollecting
	}
	if now.After(st.DisputeDeadline) {
		return nil, errNotCollecting
	}
	st.Phase = Disputed
	if c.metrics != nil {
		c.metrics.RecoveryOutcome.WithLabelValues("disputed").Inc()
	}
	return st, errs.ErrDisputed
}

// Finalize closes the dispute window once the deadline passes without a
// dispute.
func (c *Coordinator) Finalize(recoveryID idkey.SessionID, now time.Time) (*State, error) {
	st, ok := c.states[recoveryID]
	if !ok {
		return nil, errUnknownRecovery
	}
	if st.Phase != Completed || now.Before(st.DisputeDeadline) {
		return st, nil
	}
	st.Phase = Finalized
	return st, nil
}

// Cancel transitions a non-terminal ceremony to Cancelled. Releases no
// journal locks and clears the requester's cooldown entry: a future
// recovery with a distinct RecoveryID may retry immediately.
func (c *Coordinator) Cancel(recoveryID idkey.SessionID) (*State, error) {
	st, ok := c.states[recoveryID]
	if !ok {
		return nil, errUnknownRecovery
	}
	if st.Phase.Terminal() {
		return st, nil
	}
	st.Phase = Cancelled
	delete(c.lastAttempt, st.Requester)
	return st, nil
}

// ExpireOverdue transitions any non-terminal ceremony whose ExpiresAt has
// passed to Expired, and publishes the fact via the caller-supplied
// publish func so peers converge.
func (c *Coordinator) ExpireOverdue(now time.Time, publish func(*State)) int {
	n := 0
	for _, st := range c.states {
		if st.Phase.Terminal() {
			continue
		}
		if now.After(st.ExpiresAt) {
			st.Phase = Expired
			n++
			if publish != nil {
				publish(st)
			}
			if c.metrics != nil {
				c.metrics.RecoveryOutcome.WithLabelValues("expired").Inc()
			}
		}
	}
	return n
}

func mkErr(s string) error { return simpleErr(s) }

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
