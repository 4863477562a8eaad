// Package guard implements C4: the fixed CapGuard -> FlowGuard ->
// JournalCoupler -> LeakageTracker pipeline run at every send site.
package guard

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/aura-id/aura/internal/authority"
	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/fact"
	"github.com/aura-id/aura/internal/idkey"
	"github.com/aura-id/aura/internal/telemetry/metrics"
)

// LeakageBudget is the per-observer-class leakage allowance.
type LeakageBudget struct {
	External uint64
	Neighbor uint64
	InGroup  uint64
}

// LeakageCounters tracks debits against a LeakageBudget.
type LeakageCounters struct {
	External uint64
	Neighbor uint64
	InGroup  uint64
}

// Exceeds reports whether adding delta to c would breach budget.
func (c LeakageCounters) Exceeds(delta LeakageBudget, budget LeakageBudget) bool {
	return c.External+delta.External > budget.External ||
		c.Neighbor+delta.Neighbor > budget.Neighbor ||
		c.InGroup+delta.InGroup > budget.InGroup
}

// Snapshot is the GuardSnapshot describes: the current effect
// context state a guard pass reads from.
type Snapshot struct {
	Now           time.Time
	Epoch         uint64
	Spent         uint64
	Limit         uint64
	Leakage       LeakageCounters
	GraphRoot     fact.Hash
}

// Plan is a request to run the guard chain for one outgoing send.
type Plan struct {
	Caller         idkey.DeviceID
	ContextID      idkey.ContextID
	Peer           idkey.DeviceID
	FlowCost       uint64
	RequiredScopes []authority.Scope
	DeltaFacts     []*fact.Fact
	Leak           LeakageBudget
	LeakageLimit   LeakageBudget
}

// EffectCommandKind tags the kind of command emitted by a guard pass.
type EffectCommandKind int

const (
	CmdUpdateBudget EffectCommandKind = iota
	CmdAppendFact
	CmdDebitLeakage
)

// EffectCommand is one atomic side-effect description a guard pass emits.
// No side effect described here has executed yet — the interpreter (C9)
// executes the whole slice as a single transaction, or not at all.
type EffectCommand struct {
	Kind        EffectCommandKind
	ContextID   idkey.ContextID
	Peer        idkey.DeviceID
	Epoch       uint64
	SpentBefore uint64
	SpentAfter  uint64
	Fact        *fact.Fact
	LeakDelta   LeakageBudget
}

// Receipt attests that a flow budget charge was committed for
// (context, peer, epoch).
type Receipt struct {
	ContextID  idkey.ContextID
	Peer       idkey.DeviceID
	Epoch      uint64
	Nonce      [16]byte
	SpentAfter uint64
	Signature  []byte
}

// Chain runs CapGuard -> FlowGuard -> JournalCoupler -> LeakageTracker in
// that fixed order and returns the plan of effect commands, or the first
// guard failure. No downstream guard runs once one fails, and no
// transport send is ever emitted as part of the plan itself.
type Chain struct {
	log        *zap.Logger
	metrics    *metrics.Registry
	graph      *authority.Graph
	validators *fact.ValidatorRegistry
	nonceGen   func() [16]byte
}

// NewChain constructs a guard chain over the given authority graph.
// validators may be nil, in which case journalCoupler rejects any plan
// carrying delta facts outright rather than appending unvalidated ones.
func NewChain(log *zap.Logger, m *metrics.Registry, graph *authority.Graph, validators *fact.ValidatorRegistry, nonceGen func() [16]byte) *Chain {
	return &Chain{log: log, metrics: m, graph: graph, validators: validators, nonceGen: nonceGen}
}

// Run evaluates CapGuard, FlowGuard, JournalCoupler, and LeakageTracker in
// order against snap and plan, returning the commands to execute and a
// receipt for the caller to present on the next hop.
func (c *Chain) Run(plan Plan, snap Snapshot) ([]EffectCommand, Receipt, error) {
	if err := c.capGuard(plan, snap); err != nil {
		c.observeFail("cap", err)
		return nil, Receipt{}, err
	}
	c.observePass("cap")

	spentAfter, err := c.flowGuard(plan, snap)
	if err != nil {
		c.observeFail("flow", err)
		return nil, Receipt{}, err
	}
	c.observePass("flow")

	factCmds, err := c.journalCoupler(plan)
	if err != nil {
		c.observeFail("journal", err)
		return nil, Receipt{}, err
	}
	c.observePass("journal")

	if err := c.leakageTracker(plan, snap); err != nil {
		c.observeFail("leakage", err)
		return nil, Receipt{}, err
	}
	c.observePass("leakage")

	cmds := make([]EffectCommand, 0, 2+len(factCmds))
	cmds = append(cmds, EffectCommand{
		Kind:        CmdUpdateBudget,
		ContextID:   plan.ContextID,
		Peer:        plan.Peer,
		Epoch:       snap.Epoch,
		SpentBefore: snap.Spent,
		SpentAfter:  spentAfter,
	})
	cmds = append(cmds, factCmds...)
	cmds = append(cmds, EffectCommand{
		Kind:      CmdDebitLeakage,
		ContextID: plan.ContextID,
		Peer:      plan.Peer,
		LeakDelta: plan.Leak,
	})

	nonce := c.nonceGen()
	receipt := Receipt{
		ContextID:  plan.ContextID,
		Peer:       plan.Peer,
		Epoch:      snap.Epoch,
		Nonce:      nonce,
		SpentAfter: spentAfter,
	}

	if c.metrics != nil {
		c.metrics.BudgetSpent.WithLabelValues(plan.ContextID.String(), plan.Peer.String()).Set(float64(spentAfter))
	}
	return cmds, receipt, nil
}

// capGuard evaluates granted(caller, scope, now) for every required
// scope.
func (c *Chain) capGuard(plan Plan, snap Snapshot) error {
	for _, scope := range plan.RequiredScopes {
		if c.graph.Evaluate(plan.Caller, scope, snap.Now) != authority.Granted {
			return errs.ErrAuthorization
		}
	}
	return nil
}

// flowGuard computes spent' = spent + flow_cost and fails if it would
// exceed the limit.
func (c *Chain) flowGuard(plan Plan, snap Snapshot) (uint64, error) {
	spentAfter := snap.Spent + plan.FlowCost
	if spentAfter > snap.Limit {
		return 0, &errs.BudgetExhaustedError{
			Context:   plan.ContextID.String(),
			Peer:      plan.Peer.String(),
			Spent:     snap.Spent,
			Requested: plan.FlowCost,
			Limit:     snap.Limit,
		}
	}
	return spentAfter, nil
}

// journalCoupler validates each delta fact against its fact-type schema
// and emits an append_fact command per fact. It does not itself check
// the caller's capabilities beyond delegating to capGuard's
// required-scope check; authorization for the write is satisfied by
// requiring the fact's write scope among plan.RequiredScopes at the
// call site. A fact that fails its schema, or whose type carries no
// registered validator, fails the whole chain before any command
// (including the budget update already computed by flowGuard) is
// returned to the caller.
func (c *Chain) journalCoupler(plan Plan) ([]EffectCommand, error) {
	cmds := make([]EffectCommand, 0, len(plan.DeltaFacts))
	for _, f := range plan.DeltaFacts {
		if c.validators == nil {
			return nil, errs.ErrJournalSchema
		}
		v, ok := c.validators.Lookup(f.TypeID)
		if !ok {
			return nil, errs.ErrJournalSchema
		}
		if err := v.Validate(f.Payload); err != nil {
			return nil, errors.Wrap(err, "guard: delta fact failed schema validation")
		}
		cmds = append(cmds, EffectCommand{Kind: CmdAppendFact, Fact: f})
	}
	return cmds, nil
}

// leakageTracker fails if adding plan.Leak to snap.Leakage would breach
// plan.LeakageLimit for any observer class.
func (c *Chain) leakageTracker(plan Plan, snap Snapshot) error {
	if snap.Leakage.Exceeds(plan.Leak, plan.LeakageLimit) {
		return errs.ErrBudgetExhausted
	}
	return nil
}

func (c *Chain) observePass(stage string) {
	if c.metrics != nil {
		c.metrics.GuardPassTotal.WithLabelValues(stage).Inc()
	}
}

func (c *Chain) observeFail(stage string, err error) {
	if c.metrics != nil {
		c.metrics.GuardFailTotal.WithLabelValues(stage, errorReason(err)).Inc()
	}
	if c.log != nil {
		c.log.Debug("guard stage failed", zap.String("stage", stage), zap.Error(err))
	}
}

func errorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	default:
		return err.Error()
	}
}
