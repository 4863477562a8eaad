// Package lifecycle implements C11: guarded protocol lifecycles — state
// machines whose transitions emit guard.EffectCommand sequences rather
// than performing side effects directly. Each lifecycle consults the
// guard chain (C4) at every outgoing send. GroupLifecycle exposes an
// Evidence snapshot (group id, participants, phase); no lifecycle in
// this package is reconstructed from an Evidence value.
package lifecycle

import (
	"time"

	"github.com/aura-id/aura/internal/guard"
)

// InputKind tags the three ways a lifecycle can be driven.
type InputKind int

const (
	LocalSignal InputKind = iota
	PeerMessage
	Timer
)

// ProtocolInput is the single driving event type every lifecycle
// transition function consumes.
type ProtocolInput struct {
	Kind    InputKind
	Data    []byte
	From    []byte // peer device id bytes, set for PeerMessage
	Now     time.Time
}

// Lifecycle is the common shape of every guarded protocol state
// machine: consult current state, optionally emit guarded sends, update
// state, and report terminal status.
type Lifecycle interface {
	// Step consumes one ProtocolInput and returns the effect commands
	// the guard chain produced for any outgoing sends this step caused.
	Step(in ProtocolInput) ([]guard.EffectCommand, error)
	// Finished reports whether the lifecycle has reached a terminal
	// state.
	Finished() bool
	// Output returns the terminal output, if any (nil until Finished).
	Output() []byte
	// Err returns the terminal error, if the lifecycle failed.
	Err() error
	// Cancel transitions the lifecycle to Cancelled. Guards already
	// charged are not refunded.
	Cancel() error
}

// Evidence is the rehydration seed for a lifecycle: enough durable
// state (group/session identifiers, participant sets, current phase)
// to reconstruct an in-memory Lifecycle after a crash, without
// replaying the whole journal.
type Evidence struct {
	SessionIDBytes   [32]byte
	ParticipantBytes [][32]byte
	Phase            string
	StateBlob        []byte
}

// runGuard is the helper every concrete lifecycle uses to run
// the fixed guard chain at a send site and return its commands; kept
// here so every lifecycle's send path calls through one place, which is
// what the choreography annotations compile against (guard_capability,
// flow_cost, journal_facts, leak map onto Plan fields below).
func runGuard(chain *guard.Chain, plan guard.Plan, snap guard.Snapshot) ([]guard.EffectCommand, error) {
	cmds, _, err := chain.Run(plan, snap)
	return cmds, err
}
