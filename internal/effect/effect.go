// Package effect defines the named, typed side-effect operations that
// every lifecycle and guard chain issues, plus the two interpreters
// (production and simulation) that execute them.
package effect

import (
	"context"

	"github.com/aura-id/aura/internal/idkey"
)

// Time is the clock effect family.
type Time interface {
	NowMillis(ctx context.Context) int64
	MonotonicTicks(ctx context.Context) int64
}

// Random is the randomness effect family; seeded in simulation.
type Random interface {
	Bytes(ctx context.Context, n int) []byte
	UUID(ctx context.Context) [16]byte
}

// Storage is the key-value effect family.
type Storage interface {
	Store(ctx context.Context, key string, value []byte) error
	Retrieve(ctx context.Context, key string) ([]byte, bool, error)
	Remove(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Network is the transport effect family.
type Network interface {
	SendToPeer(ctx context.Context, peer idkey.DeviceID, frame []byte) error
	Receive(ctx context.Context) (peer idkey.DeviceID, frame []byte, err error)
	Broadcast(ctx context.Context, frame []byte) error
	ConnectedPeers(ctx context.Context) []idkey.DeviceID
}

// Journal is the fact-log effect family. Payloads are opaque byte
// strings; the caller (guard chain / lifecycle) owns marshaling.
type Journal interface {
	AppendFact(ctx context.Context, typeID [16]byte, payload []byte) (hash [32]byte, err error)
	GetFact(ctx context.Context, hash [32]byte) ([]byte, bool, error)
	ListFacts(ctx context.Context, sinceHash [32]byte, limit int) ([][32]byte, error)
	MergeLog(ctx context.Context, otherHashes [][32]byte) error
}

// FlowBudget is the flow-accounting effect family.
type FlowBudget interface {
	ReadBudget(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID) (spent, limit uint64, epoch uint64, err error)
	CASBudget(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID, epoch, oldSpent, newSpent uint64) error
	RotateEpoch(ctx context.Context, contextID idkey.ContextID) (newEpoch uint64, err error)
}

// Authorization is the capability-evaluation effect family.
type Authorization interface {
	Evaluate(ctx context.Context, subject idkey.ID, namespace, operation, resource string) (granted bool, reason string)
	AttachReceipt(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID, receipt []byte) error
}

// Leakage is the observer-class accounting effect family.
type Leakage interface {
	Debit(ctx context.Context, class string, bits uint64) (exceeded bool, err error)
	Read(ctx context.Context, class string) (uint64, error)
}

// SimulationControl is only meaningfully implemented by the simulation
// interpreter; production implementations return an error.
type SimulationControl interface {
	AdvanceTime(ctx context.Context, deltaMillis int64) error
	CreateCheckpoint(ctx context.Context) ([32]byte, error)
	RestoreCheckpoint(ctx context.Context, hash [32]byte) error
	InjectFault(ctx context.Context, fault string) error
}

// Interpreter bundles every effect family an execution environment must
// provide. Both the production and simulation interpreters satisfy this.
type Interpreter interface {
	Time
	Random
	Storage
	Network
	Journal
	FlowBudget
	Authorization
	Leakage
	SimulationControl
}
