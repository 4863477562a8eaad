package effect

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/idkey"
)

// SimulationInterpreter runs every effect against a logical clock, a
// seeded PRNG, in-memory storage, and a coordinated in-memory network.
// It supports checkpoint/restore and fault injection, and is the
// execution substrate the tick-based simulator (internal/sim) drives.
type SimulationInterpreter struct {
	mu sync.Mutex

	clockMillis int64
	ticks       int64
	rng         *splitmix64

	storage map[string][]byte
	budgets map[budgetKey]budgetState
	leak    map[string]uint64

	network      map[idkey.DeviceID][]inboundFrame
	faults       map[string]bool
	checkpoints  map[[32]byte]snapshot
}

type snapshot struct {
	clockMillis int64
	ticks       int64
	rngState    uint64
	storage     map[string][]byte
	budgets     map[budgetKey]budgetState
	leak        map[string]uint64
}

// NewSimulationInterpreter constructs an interpreter seeded
// deterministically from seed, starting the logical clock at
// startMillis.
func NewSimulationInterpreter(seed uint64, startMillis int64) *SimulationInterpreter {
	return &SimulationInterpreter{
		clockMillis: startMillis,
		rng:         newSplitmix64(seed),
		storage:     make(map[string][]byte),
		budgets:     make(map[budgetKey]budgetState),
		leak:        make(map[string]uint64),
		network:     make(map[idkey.DeviceID][]inboundFrame),
		faults:      make(map[string]bool),
		checkpoints: make(map[[32]byte]snapshot),
	}
}

func (s *SimulationInterpreter) NowMillis(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clockMillis
}

func (s *SimulationInterpreter) MonotonicTicks(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func (s *SimulationInterpreter) Bytes(ctx context.Context, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, n)
	for i := 0; i < n; i += 8 {
		v := s.rng.next()
		for j := 0; j < 8 && i+j < n; j++ {
			out[i+j] = byte(v >> (8 * j))
		}
	}
	return out
}

func (s *SimulationInterpreter) UUID(ctx context.Context) [16]byte {
	b := s.Bytes(ctx, 16)
	var out [16]byte
	copy(out[:], b)
	out[6] = (out[6] & 0x0f) | 0x40
	out[8] = (out[8] & 0x3f) | 0x80
	return out
}

func (s *SimulationInterpreter) Store(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.storage[key] = cp
	return nil
}

func (s *SimulationInterpreter) Retrieve(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.storage[key]
	return v, ok, nil
}

func (s *SimulationInterpreter) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.storage, key)
	return nil
}

func (s *SimulationInterpreter) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.storage[key]
	return ok, nil
}

func (s *SimulationInterpreter) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.storage {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SendToPeer enqueues the frame into the peer's inbound queue; delivery
// is instantaneous in this model since the simulator's tick loop, not
// the network effect, governs ordering.
func (s *SimulationInterpreter) SendToPeer(ctx context.Context, peer idkey.DeviceID, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults["drop_all"] {
		return nil
	}
	s.network[peer] = append(s.network[peer], inboundFrame{peer: peer, frame: frame})
	return nil
}

func (s *SimulationInterpreter) Receive(ctx context.Context) (idkey.DeviceID, []byte, error) {
	return idkey.DeviceID{}, nil, errs.ErrNetworkUnreachable // simulation delivery is pull-by-peer via ReceiveFor, not a single shared queue
}

// ReceiveFor drains one queued frame addressed to peer, if any.
func (s *SimulationInterpreter) ReceiveFor(peer idkey.DeviceID) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.network[peer]
	if len(q) == 0 {
		return nil, false
	}
	frame := q[0].frame
	s.network[peer] = q[1:]
	return frame, true
}

func (s *SimulationInterpreter) Broadcast(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for peer := range s.network {
		s.network[peer] = append(s.network[peer], inboundFrame{peer: peer, frame: frame})
	}
	return nil
}

func (s *SimulationInterpreter) ConnectedPeers(ctx context.Context) []idkey.DeviceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]idkey.DeviceID, 0, len(s.network))
	for peer := range s.network {
		out = append(out, peer)
	}
	return out
}

func (s *SimulationInterpreter) AppendFact(ctx context.Context, typeID [16]byte, payload []byte) ([32]byte, error) {
	h := blake3.Sum256(append(typeID[:], payload...))
	return h, nil
}

func (s *SimulationInterpreter) GetFact(ctx context.Context, hash [32]byte) ([]byte, bool, error) {
	return nil, false, nil // simulation journal state is exercised through internal/fact.Log directly by lifecycle code
}

func (s *SimulationInterpreter) ListFacts(ctx context.Context, sinceHash [32]byte, limit int) ([][32]byte, error) {
	return nil, nil
}

func (s *SimulationInterpreter) MergeLog(ctx context.Context, otherHashes [][32]byte) error {
	return nil
}

func (s *SimulationInterpreter) ReadBudget(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID) (uint64, uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.budgets[budgetKey{contextID, peer}]
	return st.spent, st.limit, st.epoch, nil
}

func (s *SimulationInterpreter) CASBudget(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID, epoch, oldSpent, newSpent uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := budgetKey{contextID, peer}
	st := s.budgets[key]
	if st.epoch != epoch || st.spent != oldSpent {
		return errs.ErrBudgetExhausted
	}
	st.spent = newSpent
	s.budgets[key] = st
	return nil
}

func (s *SimulationInterpreter) RotateEpoch(ctx context.Context, contextID idkey.ContextID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newEpoch uint64
	for key, st := range s.budgets {
		if key.ctx == contextID {
			st.epoch++
			st.spent = 0
			s.budgets[key] = st
			newEpoch = st.epoch
		}
	}
	return newEpoch, nil
}

func (s *SimulationInterpreter) Evaluate(ctx context.Context, subject idkey.ID, namespace, operation, resource string) (bool, string) {
	return true, "" // simulation tests bind their own authority graph and call it directly rather than through this effect
}

func (s *SimulationInterpreter) AttachReceipt(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID, receipt []byte) error {
	return nil
}

func (s *SimulationInterpreter) Debit(ctx context.Context, class string, bits uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leak[class] += bits
	return false, nil
}

func (s *SimulationInterpreter) Read(ctx context.Context, class string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leak[class], nil
}

func (s *SimulationInterpreter) AdvanceTime(ctx context.Context, deltaMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clockMillis += deltaMillis
	s.ticks++
	return nil
}

// CreateCheckpoint snapshots the logical clock, tick count, PRNG state,
// storage, budget counters and leakage counters, and returns a BLAKE3
// hash of the snapshot as the checkpoint handle. Queued network frames
// and injected faults are not part of a checkpoint; RestoreCheckpoint
// leaves them as they are.
func (s *SimulationInterpreter) CreateCheckpoint(ctx context.Context) ([32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		clockMillis: s.clockMillis,
		ticks:       s.ticks,
		rngState:    s.rng.state,
		storage:     cloneBytesMap(s.storage),
		budgets:     cloneBudgetMap(s.budgets),
		leak:        cloneUintMap(s.leak),
	}
	h := hashSnapshot(snap)
	s.checkpoints[h] = snap
	return h, nil
}

// RestoreCheckpoint resets interpreter state to a prior checkpoint.
func (s *SimulationInterpreter) RestoreCheckpoint(ctx context.Context, hash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.checkpoints[hash]
	if !ok {
		return errs.ErrStorageNotFound
	}
	s.clockMillis = snap.clockMillis
	s.ticks = snap.ticks
	s.rng.state = snap.rngState
	s.storage = cloneBytesMap(snap.storage)
	s.budgets = cloneBudgetMap(snap.budgets)
	s.leak = cloneUintMap(snap.leak)
	return nil
}

// InjectFault flips a named fault flag; currently understood faults:
// "drop_all" (SendToPeer becomes a silent no-op).
func (s *SimulationInterpreter) InjectFault(ctx context.Context, fault string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[fault] = true
	return nil
}

func cloneBytesMap(m map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func cloneBudgetMap(m map[budgetKey]budgetState) map[budgetKey]budgetState {
	out := make(map[budgetKey]budgetState, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneUintMap(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// hashSnapshot computes a canonical BLAKE3 digest over a snapshot's
// deterministic fields. Map iteration order is normalized by sorting
// keys first.
func hashSnapshot(snap snapshot) [32]byte {
	h := blake3.New()
	var hdr [24]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(snap.clockMillis))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(snap.ticks))
	binary.LittleEndian.PutUint64(hdr[16:24], snap.rngState)
	h.Write(hdr[:])

	keys := make([]string, 0, len(snap.storage))
	for k := range snap.storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(snap.storage[k])
	}

	leakKeys := make([]string, 0, len(snap.leak))
	for k := range snap.leak {
		leakKeys = append(leakKeys, k)
	}
	sort.Strings(leakKeys)
	for _, k := range leakKeys {
		h.Write([]byte(k))
		var v [8]byte
		binary.LittleEndian.PutUint64(v[:], snap.leak[k])
		h.Write(v[:])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// splitmix64 is a small deterministic PRNG used for reproducible
// simulation runs; it trades cryptographic quality for reproducibility
// across restores, which is the only property the simulator needs.
type splitmix64 struct {
	state uint64
}

func newSplitmix64(seed uint64) *splitmix64 {
	return &splitmix64{state: seed}
}

func (s *splitmix64) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
