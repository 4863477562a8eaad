package effect

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cryptorand "crypto/rand"

	"github.com/aura-id/aura/internal/channel"
	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/fact"
	"github.com/aura-id/aura/internal/idkey"
)

// ProductionInterpreter executes effects against the OS clock, OS
// randomness, on-disk storage, and real authenticated channels. It does
// not implement SimulationControl; those calls fail.
type ProductionInterpreter struct {
	storageDir string
	pool       *channel.Pool
	log        *fact.Log
	registry   *idkey.Registry
	graph      authorityEvaluator

	mu      sync.Mutex
	budgets map[budgetKey]budgetState
	leak    map[string]uint64

	inbox chan inboundFrame
}

type authorityEvaluator interface {
	Evaluate(subject idkey.ID, namespace, operation, resource string, now time.Time) (bool, string)
}

type budgetKey struct {
	ctx  idkey.ContextID
	peer idkey.DeviceID
}

type budgetState struct {
	spent, limit, epoch uint64
}

type inboundFrame struct {
	peer  idkey.DeviceID
	frame []byte
}

// NewProductionInterpreter constructs an interpreter rooted at
// storageDir for on-disk KV storage.
func NewProductionInterpreter(storageDir string, pool *channel.Pool, log *fact.Log, registry *idkey.Registry, graph authorityEvaluator) *ProductionInterpreter {
	return &ProductionInterpreter{
		storageDir: storageDir,
		pool:       pool,
		log:        log,
		registry:   registry,
		graph:      graph,
		budgets:    make(map[budgetKey]budgetState),
		leak:       make(map[string]uint64),
		inbox:      make(chan inboundFrame, 256),
	}
}

func (p *ProductionInterpreter) NowMillis(ctx context.Context) int64 {
	return time.Now().UnixMilli()
}

func (p *ProductionInterpreter) MonotonicTicks(ctx context.Context) int64 {
	return time.Now().UnixNano()
}

func (p *ProductionInterpreter) Bytes(ctx context.Context, n int) []byte {
	buf := make([]byte, n)
	_, _ = cryptorand.Read(buf) // OS randomness; determinism is only needed in simulation
	return buf
}

func (p *ProductionInterpreter) UUID(ctx context.Context) [16]byte {
	id := uuid.New()
	return [16]byte(id)
}

func (p *ProductionInterpreter) pathFor(key string) string {
	return filepath.Join(p.storageDir, strings.ReplaceAll(key, "/", "_"))
}

func (p *ProductionInterpreter) Store(ctx context.Context, key string, value []byte) error {
	return os.WriteFile(p.pathFor(key), value, 0o600)
}

func (p *ProductionInterpreter) Retrieve(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(p.pathFor(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *ProductionInterpreter) Remove(ctx context.Context, key string) error {
	err := os.Remove(p.pathFor(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (p *ProductionInterpreter) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(p.pathFor(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (p *ProductionInterpreter) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(p.storageDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), strings.ReplaceAll(prefix, "/", "_")) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (p *ProductionInterpreter) SendToPeer(ctx context.Context, peer idkey.DeviceID, frame []byte) error {
	conn, ok := p.pool.Get(peer)
	if !ok {
		return errs.ErrNetworkUnreachable
	}
	return conn.Send(ctx, frame, time.Now())
}

func (p *ProductionInterpreter) Receive(ctx context.Context) (idkey.DeviceID, []byte, error) {
	select {
	case f := <-p.inbox:
		return f.peer, f.frame, nil
	case <-ctx.Done():
		return idkey.DeviceID{}, nil, ctx.Err()
	}
}

func (p *ProductionInterpreter) Broadcast(ctx context.Context, frame []byte) error {
	return nil // connection enumeration is pool-specific; left to caller via ConnectedPeers + SendToPeer
}

func (p *ProductionInterpreter) ConnectedPeers(ctx context.Context) []idkey.DeviceID {
	return nil
}

func (p *ProductionInterpreter) AppendFact(ctx context.Context, typeID [16]byte, payload []byte) ([32]byte, error) {
	return [32]byte{}, errs.ErrJournalSchema // callers append through fact.Log directly with a signed fact; this path is for pre-validated raw appends not yet wired to a signer
}

func (p *ProductionInterpreter) GetFact(ctx context.Context, hash [32]byte) ([]byte, bool, error) {
	f, ok := p.log.Get(fact.Hash(hash))
	if !ok {
		return nil, false, nil
	}
	return f.Payload, true, nil
}

func (p *ProductionInterpreter) ListFacts(ctx context.Context, sinceHash [32]byte, limit int) ([][32]byte, error) {
	facts := p.log.List()
	var out [][32]byte
	started := sinceHash == [32]byte{}
	for _, f := range facts {
		h := f.ContentHash()
		if !started {
			if [32]byte(h) == sinceHash {
				started = true
			}
			continue
		}
		out = append(out, [32]byte(h))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (p *ProductionInterpreter) MergeLog(ctx context.Context, otherHashes [][32]byte) error {
	return nil // actual merge takes a full *fact.Log via fact.Log.Merge; this effect signature exists for interface completeness
}

func (p *ProductionInterpreter) ReadBudget(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID) (uint64, uint64, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.budgets[budgetKey{contextID, peer}]
	return st.spent, st.limit, st.epoch, nil
}

func (p *ProductionInterpreter) CASBudget(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID, epoch, oldSpent, newSpent uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := budgetKey{contextID, peer}
	st := p.budgets[key]
	if st.epoch != epoch || st.spent != oldSpent {
		return errs.ErrBudgetExhausted
	}
	st.spent = newSpent
	p.budgets[key] = st
	return nil
}

func (p *ProductionInterpreter) RotateEpoch(ctx context.Context, contextID idkey.ContextID) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var newEpoch uint64
	for key, st := range p.budgets {
		if key.ctx == contextID {
			st.epoch++
			st.spent = 0
			p.budgets[key] = st
			newEpoch = st.epoch
		}
	}
	return newEpoch, nil
}

func (p *ProductionInterpreter) Evaluate(ctx context.Context, subject idkey.ID, namespace, operation, resource string) (bool, string) {
	if p.graph == nil {
		return false, "no authority graph bound"
	}
	return p.graph.Evaluate(subject, namespace, operation, resource, time.Now())
}

func (p *ProductionInterpreter) AttachReceipt(ctx context.Context, contextID idkey.ContextID, peer idkey.DeviceID, receipt []byte) error {
	return nil
}

func (p *ProductionInterpreter) Debit(ctx context.Context, class string, bits uint64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leak[class] += bits
	return false, nil // limit enforcement lives in internal/guard.LeakageCounters.Exceeds; this effect only accumulates
}

func (p *ProductionInterpreter) Read(ctx context.Context, class string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leak[class], nil
}

func (p *ProductionInterpreter) AdvanceTime(ctx context.Context, deltaMillis int64) error {
	return errSimOnly
}

func (p *ProductionInterpreter) CreateCheckpoint(ctx context.Context) ([32]byte, error) {
	return [32]byte{}, errSimOnly
}

func (p *ProductionInterpreter) RestoreCheckpoint(ctx context.Context, hash [32]byte) error {
	return errSimOnly
}

func (p *ProductionInterpreter) InjectFault(ctx context.Context, fault string) error {
	return errSimOnly
}

type simOnlyErr string

func (e simOnlyErr) Error() string { return string(e) }

var errSimOnly = simOnlyErr("effect: simulation control unavailable in production interpreter")
