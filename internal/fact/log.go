package fact

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/idkey"
)

// ConflictReport summarizes what happened during a Merge call.
type ConflictReport struct {
	Added     int
	Dropped   []DropReason
	Conflicts int
}

// DropReason records why a fact was dropped during append or merge.
type DropReason struct {
	Hash   Hash
	Reason string
}

// PendingEntry is a fact waiting on a dependency that has not yet
// arrived, bounded by a staleness horizon.
type PendingEntry struct {
	Fact     *Fact
	AwaitsOn Hash
	Since    time.Time
}

// Log is the append-only, content-addressed fact store.
type Log struct {
	mu         sync.RWMutex
	log        *zap.Logger
	validators *ValidatorRegistry
	registry   *idkey.Registry

	byHash map[Hash]*Fact
	order  []Hash // canonical sort order, rebuilt on merge

	pending         map[Hash]PendingEntry
	stalenessWindow time.Duration
}

// NewLog constructs an empty log. stalenessWindow bounds how long a fact
// may sit in the pending set before it is discarded.
func NewLog(log *zap.Logger, validators *ValidatorRegistry, registry *idkey.Registry, stalenessWindow time.Duration) *Log {
	return &Log{
		log:             log,
		validators:      validators,
		registry:        registry,
		byHash:          make(map[Hash]*Fact),
		pending:         make(map[Hash]PendingEntry),
		stalenessWindow: stalenessWindow,
	}
}

// Append inserts a signed fact, failing: bad signature,
// schema rejection, or missing write-scope authorization (the latter is
// intentionally left to the caller via the authorized func, since C2
// does not itself own the authority graph).
func (l *Log) Append(f *Fact, authorized func(issuer idkey.AuthorityID, typ TypeID) bool) (Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, err := l.registry.AuthorityKey(f.Issuer)
	if err != nil {
		return Hash{}, errs.ErrAuthorization
	}
	if !f.VerifySignature(key) {
		return Hash{}, errs.ErrInvalidSignature
	}
	v, ok := l.validators.Lookup(f.TypeID)
	if !ok {
		return Hash{}, errUnknownFactType
	}
	if err := v.Validate(f.Payload); err != nil {
		return Hash{}, errs.ErrJournalSchema
	}
	if authorized != nil && !authorized(f.Issuer, f.TypeID) {
		return Hash{}, errs.ErrAuthorization
	}

	h := f.ContentHash()
	if _, exists := l.byHash[h]; exists {
		return h, nil // idempotent re-append
	}
	l.byHash[h] = f
	l.insertSorted(h)
	return h, nil
}

func (l *Log) insertSorted(h Hash) {
	f := l.byHash[h]
	i := sort.Search(len(l.order), func(i int) bool {
		return lessByOrder(l.byHash[l.order[i]], f, l.order[i], h)
	})
	l.order = append(l.order, Hash{})
	copy(l.order[i+1:], l.order[i:])
	l.order[i] = h
}

// lessByOrder implements the canonical cross-replica sort: (issued_at,
// hash).
func lessByOrder(a, b *Fact, ha, hb Hash) bool {
	if a.IssuedAt != b.IssuedAt {
		return b.IssuedAt < a.IssuedAt
	}
	for i := range ha {
		if ha[i] != hb[i] {
			return hb[i] < ha[i]
		}
	}
	return false
}

// Get performs a constant-time lookup by content hash.
func (l *Log) Get(h Hash) (*Fact, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.byHash[h]
	return f, ok
}

// List yields facts in canonical sort order.
func (l *Log) List() []*Fact {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Fact, len(l.order))
	for i, h := range l.order {
		out[i] = l.byHash[h]
	}
	return out
}

// Merge unions other's facts into l. Merge is commutative, associative,
// and idempotent because the result is a pure function of fact contents:
// the order and the conflict winner are both computed from
// (issued_at, content_hash) and the per-type primary key, never from
// call order.
func (l *Log) Merge(other *Log) ConflictReport {
	other.mu.RLock()
	incoming := make([]*Fact, len(other.order))
	for i, h := range other.order {
		incoming[i] = other.byHash[h]
	}
	other.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	report := ConflictReport{}
	// primaryKeyIndex tracks, for fact types with a declared primary
	// key, which hash currently "owns" that key so collisions can be
	// resolved by ConflictWins.
	primaryOwner := make(map[TypeID]map[string]Hash)
	for h, f := range l.byHash {
		v, ok := l.validators.Lookup(f.TypeID)
		if !ok {
			continue
		}
		pk, err := v.PrimaryKey(f.Payload)
		if err != nil || pk == nil {
			continue
		}
		if primaryOwner[f.TypeID] == nil {
			primaryOwner[f.TypeID] = make(map[string]Hash)
		}
		primaryOwner[f.TypeID][string(pk)] = h
	}

	for _, f := range incoming {
		h := f.ContentHash()
		if _, exists := l.byHash[h]; exists {
			continue // already present, idempotent
		}
		v, ok := l.validators.Lookup(f.TypeID)
		if !ok {
			report.Dropped = append(report.Dropped, DropReason{Hash: h, Reason: "unknown fact type"})
			continue
		}
		pk, err := v.PrimaryKey(f.Payload)
		if err == nil && pk != nil {
			owners := primaryOwner[f.TypeID]
			if owners == nil {
				owners = make(map[string]Hash)
				primaryOwner[f.TypeID] = owners
			}
			if ownerHash, collided := owners[string(pk)]; collided {
				report.Conflicts++
				incumbent := l.byHash[ownerHash]
				if !v.ConflictWins(incumbent, f) {
					continue // incumbent keeps the primary key
				}
				delete(l.byHash, ownerHash)
				l.removeFromOrder(ownerHash)
			}
			owners[string(pk)] = h
		}
		l.byHash[h] = f
		l.insertSorted(h)
		report.Added++
	}
	return report
}

func (l *Log) removeFromOrder(h Hash) {
	for i, oh := range l.order {
		if oh == h {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// AddPending parks a fact awaiting a dependency that has not yet arrived.
func (l *Log) AddPending(f *Fact, awaitsOn Hash, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := f.ContentHash()
	l.pending[h] = PendingEntry{Fact: f, AwaitsOn: awaitsOn, Since: now}
}

// ResolvePending re-attempts append for any pending fact whose dependency
// has since arrived, and discards any entry older than the staleness
// horizon.
func (l *Log) ResolvePending(now time.Time, authorized func(issuer idkey.AuthorityID, typ TypeID) bool) (resolved int, expired int) {
	l.mu.RLock()
	candidates := make([]PendingEntry, 0, len(l.pending))
	for _, e := range l.pending {
		candidates = append(candidates, e)
	}
	l.mu.RUnlock()

	for _, e := range candidates {
		h := e.Fact.ContentHash()
		if _, ok := l.Get(e.AwaitsOn); ok {
			if _, err := l.Append(e.Fact, authorized); err == nil {
				l.mu.Lock()
				delete(l.pending, h)
				l.mu.Unlock()
				resolved++
				continue
			}
		}
		if now.Sub(e.Since) > l.stalenessWindow {
			l.mu.Lock()
			delete(l.pending, h)
			l.mu.Unlock()
			expired++
			if l.log != nil {
				l.log.Warn("pending fact discarded past staleness horizon",
					zap.String("hash", h.String()))
			}
		}
	}
	return resolved, expired
}
