// Package consensus implements C5: the fast-path/fallback threshold
// signing state machine with equivocation detection,
package consensus

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/aura-id/aura/internal/errs"
	"github.com/aura-id/aura/internal/idkey"
	"github.com/aura-id/aura/internal/set"
	"github.com/aura-id/aura/internal/telemetry/metrics"
	"github.com/aura-id/aura/internal/threshold"
)

// Phase is a node in the lattice Pending -> {FastPathActive |
// FallbackActive} -> {Committed | Failed}.
type Phase int

const (
	Pending Phase = iota
	FastPathActive
	FallbackActive
	Committed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "Pending"
	case FastPathActive:
		return "FastPathActive"
	case FallbackActive:
		return "FallbackActive"
	case Committed:
		return "Committed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (p Phase) Terminal() bool { return p == Committed || p == Failed }

// ResultID names one candidate outcome a consensus instance can commit
// to.
type ResultID [32]byte

// DataBinding computes H(cid || result_id || prestate_hash), the binding
// every proposal must carry.
func DataBinding(cid idkey.SessionID, result ResultID, prestateHash [32]byte) [32]byte {
	h := blake3.New()
	h.Write(cid.Bytes())
	h.Write(result[:])
	h.Write(prestateHash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Proposal is one witness's share proposal.
type Proposal struct {
	Witness      idkey.DeviceID
	ResultID     ResultID
	ShareValue   []byte
	NonceBinding []byte
	DataBinding  [32]byte
}

// CommitFact is the immutable terminal artifact of a committed instance.
type CommitFact struct {
	CID                idkey.SessionID
	ResultID           ResultID
	ThresholdSignature threshold.Signature
	PrestateHash       [32]byte
}

// NonceCache tracks, per witness, whether a cached nonce commitment is
// still within the fast-path validity window.
type NonceCache struct {
	CachedAt time.Time
}

// Instance is one consensus instance keyed by CID.
type Instance struct {
	mu sync.Mutex

	CID          idkey.SessionID
	OperationB   []byte
	PrestateHash [32]byte
	Threshold    int
	Witnesses    set.Set[idkey.DeviceID]
	Initiator    idkey.DeviceID

	phase Phase

	// proposals holds at most one entry per (witness, result_id) pair,
	// keyed by witness then result,
	proposals    map[idkey.DeviceID]map[ResultID]Proposal
	equivocators set.Set[idkey.DeviceID]

	commitFact *CommitFact

	fallbackDeadline time.Time
	fallbackArmed    bool

	log     *zap.Logger
	metrics *metrics.Registry
}

// NewInstance creates a Pending consensus instance over witness set W.
func NewInstance(cid idkey.SessionID, opBytes []byte, prestateHash [32]byte, t int, witnesses []idkey.DeviceID, initiator idkey.DeviceID, log *zap.Logger, m *metrics.Registry) *Instance {
	wset := set.Of(witnesses...)
	return &Instance{
		CID: cid, OperationB: opBytes, PrestateHash: prestateHash,
		Threshold: t, Witnesses: wset, Initiator: initiator,
		phase:        Pending,
		proposals:    make(map[idkey.DeviceID]map[ResultID]Proposal),
		equivocators: set.Of[idkey.DeviceID](),
		log:          log, metrics: m,
	}
}

func (in *Instance) Phase() Phase {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.phase
}

func (in *Instance) transition(to Phase) {
	in.phase = to
	if in.metrics != nil {
		in.metrics.ConsensusPhase.WithLabelValues(to.String()).Inc()
	}
	if in.log != nil {
		in.log.Debug("consensus phase transition", zap.String("cid", in.CID.String()), zap.String("phase", to.String()))
	}
}

// Start selects the fast path iff every witness in W has a cached nonce
// commitment whose cached_at lies within validityWindow ending at now;
// otherwise it starts the fallback path and arms the fallback timer.
func (in *Instance) Start(now time.Time, nonceCache map[idkey.DeviceID]NonceCache, validityWindow, fallbackTimeout time.Duration) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.phase != Pending {
		return
	}
	fastEligible := true
	for w := range in.Witnesses {
		nc, ok := nonceCache[w]
		if !ok || now.Sub(nc.CachedAt) > validityWindow {
			fastEligible = false
			break
		}
	}
	if fastEligible {
		in.transition(FastPathActive)
		return
	}
	in.transition(FallbackActive)
	in.fallbackDeadline = now.Add(fallbackTimeout)
	in.fallbackArmed = true
}

// Propose admits a share proposal. A proposal from a witness not in W,
// with a bad data_binding, or
// with an empty share_value/nonce_binding is rejected. A witness with a
// prior proposal for a different result_id is marked an equivocator and
// the new proposal is rejected.
func (in *Instance) Propose(p Proposal) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.phase.Terminal() {
		return errs.ErrConsensusTimeout
	}
	if !in.Witnesses.Contains(p.Witness) {
		return errInvalidWitness
	}
	want := DataBinding(in.CID, p.ResultID, in.PrestateHash)
	if p.DataBinding != want {
		return errBadDataBinding
	}
	if len(p.ShareValue) == 0 || len(p.NonceBinding) == 0 {
		return errMalformedShare
	}

	existing, hasAny := in.proposals[p.Witness]
	if hasAny {
		for rid := range existing {
			if rid != p.ResultID {
				in.equivocators.Add(p.Witness)
				if in.log != nil {
					in.log.Warn("equivocation detected", zap.String("witness", p.Witness.String()))
				}
				return errs.ErrEquivocation
			}
		}
	} else {
		existing = make(map[ResultID]Proposal)
		in.proposals[p.Witness] = existing
	}
	existing[p.ResultID] = p
	return in.tryCommitLocked()
}

// tryCommitLocked checks whether some result_id now has >= t distinct
// non-equivocating witnesses and, if so, aggregates and commits. Callers
// must hold in.mu.
func (in *Instance) tryCommitLocked() error {
	if in.phase.Terminal() {
		return nil
	}
	counts := make(map[ResultID][]Proposal)
	for w, byResult := range in.proposals {
		if in.equivocators.Contains(w) {
			continue
		}
		for rid, p := range byResult {
			counts[rid] = append(counts[rid], p)
		}
	}
	for rid, props := range counts {
		if len(props) < in.Threshold {
			continue
		}
		shares := make([]threshold.Share, len(props))
		for i, p := range props {
			shares[i] = threshold.Share{Witness: p.Witness, NonceComm: p.NonceBinding, Value: p.ShareValue}
		}
		sig, err := threshold.ThresholdSign(append(in.OperationB, rid[:]...), shares, threshold.GroupKey{}, in.Threshold)
		if err != nil {
			continue
		}
		in.commitFact = &CommitFact{CID: in.CID, ResultID: rid, ThresholdSignature: sig, PrestateHash: in.PrestateHash}
		in.transition(Committed)
		return nil
	}
	return nil
}

// CheckFallbackTimeout transitions to Failed if the fallback timer has
// fired before threshold was met.
func (in *Instance) CheckFallbackTimeout(now time.Time) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.phase != FallbackActive || !in.fallbackArmed {
		return false
	}
	if now.Before(in.fallbackDeadline) {
		return false
	}
	in.transition(Failed)
	return true
}

// CommitFactOrNil returns the commit fact once the instance is
// Committed.
func (in *Instance) CommitFactOrNil() *CommitFact {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.commitFact
}

// Equivocators returns the set of witnesses marked as equivocating.
func (in *Instance) Equivocators() []idkey.DeviceID {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]idkey.DeviceID, 0, len(in.equivocators))
	for w := range in.equivocators {
		out = append(out, w)
	}
	return out
}

// CheckAgreement verifies the Agreement property: for any two
// commit facts sharing a CID, their ResultID must be equal. A single
// Instance can only ever hold one commit fact since Committed is sticky,
// so this checks a slice of facts gathered across replicas/time.
func CheckAgreement(facts []CommitFact) bool {
	byCID := make(map[idkey.SessionID]ResultID)
	for _, f := range facts {
		if existing, ok := byCID[f.CID]; ok {
			if existing != f.ResultID {
				return false
			}
			continue
		}
		byCID[f.CID] = f.ResultID
	}
	return true
}

var (
	errInvalidWitness = errWrap("consensus: witness not in W")
	errBadDataBinding = errWrap("consensus: data_binding mismatch")
	errMalformedShare = errWrap("consensus: empty share_value or nonce_binding")
)

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }
func errWrap(s string) error        { return sentinelErr(s) }
