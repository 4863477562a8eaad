package fact

import "github.com/cockroachdb/errors"

// Validator checks a fact's payload against its declared schema and
// supplies the per-type primary key and conflict rule used by Merge.
// JournalCoupler (C4) and Log.Append both consult this; write-scope
// authorization is not part of it.
type Validator interface {
	// Validate rejects malformed payloads. Returning an error here is
	// the JournalSchema error kind — the fact is rejected at
	// append, never silently dropped.
	Validate(payload []byte) error

	// PrimaryKey extracts the per-type primary key used to detect merge
	// collisions.
	PrimaryKey(payload []byte) ([]byte, error)

	// ConflictWins reports whether candidate should replace incumbent
	// when both share a primary key. The default tie-break rule across
	// fact types is "earliest wins by (issued_at, issuer id)"; specific
	// fact types may override.
	ConflictWins(incumbent, candidate *Fact) bool
}

// ValidatorRegistry is the open map of per-fact-type validators — a
// tagged-union-over-handler-map dispatch idiom rather than a closed
// switch statement, since fact-type schemas are meant to be extensible.
type ValidatorRegistry struct {
	byType map[TypeID]Validator
}

func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{byType: make(map[TypeID]Validator)}
}

func (r *ValidatorRegistry) Register(t TypeID, v Validator) {
	r.byType[t] = v
}

func (r *ValidatorRegistry) Lookup(t TypeID) (Validator, bool) {
	v, ok := r.byType[t]
	return v, ok
}

var errUnknownFactType = errors.New("fact: no validator registered for fact type")

// DefaultConflictWins implements "earliest wins by (issued_at, issuer
// id)" for fact types that don't need a bespoke rule.
func DefaultConflictWins(incumbent, candidate *Fact) bool {
	if candidate.IssuedAt != incumbent.IssuedAt {
		return candidate.IssuedAt < incumbent.IssuedAt
	}
	ci, ii := candidate.Issuer.Bytes(), incumbent.Issuer.Bytes()
	for i := range ci {
		if ci[i] != ii[i] {
			return ci[i] < ii[i]
		}
	}
	return false
}
