// Package errs defines the error taxonomy shared across Aura's core
// components. Each kind is a sentinel for errors.Is matching;
// callers that need structured context wrap the sentinel with
// github.com/cockroachdb/errors, which preserves both the match-able
// sentinel and a captured stack trace.
package errs

import "github.com/cockroachdb/errors"

var (
	// ErrConfiguration signals a bad parameter at startup. Fatal; the
	// user must fix configuration before retrying.
	ErrConfiguration = errors.New("configuration error")

	// ErrAuthorization signals a missing or revoked capability. The
	// guard chain aborts the plan; no downstream guard runs.
	ErrAuthorization = errors.New("authorization denied")

	// ErrBudgetExhausted signals a flow or leakage limit was hit. The
	// caller may retry after the next epoch rotation.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrJournalSchema signals a fact rejected by its fact-type
	// validator. The caller must fix the payload; never retried as-is.
	ErrJournalSchema = errors.New("fact rejected by schema")

	// ErrEquivocation signals an equivocating witness was detected in a
	// consensus instance. The witness is recorded and excluded; the
	// instance continues.
	ErrEquivocation = errors.New("witness equivocation detected")

	// ErrConsensusTimeout signals the fallback timer fired before
	// threshold was reached. The instance transitions to Failed.
	ErrConsensusTimeout = errors.New("consensus fallback timeout")

	// ErrPolicyViolation signals a recovery threshold or cooldown
	// requirement was not met at initiate time.
	ErrPolicyViolation = errors.New("recovery policy violation")

	// ErrDisputed signals a dispute was filed within the dispute
	// window; the outcome freezes pending operator intervention.
	ErrDisputed = errors.New("recovery outcome disputed")

	// ErrInvalidSignature signals a signature failed verification.
	// Never retried.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrDecryptionFailed signals an HPKE open failed — this subsumes
	// AAD mismatch, wrong recipient, and truncation. Never retried.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrNetworkUnreachable signals no reachable peer existed for a
	// retrieval. The caller should retry against the next replica, then
	// surface.
	ErrNetworkUnreachable = errors.New("network unreachable")

	// ErrStorageNotFound signals a hash was not locally available. The
	// caller should fall through to the network, then surface.
	ErrStorageNotFound = errors.New("not found in storage")
)

// BudgetExhaustedError carries the structured context a FlowGuard
// rejection requires.
type BudgetExhaustedError struct {
	Context   string
	Peer      string
	Spent     uint64
	Requested uint64
	Limit     uint64
}

func (e *BudgetExhaustedError) Error() string {
	return errors.Wrapf(ErrBudgetExhausted,
		"context=%s peer=%s spent=%d requested=%d limit=%d",
		e.Context, e.Peer, e.Spent, e.Requested, e.Limit).Error()
}

func (e *BudgetExhaustedError) Unwrap() error { return ErrBudgetExhausted }

// PolicyViolation is one entry in a Recovery.PolicyViolation report.
type PolicyViolation struct {
	Rule    string
	Detail  string
}

// PolicyViolationError carries the full violation list from a rejected
// recovery `initiate` call.
type PolicyViolationError struct {
	Violations []PolicyViolation
	Warnings   []PolicyViolation
}

func (e *PolicyViolationError) Error() string {
	return errors.Wrapf(ErrPolicyViolation, "%d violation(s)", len(e.Violations)).Error()
}

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }
