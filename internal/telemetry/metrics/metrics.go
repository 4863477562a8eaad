// Package metrics exposes the prometheus counters and gauges emitted by the
// guard chain, consensus core, and recovery ceremony, plus simulator
// collectors (tick duration, checkpoints) that internal/sim does not
// update.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric family a production deployment scrapes.
// Each Registry owns its own prometheus.Registry, so several can coexist
// in one process without colliding on collectors.
type Registry struct {
	reg *prometheus.Registry

	GuardPassTotal    *prometheus.CounterVec
	GuardFailTotal    *prometheus.CounterVec
	BudgetSpent       *prometheus.GaugeVec
	ConsensusPhase    *prometheus.CounterVec
	RecoveryOutcome   *prometheus.CounterVec
	SimTickDuration   prometheus.Histogram
	CheckpointsTaken  prometheus.Counter
}

// New builds a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		GuardPassTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aura",
			Subsystem: "guard",
			Name:      "pass_total",
			Help:      "Guard stage passes, labeled by stage name.",
		}, []string{"stage"}),
		GuardFailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aura",
			Subsystem: "guard",
			Name:      "fail_total",
			Help:      "Guard stage failures, labeled by stage name and reason.",
		}, []string{"stage", "reason"}),
		BudgetSpent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "aura",
			Subsystem: "guard",
			Name:      "budget_spent",
			Help:      "Current spent flow budget per (context, peer).",
		}, []string{"context", "peer"}),
		ConsensusPhase: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aura",
			Subsystem: "consensus",
			Name:      "phase_transitions_total",
			Help:      "Consensus instance phase transitions.",
		}, []string{"phase"}),
		RecoveryOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aura",
			Subsystem: "recovery",
			Name:      "outcome_total",
			Help:      "Recovery ceremony terminal outcomes.",
		}, []string{"outcome"}),
		SimTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aura",
			Subsystem: "sim",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time to process one simulator tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		CheckpointsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aura",
			Subsystem: "sim",
			Name:      "checkpoints_total",
			Help:      "Checkpoints created by the simulator.",
		}),
	}
	reg.MustRegister(
		r.GuardPassTotal, r.GuardFailTotal, r.BudgetSpent,
		r.ConsensusPhase, r.RecoveryOutcome, r.SimTickDuration, r.CheckpointsTaken,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
