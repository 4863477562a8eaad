// Package sim implements the deterministic tick-based simulator: a
// single-threaded cooperative scheduler over a SimulationInterpreter,
// fault injection, checkpoint/restore, and a property monitor that
// evaluates registered invariants at every tick boundary.
package sim

import (
	"context"
	"sort"

	"github.com/aura-id/aura/internal/effect"
)

// Task is one unit of scheduled work. Enqueued tasks run to
// fixed-point within a tick in (priority, enqueue sequence) order.
type Task struct {
	Priority int
	Run      func(ctx context.Context) []Task // may return follow-up tasks scheduled in the same tick
}

type scheduledTask struct {
	task     Task
	sequence uint64
}

// Property is one invariant the monitor checks at every tick boundary.
type Property struct {
	Name  string
	Check func(s *Simulator) (holds bool, witness string)
}

// ViolationReport is raised when a Property fails.
type ViolationReport struct {
	Property string
	Tick     int64
	Witness  string
}

// Simulator drives a SimulationInterpreter through ticks, running
// queued tasks to a fixed point each tick and then evaluating every
// registered property.
type Simulator struct {
	Interp *effect.SimulationInterpreter

	pending []scheduledTask
	nextSeq uint64

	properties []Property
	violations []ViolationReport

	tick        int64
	tickMillis  int64
	abortOnFail bool
}

// New constructs a simulator around interp, advancing the logical clock
// by tickMillis every tick. abortOnFail controls whether RunTick returns
// false after a tick that recorded a violation, so Run stops driving
// further ticks (a test harness should set this true).
func New(interp *effect.SimulationInterpreter, tickMillis int64, abortOnFail bool) *Simulator {
	return &Simulator{Interp: interp, tickMillis: tickMillis, abortOnFail: abortOnFail}
}

// RegisterProperty adds an invariant to be checked at every tick
// boundary.
func (s *Simulator) RegisterProperty(p Property) {
	s.properties = append(s.properties, p)
}

// Schedule enqueues a task for the next RunTick; a task scheduled while
// a tick is running (for example as a follow-up) runs in that same tick.
func (s *Simulator) Schedule(t Task) {
	s.pending = append(s.pending, scheduledTask{task: t, sequence: s.nextSeq})
	s.nextSeq++
}

// Violations returns every ViolationReport recorded so far.
func (s *Simulator) Violations() []ViolationReport {
	return s.violations
}

// Tick returns the current tick count.
func (s *Simulator) Tick() int64 { return s.tick }

// RunTick advances the logical clock by one tick, runs all pending
// tasks to a fixed point in (priority, enqueue_sequence) order, then
// evaluates every registered property. It returns false if
// abortOnFail is set and a violation occurred, signaling the caller to
// stop driving further ticks.
func (s *Simulator) RunTick(ctx context.Context) bool {
	_ = s.Interp.AdvanceTime(ctx, s.tickMillis)
	s.tick++

	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		sort.SliceStable(batch, func(i, j int) bool {
			if batch[i].task.Priority != batch[j].task.Priority {
				return batch[i].task.Priority < batch[j].task.Priority
			}
			return batch[i].sequence < batch[j].sequence
		})
		for _, st := range batch {
			follow := st.task.Run(ctx)
			for _, f := range follow {
				s.Schedule(f)
			}
		}
	}

	ok := true
	for _, p := range s.properties {
		holds, witness := p.Check(s)
		if !holds {
			ok = false
			s.violations = append(s.violations, ViolationReport{Property: p.Name, Tick: s.tick, Witness: witness})
		}
	}
	if !ok && s.abortOnFail {
		return false
	}
	return true
}

// Run drives ticks until either maxTicks is reached or RunTick signals
// abort. It returns the number of ticks actually run.
func (s *Simulator) Run(ctx context.Context, maxTicks int64) int64 {
	var i int64
	for ; i < maxTicks; i++ {
		if !s.RunTick(ctx) {
			return i + 1
		}
	}
	return i
}

// Checkpoint snapshots the interpreter's state.
func (s *Simulator) Checkpoint(ctx context.Context) ([32]byte, error) {
	return s.Interp.CreateCheckpoint(ctx)
}

// Restore resets the interpreter to a prior checkpoint. Pending tasks
// and recorded violations are not part of interpreter state and are
// left untouched; callers restoring mid-scenario should also clear
// Simulator-level bookkeeping if they need a full rewind.
func (s *Simulator) Restore(ctx context.Context, hash [32]byte) error {
	return s.Interp.RestoreCheckpoint(ctx, hash)
}

// InjectFault forwards to the interpreter's fault-injection effect.
func (s *Simulator) InjectFault(ctx context.Context, fault string) error {
	return s.Interp.InjectFault(ctx, fault)
}
