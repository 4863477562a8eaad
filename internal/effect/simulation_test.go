package effect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aura-id/aura/internal/idkey"
)

func TestSimulationInterpreter_DeterministicRandom(t *testing.T) {
	ctx := context.Background()
	a := NewSimulationInterpreter(42, 0)
	b := NewSimulationInterpreter(42, 0)
	require.Equal(t, a.Bytes(ctx, 32), b.Bytes(ctx, 32))
	require.Equal(t, a.UUID(ctx), b.UUID(ctx))
}

func TestSimulationInterpreter_DifferentSeedsDiverge(t *testing.T) {
	ctx := context.Background()
	a := NewSimulationInterpreter(1, 0)
	b := NewSimulationInterpreter(2, 0)
	require.NotEqual(t, a.Bytes(ctx, 32), b.Bytes(ctx, 32))
}

func TestSimulationInterpreter_CheckpointRestore(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulationInterpreter(7, 1000)

	require.NoError(t, sim.Store(ctx, "k1", []byte("v1")))
	require.NoError(t, sim.AdvanceTime(ctx, 500))
	cp, err := sim.CreateCheckpoint(ctx)
	require.NoError(t, err)

	require.NoError(t, sim.Store(ctx, "k2", []byte("v2")))
	require.NoError(t, sim.AdvanceTime(ctx, 500))
	v, ok, _ := sim.Retrieve(ctx, "k2")
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)

	require.NoError(t, sim.RestoreCheckpoint(ctx, cp))
	_, ok, _ = sim.Retrieve(ctx, "k2")
	require.False(t, ok)
	require.Equal(t, int64(1500), sim.NowMillis(ctx))
}

func TestSimulationInterpreter_CheckpointHashDeterministic(t *testing.T) {
	ctx := context.Background()
	a := NewSimulationInterpreter(9, 0)
	b := NewSimulationInterpreter(9, 0)
	require.NoError(t, a.Store(ctx, "x", []byte("1")))
	require.NoError(t, b.Store(ctx, "x", []byte("1")))
	ha, _ := a.CreateCheckpoint(ctx)
	hb, _ := b.CreateCheckpoint(ctx)
	require.Equal(t, ha, hb)
}

func TestSimulationInterpreter_BudgetCAS(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulationInterpreter(1, 0)
	cid := idkey.NewContextID([]byte("ctx"))
	peer := idkey.NewDeviceID([]byte("peer"))

	spent, _, epoch, _ := sim.ReadBudget(ctx, cid, peer)
	require.Equal(t, uint64(0), spent)

	require.NoError(t, sim.CASBudget(ctx, cid, peer, epoch, spent, 10))
	require.Error(t, sim.CASBudget(ctx, cid, peer, epoch, spent, 20)) // stale oldSpent
}

func TestSimulationInterpreter_FaultInjectionDropsSends(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulationInterpreter(1, 0)
	peer := idkey.NewDeviceID([]byte("peer"))

	require.NoError(t, sim.InjectFault(ctx, "drop_all"))
	require.NoError(t, sim.SendToPeer(ctx, peer, []byte("frame")))
	_, ok := sim.ReceiveFor(peer)
	require.False(t, ok)
}

func TestSimulationInterpreter_SendThenReceive(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulationInterpreter(1, 0)
	peer := idkey.NewDeviceID([]byte("peer"))

	require.NoError(t, sim.SendToPeer(ctx, peer, []byte("hello")))
	frame, ok := sim.ReceiveFor(peer)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), frame)
}
