package placement

import (
	"fmt"
	"testing"
	"time"

	"dfs/pkg/types"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSelector(t *testing.T) (*Selector, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewSelector(mock, zap.NewNop()), mock
}

func metricsFor(id string, availGB uint64, reliability float64, response time.Duration, heartbeat time.Time) types.StorageNodeMetrics {
	return types.StorageNodeMetrics{
		NodeID:           types.NodeID(id),
		TotalStorage:     availGB * 2 * 1024 * 1024 * 1024,
		AvailableStorage: availGB * 1024 * 1024 * 1024,
		Reliability:      reliability,
		AvgResponse:      response,
		LastHeartbeat:    heartbeat,
		Region:           "test",
	}
}

func TestSelectFiltersUnqualifiedNodes(t *testing.T) {
	s, mock := newTestSelector(t)
	now := mock.Now()

	s.Register(metricsFor("good", 100, 0.95, 50*time.Millisecond, now))
	s.Register(metricsFor("unreliable", 100, 0.5, 50*time.Millisecond, now))
	s.Register(metricsFor("stale", 100, 0.95, 50*time.Millisecond, now.Add(-10*time.Minute)))
	s.Register(metricsFor("full", 0, 0.95, 50*time.Millisecond, now))

	selected, err := s.Select(1024, 1)
	require.NoError(t, err)
	assert.Equal(t, []types.NodeID{"good"}, selected)
}

func TestSelectInsufficientStorage(t *testing.T) {
	s, mock := newTestSelector(t)
	s.Register(metricsFor("only", 100, 0.95, 50*time.Millisecond, mock.Now()))

	_, err := s.Select(1024, 3)
	assert.ErrorIs(t, err, types.ErrInsufficientStorage)
}

func TestSelectRanksByCompositeScore(t *testing.T) {
	s, mock := newTestSelector(t)
	now := mock.Now()

	// slow has the most capacity but a poor response time; fast wins.
	s.Register(metricsFor("slow", 500, 0.9, 1000*time.Millisecond, now))
	s.Register(metricsFor("fast", 100, 0.9, 10*time.Millisecond, now))
	s.Register(metricsFor("mid", 100, 0.9, 100*time.Millisecond, now))

	selected, err := s.Select(1024, 2)
	require.NoError(t, err)
	assert.Equal(t, []types.NodeID{"fast", "slow"}, selected)
}

func TestSelectDeterministicAcrossCalls(t *testing.T) {
	s, mock := newTestSelector(t)
	now := mock.Now()

	// Identical metrics: the stable sort must preserve registration order,
	// which is the selector's only determinism guarantee.
	for i := 0; i < 6; i++ {
		s.Register(metricsFor(fmt.Sprintf("node-%d", i), 100, 0.9, 50*time.Millisecond, now))
	}

	first, err := s.Select(1024, 4)
	require.NoError(t, err)
	assert.Equal(t, []types.NodeID{"node-0", "node-1", "node-2", "node-3"}, first)

	for i := 0; i < 10; i++ {
		again, err := s.Select(1024, 4)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPenalizeAppliesFactorAndFloor(t *testing.T) {
	s, mock := newTestSelector(t)
	s.Register(metricsFor("node", 100, 0.9, 50*time.Millisecond, mock.Now()))

	s.Penalize("node")
	m, ok := s.Get("node")
	require.True(t, ok)
	assert.InDelta(t, 0.72, m.Reliability, 1e-9)

	// Repeated penalties bottom out at the floor.
	for i := 0; i < 20; i++ {
		s.Penalize("node")
	}
	m, _ = s.Get("node")
	assert.InDelta(t, ReliabilityFloor, m.Reliability, 1e-9)
}

func TestCreditAndContractCounters(t *testing.T) {
	s, mock := newTestSelector(t)
	s.Register(metricsFor("node", 100, 0.9, 50*time.Millisecond, mock.Now()))

	s.Credit("node", 250)
	s.ContractOpened("node")

	m, ok := s.Get("node")
	require.True(t, ok)
	assert.Equal(t, uint64(250), m.TotalEarnings)
	assert.Equal(t, 1, m.ActiveContracts)

	s.ContractClosed("node")
	s.ContractClosed("node") // must not go negative
	m, _ = s.Get("node")
	assert.Equal(t, 0, m.ActiveContracts)
}

func TestSnapshotPreservesRegistrationOrder(t *testing.T) {
	s, mock := newTestSelector(t)
	now := mock.Now()

	s.Register(metricsFor("b", 10, 0.9, time.Millisecond, now))
	s.Register(metricsFor("a", 10, 0.9, time.Millisecond, now))
	s.Register(metricsFor("c", 10, 0.9, time.Millisecond, now))

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, types.NodeID("b"), snap[0].NodeID)
	assert.Equal(t, types.NodeID("a"), snap[1].NodeID)
	assert.Equal(t, types.NodeID("c"), snap[2].NodeID)
}
