package contracts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dfs/pkg/ledger"
	"dfs/pkg/placement"
	"dfs/pkg/storage"
	"dfs/pkg/types"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	ledger  *ledger.MemoryLedger
	escrow  *ledger.Escrow
	nodes   *placement.Selector
	backend *storage.MemoryBackend
	clk     *clock.Mock
	files   map[string]*types.FileRecord
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:  ledger.NewMemoryLedger(),
		backend: storage.NewMemoryBackend(),
		clk:     clock.NewMock(),
		files:   make(map[string]*types.FileRecord),
	}
	f.clk.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f.escrow = ledger.NewEscrow(f.ledger)
	f.nodes = placement.NewSelector(f.clk, zap.NewNop())
	lookup := func(hash string) (*types.FileRecord, bool) {
		file, ok := f.files[hash]
		return file, ok
	}
	f.manager = NewManager(f.escrow, f.nodes, f.backend, lookup, f.clk, zap.NewNop(), nil)
	return f
}

func (f *fixture) registerNodes(t *testing.T, count int, reliability float64, response time.Duration) []types.NodeID {
	t.Helper()
	ids := make([]types.NodeID, count)
	for i := range ids {
		ids[i] = types.NodeID(fmt.Sprintf("node-%d", i))
		f.nodes.Register(types.StorageNodeMetrics{
			NodeID:           ids[i],
			TotalStorage:     100 * 1024 * 1024 * 1024,
			AvailableStorage: 80 * 1024 * 1024 * 1024,
			Reliability:      reliability,
			AvgResponse:      response,
			LastHeartbeat:    f.clk.Now(),
		})
	}
	return ids
}

// placeFile stores one replicated chunk on every node and registers the
// resulting record with the settlement lookup.
func (f *fixture) placeFile(t *testing.T, nodes []types.NodeID) string {
	t.Helper()
	ctx := context.Background()
	data := []byte("settlement verification payload")
	chunkHash := storage.HashBytes(data)
	for _, node := range nodes {
		require.NoError(t, f.backend.Put(ctx, node, chunkHash, data))
	}
	fileHash := storage.HashBytes(data)
	f.files[fileHash] = &types.FileRecord{
		FileHash: fileHash,
		Size:     uint64(len(data)),
		Chunks: []types.ChunkDescriptor{
			{Index: 0, Hash: chunkHash, Size: len(data), StorageNodes: nodes},
		},
	}
	return fileHash
}

func TestCreateLocksEscrow(t *testing.T) {
	f := newFixture(t)
	nodes := f.registerNodes(t, 3, 0.9, 100*time.Millisecond)
	f.ledger.Mint("alice", 1000)

	contract, err := f.manager.Create("alice", "filehash", nodes, 900, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), f.ledger.Balance("alice"))
	assert.Equal(t, uint64(900), f.escrow.Held(contract.ID))
	assert.Equal(t, uint64(300), contract.PaymentPerNode)
	assert.Equal(t, types.ContractActive, contract.Status)
	assert.Equal(t, f.clk.Now().Add(24*time.Hour), contract.EndTime)
	assert.Equal(t, 1, f.manager.ActiveCount())
}

func TestCreateInsufficientFundsLeavesNoState(t *testing.T) {
	f := newFixture(t)
	nodes := f.registerNodes(t, 3, 0.9, 100*time.Millisecond)
	f.ledger.Mint("alice", 100)

	_, err := f.manager.Create("alice", "filehash", nodes, 900, 24*time.Hour)
	require.Error(t, err)
	assert.True(t, types.IsInsufficientFunds(err))

	assert.Equal(t, uint64(100), f.ledger.Balance("alice"))
	assert.Equal(t, 0, f.manager.ActiveCount())
}

func TestSettleFullAvailability(t *testing.T) {
	f := newFixture(t)
	nodes := f.registerNodes(t, 3, 0.9, 100*time.Millisecond)
	f.ledger.Mint("alice", 1000)
	fileHash := f.placeFile(t, nodes)

	contract, err := f.manager.Create("alice", fileHash, nodes, 1000, 24*time.Hour)
	require.NoError(t, err)

	distributed, err := f.manager.Settle(context.Background(), contract.ID, false)
	require.NoError(t, err)

	// 1000/3 == 333 per node, 1 unit of rounding dust refunded.
	assert.Equal(t, uint64(999), distributed)
	for _, node := range nodes {
		assert.Equal(t, uint64(333), f.ledger.Balance(string(node)))
	}
	assert.Equal(t, uint64(1), f.ledger.Balance("alice"))
	assert.Equal(t, uint64(0), f.escrow.Held(contract.ID))

	settled, ok := f.manager.Get(contract.ID)
	require.True(t, ok)
	assert.Equal(t, types.ContractCompleted, settled.Status)
}

func TestSettlePartialAvailabilityPaysProportionally(t *testing.T) {
	f := newFixture(t)
	nodes := f.registerNodes(t, 5, 0.9, 100*time.Millisecond)
	f.ledger.Mint("alice", 1000)
	fileHash := f.placeFile(t, nodes)

	contract, err := f.manager.Create("alice", fileHash, nodes, 950, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, uint64(190), contract.PaymentPerNode)

	// Two of five replicas gone: availability 0.6 against a 0.95 requirement.
	f.backend.FailNode(nodes[3])
	f.backend.FailNode(nodes[4])

	distributed, err := f.manager.Settle(context.Background(), contract.ID, false)
	require.NoError(t, err)

	expected := uint64(float64(contract.PaymentPerNode) * (0.6 / contract.RequiredAvailability))
	for _, node := range nodes[:3] {
		assert.Equal(t, expected, f.ledger.Balance(string(node)))
	}
	for _, node := range nodes[3:] {
		assert.Equal(t, uint64(0), f.ledger.Balance(string(node)))
	}
	assert.Equal(t, 3*expected, distributed)

	// Whatever was not distributed went back to the client.
	assert.Equal(t, 1000-distributed, f.ledger.Balance("alice"))
	assert.Equal(t, uint64(0), f.escrow.Held(contract.ID))
}

func TestSettlePenalizesUnverifiedNodes(t *testing.T) {
	f := newFixture(t)
	nodes := f.registerNodes(t, 2, 0.9, 100*time.Millisecond)
	f.ledger.Mint("alice", 500)
	fileHash := f.placeFile(t, nodes)

	contract, err := f.manager.Create("alice", fileHash, nodes, 400, time.Hour)
	require.NoError(t, err)

	f.backend.FailNode(nodes[1])
	_, err = f.manager.Settle(context.Background(), contract.ID, false)
	require.NoError(t, err)

	healthy, _ := f.nodes.Get(nodes[0])
	failed, _ := f.nodes.Get(nodes[1])
	assert.InDelta(t, 0.9, healthy.Reliability, 1e-9)
	assert.InDelta(t, 0.9*placement.ReliabilityPenaltyFactor, failed.Reliability, 1e-9)
}

func TestSettleRejectsDoubleSettlement(t *testing.T) {
	f := newFixture(t)
	nodes := f.registerNodes(t, 2, 0.9, 100*time.Millisecond)
	f.ledger.Mint("alice", 500)
	fileHash := f.placeFile(t, nodes)

	contract, err := f.manager.Create("alice", fileHash, nodes, 400, time.Hour)
	require.NoError(t, err)

	_, err = f.manager.Settle(context.Background(), contract.ID, false)
	require.NoError(t, err)
	_, err = f.manager.Settle(context.Background(), contract.ID, false)
	assert.ErrorIs(t, err, types.ErrContract)
}

func TestProcessDueRespectsEndTime(t *testing.T) {
	f := newFixture(t)
	nodes := f.registerNodes(t, 2, 0.9, 100*time.Millisecond)
	f.ledger.Mint("alice", 1000)
	fileHash := f.placeFile(t, nodes)

	_, err := f.manager.Create("alice", fileHash, nodes, 400, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 0, f.manager.ProcessDue(context.Background()))

	f.clk.Add(25 * time.Hour)
	assert.Equal(t, 1, f.manager.ProcessDue(context.Background()))
	assert.Equal(t, 0, f.manager.ActiveCount())
}

func TestForceSettleAllAppliesBonuses(t *testing.T) {
	f := newFixture(t)
	// High reliability and fast response earn both bonuses.
	nodes := f.registerNodes(t, 2, 0.99, 10*time.Millisecond)
	f.ledger.Mint("alice", 10000)
	fileHash := f.placeFile(t, nodes)

	contract, err := f.manager.Create("alice", fileHash, nodes, 1000, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, uint64(500), contract.PaymentPerNode)

	total := f.manager.ForceSettleAll(context.Background())

	// Base 500 plus 10% reliability bonus plus 5% response bonus = 575.
	assert.Equal(t, uint64(575), f.ledger.Balance(string(nodes[0])))
	assert.Equal(t, uint64(1000), total)
	// Second node's bonus is clipped to the escrow remainder.
	assert.Equal(t, uint64(425), f.ledger.Balance(string(nodes[1])))
	assert.Equal(t, uint64(0), f.escrow.Held(contract.ID))
	assert.Equal(t, uint64(9000), f.ledger.Balance("alice"))
}

func TestEarningsReportTiers(t *testing.T) {
	f := newFixture(t)
	f.nodes.Register(types.StorageNodeMetrics{
		NodeID:       "premium",
		TotalStorage: 1024 * 1024 * 1024,
		Reliability:  0.97,
		AvgResponse:  20 * time.Millisecond,
	})
	f.nodes.Register(types.StorageNodeMetrics{
		NodeID:       "standard",
		TotalStorage: 2 * 1024 * 1024 * 1024,
		Reliability:  0.88,
	})
	f.nodes.Register(types.StorageNodeMetrics{
		NodeID:       "basic",
		TotalStorage: 1024 * 1024 * 1024,
		Reliability:  0.70,
	})
	f.nodes.Credit("premium", 500)

	reports := f.manager.EarningsReport()
	require.Len(t, reports, 3)

	byID := make(map[types.NodeID]types.NodeEarningsReport)
	for _, r := range reports {
		byID[r.NodeID] = r
	}
	assert.Equal(t, types.TierPremium, byID["premium"].Tier)
	assert.Equal(t, types.TierStandard, byID["standard"].Tier)
	assert.Equal(t, types.TierBasic, byID["basic"].Tier)
	assert.Equal(t, uint64(500), byID["premium"].TotalEarnings)
	assert.InDelta(t, 500.0, byID["premium"].EarningsPerGB, 1e-9)
}

func TestRewardsStatsAggregates(t *testing.T) {
	f := newFixture(t)
	nodes := f.registerNodes(t, 2, 0.96, 10*time.Millisecond)
	f.ledger.Mint("alice", 1000)
	fileHash := f.placeFile(t, nodes)

	contract, err := f.manager.Create("alice", fileHash, nodes, 1000, time.Hour)
	require.NoError(t, err)
	distributed, err := f.manager.Settle(context.Background(), contract.ID, false)
	require.NoError(t, err)

	stats := f.manager.RewardsStats()
	assert.Equal(t, distributed, stats.TotalDistributed)
	assert.Equal(t, 1, stats.CompletedContracts)
	assert.Equal(t, 2, stats.ActiveProviders)
	assert.Equal(t, distributed, stats.PremiumTierEarnings)
	assert.InDelta(t, 0.96, stats.AvgReliability, 1e-9)
}
