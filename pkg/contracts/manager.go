// Package contracts manages the lifecycle of escrowed storage contracts:
// creation with up-front escrow, availability verification against the chunk
// store, proportional settlement, and network-wide earnings reporting.
package contracts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dfs/pkg/ledger"
	"dfs/pkg/metrics"
	"dfs/pkg/placement"
	"dfs/pkg/storage"
	"dfs/pkg/types"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultRequiredAvailability is the fraction of a contract's replica
	// set that must prove it still holds its chunks to earn full payment.
	DefaultRequiredAvailability = 0.95

	// Bonus thresholds applied during forced settlement.
	reliabilityBonusThreshold = 0.95
	responseBonusThreshold    = 50 * time.Millisecond
	reliabilityBonusRate      = 0.10
	responseBonusRate         = 0.05
)

// FileLookup resolves a file hash to its catalog record so settlement can
// verify which chunks each node is responsible for.
type FileLookup func(fileHash string) (*types.FileRecord, bool)

// Manager tracks storage contracts and drives their settlement.
type Manager struct {
	escrow  *ledger.Escrow
	nodes   *placement.Selector
	backend storage.Backend
	lookup  FileLookup
	clk     clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	contracts map[types.ContractID]*types.StorageContract

	statsMu          sync.Mutex
	totalDistributed uint64
	completed        int
	tierEarnings     map[types.PerformanceTier]uint64
}

func NewManager(escrow *ledger.Escrow, nodes *placement.Selector, backend storage.Backend, lookup FileLookup, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		escrow:    escrow,
		nodes:     nodes,
		backend:   backend,
		lookup:    lookup,
		clk:       clk,
		logger:    logger.Named("contracts"),
		metrics:   m,
		contracts: make(map[types.ContractID]*types.StorageContract),
		tierEarnings: map[types.PerformanceTier]uint64{
			types.TierPremium:  0,
			types.TierStandard: 0,
			types.TierBasic:    0,
		},
	}
}

// Create opens a contract binding the client to the given replica set. The
// full escrow amount is locked before any state is recorded; if the client
// cannot cover it, no contract exists afterwards.
func (m *Manager) Create(client, fileHash string, storageNodes []types.NodeID, escrowAmount uint64, duration time.Duration) (*types.StorageContract, error) {
	if len(storageNodes) == 0 {
		return nil, fmt.Errorf("%w: contract needs at least one storage node", types.ErrContract)
	}

	id := types.ContractID(uuid.NewString())
	if err := m.escrow.Lock(id, client, escrowAmount); err != nil {
		return nil, err
	}

	now := m.clk.Now()
	contract := &types.StorageContract{
		ID:                   id,
		FileHash:             fileHash,
		StorageNodes:         append([]types.NodeID(nil), storageNodes...),
		Client:               client,
		EscrowAmount:         escrowAmount,
		PaymentPerNode:       escrowAmount / uint64(len(storageNodes)),
		StartTime:            now,
		EndTime:              now.Add(duration),
		Status:               types.ContractActive,
		RequiredAvailability: DefaultRequiredAvailability,
	}

	m.mu.Lock()
	m.contracts[id] = contract
	m.mu.Unlock()

	for _, node := range storageNodes {
		m.nodes.ContractOpened(node)
	}

	m.logger.Info("contract created",
		zap.String("contract_id", string(id)),
		zap.String("client", client),
		zap.Uint64("escrow", escrowAmount),
		zap.Int("nodes", len(storageNodes)),
		zap.Time("end_time", contract.EndTime))

	out := *contract
	return &out, nil
}

// Get returns a copy of the contract, if known.
func (m *Manager) Get(id types.ContractID) (types.StorageContract, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	if !ok {
		return types.StorageContract{}, false
	}
	return *c, true
}

// ActiveCount reports how many contracts are still active.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.contracts {
		if c.Status == types.ContractActive {
			n++
		}
	}
	return n
}

// Settle verifies each node's chunks, pays verified nodes proportionally to
// the achieved availability, penalizes unverified nodes, and refunds the
// client any escrow left over. Distributed plus refunded always equals the
// locked escrow. When bonus is set, high-reliability and low-latency nodes
// earn a premium on top of their base payout, clipped to the escrow.
func (m *Manager) Settle(ctx context.Context, id types.ContractID, bonus bool) (uint64, error) {
	m.mu.Lock()
	contract, ok := m.contracts[id]
	if !ok {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: unknown contract %s", types.ErrContract, id)
	}
	if contract.Status != types.ContractActive {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: contract %s already %s", types.ErrContract, id, contract.Status)
	}
	// Mark completed up front so a concurrent settle cannot double-pay.
	contract.Status = types.ContractCompleted
	contract.LastVerified = m.clk.Now()
	snapshot := *contract
	m.mu.Unlock()

	verified := m.verifyNodes(ctx, &snapshot)

	ratio := float64(len(verified)) / float64(len(snapshot.StorageNodes))
	factor := ratio / snapshot.RequiredAvailability
	if factor > 1.0 {
		factor = 1.0
	}

	var distributed uint64
	for _, node := range snapshot.StorageNodes {
		m.nodes.ContractClosed(node)

		if !verified[node] {
			m.nodes.Penalize(node)
			m.logger.Warn("node failed availability check",
				zap.String("contract_id", string(id)),
				zap.String("node_id", string(node)))
			continue
		}

		payout := uint64(float64(snapshot.PaymentPerNode) * factor)
		if bonus {
			payout += m.bonusFor(node, payout)
		}
		if remaining := m.escrow.Held(id); payout > remaining {
			payout = remaining
		}
		if payout == 0 {
			continue
		}

		if err := m.escrow.Pay(id, string(node), payout); err != nil {
			m.logger.Error("escrow payout failed",
				zap.String("contract_id", string(id)),
				zap.String("node_id", string(node)),
				zap.Error(err))
			continue
		}
		m.nodes.Credit(node, payout)
		m.recordTierEarnings(node, payout)
		distributed += payout
	}

	refunded, err := m.escrow.Refund(id, snapshot.Client)
	if err != nil {
		m.logger.Error("escrow refund failed",
			zap.String("contract_id", string(id)),
			zap.Error(err))
	}

	m.statsMu.Lock()
	m.totalDistributed += distributed
	m.completed++
	m.statsMu.Unlock()

	m.metrics.IncContractsSettled()
	m.metrics.AddEscrowDistributed(distributed)
	m.metrics.AddEscrowRefunded(refunded)

	m.logger.Info("contract settled",
		zap.String("contract_id", string(id)),
		zap.Float64("availability", ratio),
		zap.Int("verified_nodes", len(verified)),
		zap.Uint64("distributed", distributed),
		zap.Uint64("refunded", refunded))

	return distributed, nil
}

// Cancel tears down an active contract without paying anyone: the full
// escrow goes back to the client. Used when chunk placement fails after the
// contract was opened.
func (m *Manager) Cancel(id types.ContractID) error {
	m.mu.Lock()
	contract, ok := m.contracts[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: unknown contract %s", types.ErrContract, id)
	}
	if contract.Status != types.ContractActive {
		m.mu.Unlock()
		return fmt.Errorf("%w: contract %s already %s", types.ErrContract, id, contract.Status)
	}
	contract.Status = types.ContractCancelled
	snapshot := *contract
	m.mu.Unlock()

	for _, node := range snapshot.StorageNodes {
		m.nodes.ContractClosed(node)
	}

	refunded, err := m.escrow.Refund(id, snapshot.Client)
	if err != nil {
		return err
	}
	m.metrics.AddEscrowRefunded(refunded)

	m.logger.Info("contract cancelled",
		zap.String("contract_id", string(id)),
		zap.Uint64("refunded", refunded))
	return nil
}

// verifyNodes checks, per node, that every chunk assigned to it is still
// retrievable and content-intact. A node is verified only when all of its
// assigned chunks check out.
func (m *Manager) verifyNodes(ctx context.Context, contract *types.StorageContract) map[types.NodeID]bool {
	verified := make(map[types.NodeID]bool, len(contract.StorageNodes))

	file, ok := m.lookup(contract.FileHash)
	if !ok {
		m.logger.Warn("settling contract for unknown file",
			zap.String("contract_id", string(contract.ID)),
			zap.String("file_hash", contract.FileHash))
		return verified
	}

	for _, node := range contract.StorageNodes {
		assigned := 0
		healthy := true
		for _, desc := range file.Chunks {
			if !holdsChunk(desc.StorageNodes, node) {
				continue
			}
			assigned++
			data, found := m.backend.Get(ctx, node, desc.Hash)
			if !found || storage.HashBytes(data) != desc.Hash {
				healthy = false
				break
			}
		}
		if assigned > 0 && healthy {
			verified[node] = true
		}
	}
	return verified
}

func holdsChunk(nodes []types.NodeID, node types.NodeID) bool {
	for _, n := range nodes {
		if n == node {
			return true
		}
	}
	return false
}

func (m *Manager) bonusFor(node types.NodeID, base uint64) uint64 {
	nm, ok := m.nodes.Get(node)
	if !ok {
		return 0
	}
	var bonus uint64
	if nm.Reliability >= reliabilityBonusThreshold {
		bonus += uint64(float64(base) * reliabilityBonusRate)
	}
	if nm.AvgResponse > 0 && nm.AvgResponse <= responseBonusThreshold {
		bonus += uint64(float64(base) * responseBonusRate)
	}
	return bonus
}

func (m *Manager) recordTierEarnings(node types.NodeID, amount uint64) {
	tier := types.TierBasic
	if nm, ok := m.nodes.Get(node); ok {
		tier = tierFor(nm.Reliability)
	}
	m.statsMu.Lock()
	m.tierEarnings[tier] += amount
	m.statsMu.Unlock()
}

func tierFor(reliability float64) types.PerformanceTier {
	switch {
	case reliability >= 0.95:
		return types.TierPremium
	case reliability >= 0.85:
		return types.TierStandard
	default:
		return types.TierBasic
	}
}

// ProcessDue settles every active contract whose end time has passed.
func (m *Manager) ProcessDue(ctx context.Context) int {
	now := m.clk.Now()

	m.mu.RLock()
	var due []types.ContractID
	for id, c := range m.contracts {
		if c.Status == types.ContractActive && !now.Before(c.EndTime) {
			due = append(due, id)
		}
	}
	m.mu.RUnlock()

	settled := 0
	for _, id := range due {
		if _, err := m.Settle(ctx, id, false); err != nil {
			m.logger.Error("settlement failed",
				zap.String("contract_id", string(id)),
				zap.Error(err))
			continue
		}
		settled++
	}
	return settled
}

// ForceSettleAll settles every active contract immediately, with performance
// bonuses applied, and returns the total amount distributed to nodes.
func (m *Manager) ForceSettleAll(ctx context.Context) uint64 {
	m.mu.RLock()
	var active []types.ContractID
	for id, c := range m.contracts {
		if c.Status == types.ContractActive {
			active = append(active, id)
		}
	}
	m.mu.RUnlock()

	var total uint64
	for _, id := range active {
		paid, err := m.Settle(ctx, id, true)
		if err != nil {
			m.logger.Error("forced settlement failed",
				zap.String("contract_id", string(id)),
				zap.Error(err))
			continue
		}
		total += paid
	}

	m.logger.Info("forced settlement complete",
		zap.Int("contracts", len(active)),
		zap.Uint64("total_distributed", total))
	return total
}

// EarningsReport summarizes cumulative earnings per registered node, bucketed
// into performance tiers by reliability.
func (m *Manager) EarningsReport() []types.NodeEarningsReport {
	snapshot := m.nodes.Snapshot()
	reports := make([]types.NodeEarningsReport, 0, len(snapshot))
	for _, node := range snapshot {
		capacityGB := float64(node.TotalStorage) / (1024 * 1024 * 1024)
		var perGB float64
		if capacityGB > 0 {
			perGB = float64(node.TotalEarnings) / capacityGB
		}
		reports = append(reports, types.NodeEarningsReport{
			NodeID:            node.NodeID,
			TotalEarnings:     node.TotalEarnings,
			ReliabilityScore:  node.Reliability,
			AvgResponse:       node.AvgResponse,
			StorageCapacityGB: capacityGB,
			EarningsPerGB:     perGB,
			Tier:              tierFor(node.Reliability),
		})
	}
	return reports
}

// RewardsStats aggregates settlement outcomes across the network.
func (m *Manager) RewardsStats() types.RewardsDistributionStats {
	snapshot := m.nodes.Snapshot()

	m.statsMu.Lock()
	stats := types.RewardsDistributionStats{
		TotalDistributed:     m.totalDistributed,
		CompletedContracts:   m.completed,
		PremiumTierEarnings:  m.tierEarnings[types.TierPremium],
		StandardTierEarnings: m.tierEarnings[types.TierStandard],
		BasicTierEarnings:    m.tierEarnings[types.TierBasic],
	}
	m.statsMu.Unlock()

	var totalReliability float64
	for _, node := range snapshot {
		stats.ActiveProviders++
		stats.TotalCapacityGB += float64(node.TotalStorage) / (1024 * 1024 * 1024)
		totalReliability += node.Reliability
	}
	if stats.ActiveProviders > 0 {
		stats.AvgEarningsPerNode = stats.TotalDistributed / uint64(stats.ActiveProviders)
		stats.AvgReliability = totalReliability / float64(stats.ActiveProviders)
	}
	return stats
}
