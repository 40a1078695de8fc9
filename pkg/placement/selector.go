// Package placement scores registered storage nodes and picks replica sets
// for chunk placement. It also owns the node metrics registry that
// settlement adjusts after each contract completes.
package placement

import (
	"sort"
	"sync"
	"time"

	"dfs/pkg/types"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	// MinReliability is the floor below which a node is never selected.
	MinReliability = 0.8
	// HeartbeatWindow is how recent a node's heartbeat must be to qualify.
	HeartbeatWindow = 5 * time.Minute
	// ReliabilityPenaltyFactor shrinks a node's score after a failed
	// availability verification; ReliabilityFloor stops the spiral.
	ReliabilityPenaltyFactor = 0.8
	ReliabilityFloor         = 0.1
)

// Selector maintains caller-registered node metrics in insertion order and
// selects replica sets by composite score. Nodes are never discovered; the
// metrics feed is entirely caller-supplied.
type Selector struct {
	mu     sync.RWMutex
	clk    clock.Clock
	logger *zap.Logger

	nodes map[types.NodeID]*types.StorageNodeMetrics
	order []types.NodeID
}

func NewSelector(clk clock.Clock, logger *zap.Logger) *Selector {
	return &Selector{
		clk:    clk,
		logger: logger,
		nodes:  make(map[types.NodeID]*types.StorageNodeMetrics),
	}
}

// Register adds or updates a node's metrics. First registration order is
// preserved and is the tie-break order for equal selection scores.
func (s *Selector) Register(m types.StorageNodeMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[m.NodeID]; !exists {
		s.order = append(s.order, m.NodeID)
	}
	copied := m
	s.nodes[m.NodeID] = &copied

	s.logger.Debug("Registered storage node metrics",
		zap.String("node_id", string(m.NodeID)),
		zap.Float64("reliability", m.Reliability),
		zap.Uint64("available_storage", m.AvailableStorage))
}

// Score is the composite placement score:
// reliability x available-capacity-GB x (1000 / response-time-ms).
func Score(m *types.StorageNodeMetrics) float64 {
	ms := m.AvgResponse.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	availGB := float64(m.AvailableStorage) / (1024.0 * 1024.0 * 1024.0)
	return m.Reliability * availGB * (1000.0 / float64(ms))
}

// Select picks the replicationFactor best-scoring nodes that have the
// requested capacity, reliability of at least MinReliability, and a
// heartbeat inside HeartbeatWindow. The sort is stable over registration
// order, which is the only determinism guarantee for equal scores.
func (s *Selector) Select(size uint64, replicationFactor int) ([]types.NodeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.clk.Now().Add(-HeartbeatWindow)

	candidates := make([]*types.StorageNodeMetrics, 0, len(s.order))
	for _, id := range s.order {
		node := s.nodes[id]
		if node.AvailableStorage >= size &&
			node.Reliability >= MinReliability &&
			node.LastHeartbeat.After(cutoff) {
			candidates = append(candidates, node)
		}
	}

	if len(candidates) < replicationFactor {
		s.logger.Warn("Not enough qualifying storage nodes",
			zap.Int("qualified", len(candidates)),
			zap.Int("required", replicationFactor))
		return nil, types.ErrInsufficientStorage
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return Score(candidates[i]) > Score(candidates[j])
	})

	selected := make([]types.NodeID, replicationFactor)
	for i := 0; i < replicationFactor; i++ {
		selected[i] = candidates[i].NodeID
	}

	s.logger.Info("Selected storage nodes",
		zap.Int("count", len(selected)),
		zap.Uint64("size", size))
	return selected, nil
}

// Get returns a copy of a node's metrics.
func (s *Selector) Get(id types.NodeID) (types.StorageNodeMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return types.StorageNodeMetrics{}, false
	}
	return *node, true
}

// Credit adds settlement earnings to a node.
func (s *Selector) Credit(id types.NodeID, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node, ok := s.nodes[id]; ok {
		node.TotalEarnings += amount
	}
}

// Penalize reduces a node's reliability after it failed availability
// verification: reliability = max(reliability * 0.8, 0.1).
func (s *Selector) Penalize(id types.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return
	}
	penalized := node.Reliability * ReliabilityPenaltyFactor
	if penalized < ReliabilityFloor {
		penalized = ReliabilityFloor
	}
	node.Reliability = penalized

	s.logger.Info("Penalized storage node reliability",
		zap.String("node_id", string(id)),
		zap.Float64("reliability", penalized))
}

// ContractOpened / ContractClosed track a node's active contract count.
func (s *Selector) ContractOpened(id types.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node, ok := s.nodes[id]; ok {
		node.ActiveContracts++
	}
}

func (s *Selector) ContractClosed(id types.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node, ok := s.nodes[id]; ok && node.ActiveContracts > 0 {
		node.ActiveContracts--
	}
}

// Snapshot returns copies of all node metrics in registration order.
func (s *Selector) Snapshot() []types.StorageNodeMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.StorageNodeMetrics, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.nodes[id])
	}
	return out
}

// Count reports the number of registered nodes.
func (s *Selector) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
