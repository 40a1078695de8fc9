// Package catalog is the top-level facade of the storage network. It wires
// the chunk codec, node placement, escrowed contracts, the assembly engine,
// and the permission layers into a single file store/retrieve API.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dfs/pkg/access"
	"dfs/pkg/assembly"
	"dfs/pkg/config"
	"dfs/pkg/contracts"
	"dfs/pkg/ledger"
	"dfs/pkg/metrics"
	"dfs/pkg/permissions"
	"dfs/pkg/placement"
	"dfs/pkg/storage"
	"dfs/pkg/types"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	gib           = 1024 * 1024 * 1024
	hoursPerMonth = 720
)

// Catalog owns the file metadata index and coordinates every subsystem
// involved in storing and retrieving files.
type Catalog struct {
	cfg       *config.Config
	ledger    ledger.Ledger
	escrow    *ledger.Escrow
	nodes     *placement.Selector
	backend   storage.Backend
	codec     *storage.Codec
	perms     *permissions.Manager
	grants    *access.Controller
	contracts *contracts.Manager
	engine    *assembly.Engine
	clk       clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu    sync.RWMutex
	files map[string]*types.FileRecord

	sweepOnce    sync.Once
	sweepRunning bool
	stopSweep    chan struct{}
	sweepDone    chan struct{}
}

// New assembles a catalog over the given ledger and chunk backend. The
// metrics handle may be nil.
func New(cfg *config.Config, l ledger.Ledger, backend storage.Backend, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Catalog{
		cfg:       cfg,
		ledger:    l,
		backend:   backend,
		clk:       clk,
		logger:    logger.Named("catalog"),
		metrics:   m,
		files:     make(map[string]*types.FileRecord),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	c.escrow = ledger.NewEscrow(l)
	c.nodes = placement.NewSelector(clk, logger)
	c.codec = storage.NewCodec(cfg.ChunkSize)
	c.perms = permissions.NewManager(clk, logger)
	c.grants = access.NewController(clk, logger)
	c.contracts = contracts.NewManager(c.escrow, c.nodes, backend, c.lookupFile, clk, logger, m)
	c.engine = assembly.NewEngine(backend, c.codec, cfg.AssemblyWorkers, logger, m)
	return c, nil
}

func (c *Catalog) lookupFile(fileHash string) (*types.FileRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	file, ok := c.files[fileHash]
	return file, ok
}

// StoreRequest carries everything needed to store one file.
type StoreRequest struct {
	Owner       string
	Filename    string
	ContentType string
	Data        []byte
	Permissions types.FilePermissions
	Duration    time.Duration
	Tags        []string
}

// Store encrypts the payload per its permission variant, charges the owner
// the full storage cost into escrow, places chunk replicas on the
// highest-scoring nodes, and records the file. The returned hash addresses
// the stored (post-encryption) bytes. Nothing is charged or placed when any
// step fails.
func (c *Catalog) Store(ctx context.Context, req StoreRequest) (*types.FileRecord, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", types.ErrFileNotFound)
	}
	if req.Permissions == nil {
		req.Permissions = types.OwnerOnly{Owner: req.Owner}
	}

	hours := req.Duration.Hours()
	if hours < float64(c.cfg.MinStorageDurationHrs) || hours > float64(c.cfg.MaxStorageDurationHrs) {
		return nil, fmt.Errorf("%w: storage duration %.0fh outside [%d, %d] hours",
			types.ErrContract, hours, c.cfg.MinStorageDurationHrs, c.cfg.MaxStorageDurationHrs)
	}

	stored, meta, err := c.perms.Encrypt(req.Data, req.Permissions, req.Owner)
	if err != nil {
		return nil, err
	}

	fileHash := storage.HashBytes(stored)
	if existing, ok := c.lookupFile(fileHash); ok {
		// Content-addressed: identical stored bytes are the same file.
		out := *existing
		return &out, nil
	}

	size := uint64(len(stored))
	cost := c.storageCost(size, hours)

	selected, err := c.nodes.Select(size, c.cfg.DefaultReplication)
	if err != nil {
		c.metrics.IncPlacementFailures()
		return nil, err
	}

	contract, err := c.contracts.Create(req.Owner, fileHash, selected, cost, req.Duration)
	if err != nil {
		return nil, err
	}

	chunks := c.codec.Split(stored)
	descriptors := make([]types.ChunkDescriptor, len(chunks))
	for i, chunk := range chunks {
		var placed []types.NodeID
		for _, node := range selected {
			if err := c.backend.Put(ctx, node, chunk.Hash, chunk.Data); err != nil {
				c.logger.Warn("chunk placement failed",
					zap.String("file_hash", fileHash),
					zap.Int("chunk", chunk.Index),
					zap.String("node_id", string(node)),
					zap.Error(err))
				continue
			}
			placed = append(placed, node)
		}
		if len(placed) == 0 {
			if cancelErr := c.contracts.Cancel(contract.ID); cancelErr != nil {
				c.logger.Error("contract cancel failed", zap.Error(cancelErr))
			}
			c.metrics.IncPlacementFailures()
			return nil, fmt.Errorf("%w: no node accepted chunk %d", types.ErrNetwork, chunk.Index)
		}
		descriptors[i] = types.ChunkDescriptor{
			Index:        chunk.Index,
			Hash:         chunk.Hash,
			Size:         len(chunk.Data),
			StorageNodes: placed,
		}
	}

	now := c.clk.Now()
	record := &types.FileRecord{
		FileHash:         fileHash,
		Filename:         req.Filename,
		Size:             size,
		ContentType:      req.ContentType,
		Owner:            req.Owner,
		StorageContracts: []types.ContractID{contract.ID},
		Chunks:           descriptors,
		Replication:      c.cfg.DefaultReplication,
		CreatedAt:        now,
		LastAccessed:     now,
		Tags:             append([]string(nil), req.Tags...),
		Encryption:       meta,
	}

	c.mu.Lock()
	c.files[fileHash] = record
	c.mu.Unlock()

	c.metrics.IncFilesStored()
	c.logger.Info("file stored",
		zap.String("file_hash", fileHash),
		zap.String("owner", req.Owner),
		zap.Uint64("size", size),
		zap.Int("chunks", len(descriptors)),
		zap.Uint64("cost", cost))

	out := *record
	return &out, nil
}

// StoreWithPermissions stores with an explicit permission variant,
// overriding whatever the request carries.
func (c *Catalog) StoreWithPermissions(ctx context.Context, req StoreRequest, perms types.FilePermissions) (*types.FileRecord, error) {
	req.Permissions = perms
	return c.Store(ctx, req)
}

// storageCost prices size bytes for the given duration across the configured
// replica count, with a floor of one unit per replica so every node earns
// something even for tiny files.
func (c *Catalog) storageCost(size uint64, hours float64) uint64 {
	sizeGB := float64(size) / gib
	cost := uint64(sizeGB * float64(c.cfg.StoragePricePerGBMonth) * (hours / hoursPerMonth) * float64(c.cfg.DefaultReplication))
	if floor := uint64(c.cfg.DefaultReplication); cost < floor {
		cost = floor
	}
	return cost
}

// Retrieve assembles and decrypts a file for the requester. Requesters
// without access learn nothing: permission denials surface as not-found.
// Each retrieval charges the requester the bandwidth fee.
func (c *Catalog) Retrieve(ctx context.Context, fileHash, requester string) ([]byte, error) {
	record, ok := c.lookupFile(fileHash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrFileNotFound, fileHash)
	}

	c.mu.RLock()
	file := *record
	c.mu.RUnlock()

	keyB64, err := c.authorize(&file, requester)
	if err != nil {
		c.metrics.IncPermissionDenials()
		// Mask the denial so unauthorized callers cannot probe for hashes.
		return nil, fmt.Errorf("%w: %s", types.ErrFileNotFound, fileHash)
	}

	if fee := c.bandwidthFee(file.Size); fee > 0 {
		if err := c.ledger.Transfer(requester, c.cfg.TreasuryAccount, fee); err != nil {
			return nil, err
		}
	}

	stored, err := c.engine.Assemble(ctx, &file)
	if err != nil {
		return nil, err
	}

	data, err := c.perms.Decrypt(stored, file.Encryption, keyB64)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	record.LastAccessed = c.clk.Now()
	record.AccessCount++
	c.mu.Unlock()

	c.metrics.IncFilesRetrieved()
	return data, nil
}

// authorize decides how the requester gets in and returns the decryption key
// to use. Owners and base-permission holders never consume a temporary
// grant; a grant is spent only when it is the admitting mechanism.
func (c *Catalog) authorize(file *types.FileRecord, requester string) (string, error) {
	admit := func() (string, error) {
		if !file.Encryption.IsEncrypted {
			return "", nil
		}
		return c.perms.DecryptionKey(file.Encryption, requester)
	}

	if requester == file.Owner {
		if !file.Encryption.IsEncrypted {
			return "", nil
		}
		// The owner always holds the key regardless of variant.
		switch p := file.Encryption.Permissions.(type) {
		case types.OwnerOnly:
			return p.EncryptedKey, nil
		case types.Group:
			return p.EncryptedKey, nil
		case types.Custom:
			return p.AccessList[requester], nil
		default:
			return "", nil
		}
	}

	if err := c.perms.CheckAccess(file, requester); err == nil {
		return admit()
	}

	grant, err := c.grants.CheckAndConsume(file.FileHash, requester)
	if err != nil {
		return "", fmt.Errorf("%w: %s", types.ErrAccessDenied, requester)
	}
	c.perms.LogDecision(file.FileHash, requester, true, "temporary access grant")
	if !file.Encryption.IsEncrypted {
		return "", nil
	}
	return grant.EncryptedKey, nil
}

func (c *Catalog) bandwidthFee(size uint64) uint64 {
	return uint64(float64(size) / gib * float64(c.cfg.BandwidthPricePerGB))
}

// GrantTemporaryAccess lets a file's owner hand out a time- and usage-bounded
// grant. The grantee receives the file's current decryption key alongside the
// grant; zero maxUsage means unlimited uses within the window.
func (c *Catalog) GrantTemporaryAccess(fileHash, grantee string, kind types.AccessKind, ttl time.Duration, issuer string, maxUsage uint64) error {
	record, ok := c.lookupFile(fileHash)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrFileNotFound, fileHash)
	}

	c.mu.RLock()
	file := *record
	c.mu.RUnlock()

	var key string
	if file.Encryption.IsEncrypted {
		var err error
		key, err = c.perms.DecryptionKey(file.Encryption, issuer)
		if err != nil {
			return err
		}
	}

	if err := c.grants.Grant(&file, grantee, kind, ttl, issuer, maxUsage, key); err != nil {
		return err
	}
	c.metrics.IncGrantsIssued()
	return nil
}

// RevokeTemporaryAccess removes a grant; only the file's owner may revoke.
func (c *Catalog) RevokeTemporaryAccess(fileHash, grantee, issuer string) error {
	record, ok := c.lookupFile(fileHash)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrFileNotFound, fileHash)
	}
	c.mu.RLock()
	file := *record
	c.mu.RUnlock()
	return c.grants.Revoke(&file, grantee, issuer)
}

// ListTemporaryAccess returns the live grants for a file.
func (c *Catalog) ListTemporaryAccess(fileHash string) []types.TemporaryAccess {
	return c.grants.List(fileHash)
}

// CleanupExpiredAccess sweeps expired grants and reports how many were
// removed.
func (c *Catalog) CleanupExpiredAccess() int {
	removed := c.grants.CleanupExpired()
	if removed > 0 {
		c.metrics.AddGrantsSwept(removed)
	}
	return removed
}

// ProcessStorageContracts settles every contract whose term has ended.
func (c *Catalog) ProcessStorageContracts(ctx context.Context) int {
	return c.contracts.ProcessDue(ctx)
}

// ForceCompleteStorageContracts settles all active contracts immediately with
// performance bonuses and returns the total distributed to storage nodes.
func (c *Catalog) ForceCompleteStorageContracts(ctx context.Context) uint64 {
	return c.contracts.ForceSettleAll(ctx)
}

// AddStorageNodeMetrics registers or refreshes a storage node's advertised
// capacity and performance figures.
func (c *Catalog) AddStorageNodeMetrics(m types.StorageNodeMetrics) {
	c.nodes.Register(m)
}

// GetFile returns a copy of the file record, if known.
func (c *Catalog) GetFile(fileHash string) (types.FileRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.files[fileHash]
	if !ok {
		return types.FileRecord{}, false
	}
	return *record, true
}

// GetContract returns a copy of a storage contract, if known.
func (c *Catalog) GetContract(id types.ContractID) (types.StorageContract, bool) {
	return c.contracts.Get(id)
}

// GetStatistics snapshots catalog-wide counters.
func (c *Catalog) GetStatistics() types.Statistics {
	c.mu.RLock()
	stats := types.Statistics{TotalFiles: len(c.files)}
	var replicaSum float64
	for _, file := range c.files {
		stats.TotalStorageBytes += file.Size
		replicaSum += float64(file.Replication)
	}
	c.mu.RUnlock()

	if stats.TotalFiles > 0 {
		stats.AvgReplication = replicaSum / float64(stats.TotalFiles)
	}
	stats.ActiveContracts = c.contracts.ActiveCount()
	stats.StorageNodes = c.nodes.Count()
	stats.Assembly = c.engine.Stats()
	return stats
}

// GetNodeEarningsReport summarizes per-node earnings and performance tiers.
func (c *Catalog) GetNodeEarningsReport() []types.NodeEarningsReport {
	return c.contracts.EarningsReport()
}

// GetRewardsDistributionStats aggregates settlement outcomes network-wide.
func (c *Catalog) GetRewardsDistributionStats() types.RewardsDistributionStats {
	return c.contracts.RewardsStats()
}

// CreatePermissionGroup registers a sharing group owned by the caller.
func (c *Catalog) CreatePermissionGroup(name, description, owner string, members []string, level types.GroupLevel) (*types.PermissionGroup, error) {
	return c.perms.CreateGroup(name, description, owner, members, level)
}

// AddGroupMember adds a member to a group; only the group owner may.
func (c *Catalog) AddGroupMember(groupID types.GroupID, caller, member string) error {
	return c.perms.AddMember(groupID, caller, member)
}

// RemoveGroupMember removes a member from a group; only the group owner may,
// and revocation takes effect on the next access check.
func (c *Catalog) RemoveGroupMember(groupID types.GroupID, caller, member string) error {
	return c.perms.RemoveMember(groupID, caller, member)
}

// RegisterUserKeys stores a user's public key material.
func (c *Catalog) RegisterUserKeys(pair types.UserKeyPair) {
	c.perms.RegisterUserKeys(pair)
}

// GetAccessLog returns the access audit trail, oldest first.
func (c *Catalog) GetAccessLog() []types.AccessLogEntry {
	return c.perms.AccessLog()
}

// Start launches the background sweep loop that expires grants and settles
// due contracts on the configured interval. Safe to call once.
func (c *Catalog) Start(ctx context.Context) {
	c.sweepOnce.Do(func() {
		c.sweepRunning = true
		go c.sweepLoop(ctx)
	})
}

// Stop shuts down the sweep loop and waits for it to exit.
func (c *Catalog) Stop() {
	if !c.sweepRunning {
		return
	}
	select {
	case <-c.stopSweep:
	default:
		close(c.stopSweep)
	}
	<-c.sweepDone
}

func (c *Catalog) sweepLoop(ctx context.Context) {
	defer close(c.sweepDone)

	interval := time.Duration(c.cfg.SweepIntervalSecs) * time.Second
	ticker := c.clk.Ticker(interval)
	defer ticker.Stop()

	c.logger.Info("sweep loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ticker.C:
			if removed := c.CleanupExpiredAccess(); removed > 0 {
				c.logger.Info("expired grants removed", zap.Int("count", removed))
			}
			if settled := c.ProcessStorageContracts(ctx); settled > 0 {
				c.logger.Info("contracts settled", zap.Int("count", settled))
			}
		case <-c.stopSweep:
			c.logger.Info("sweep loop stopped")
			return
		case <-ctx.Done():
			c.logger.Info("sweep loop stopped", zap.Error(ctx.Err()))
			return
		}
	}
}
