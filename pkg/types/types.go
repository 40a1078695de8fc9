package types

import (
	"time"
)

type NodeID string
type ContractID string
type GroupID string

// FileRecord is the authoritative metadata for a stored file. The file hash
// is the lowercase hex SHA-256 digest of the stored bytes (post-encryption
// when the file is encrypted) and is always recomputed server-side.
type FileRecord struct {
	FileHash         string
	Filename         string
	Size             uint64
	ContentType      string
	Owner            string
	StorageContracts []ContractID
	Chunks           []ChunkDescriptor
	Replication      int
	CreatedAt        time.Time
	LastAccessed     time.Time
	AccessCount      uint64
	Tags             []string
	Encryption       EncryptionMetadata
}

// ChunkDescriptor records where one chunk of a file lives. Indices are
// contiguous from zero; StorageNodes never exceeds the replication factor.
type ChunkDescriptor struct {
	Index        int
	Hash         string
	Size         int
	StorageNodes []NodeID
	VerifiedAt   time.Time
}

// Chunk is a content-addressed slice of a file's byte stream.
type Chunk struct {
	Index int
	Hash  string
	Data  []byte
}

type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractBreached  ContractStatus = "breached"
	ContractCancelled ContractStatus = "cancelled"
)

// StorageContract holds the escrow terms binding a client to a replica set.
// Once Completed, distributed + refunded equals EscrowAmount exactly.
type StorageContract struct {
	ID                   ContractID
	FileHash             string
	StorageNodes         []NodeID
	Client               string
	EscrowAmount         uint64
	PaymentPerNode       uint64
	StartTime            time.Time
	EndTime              time.Time
	Status               ContractStatus
	RequiredAvailability float64
	LastVerified         time.Time
}

// StorageNodeMetrics is the caller-supplied view of a storage node, read by
// placement and adjusted by settlement.
type StorageNodeMetrics struct {
	NodeID            NodeID
	TotalStorage      uint64
	AvailableStorage  uint64
	Reliability       float64
	AvgResponse       time.Duration
	BandwidthCapacity uint64
	TotalEarnings     uint64
	ActiveContracts   int
	LastHeartbeat     time.Time
	Region            string
}

// AssemblyStats aggregates assembly engine throughput.
type AssemblyStats struct {
	FilesAssembled  uint64
	BytesAssembled  uint64
	AvgAssemblySecs float64
}

// Statistics is the catalog-wide snapshot returned by GetStatistics.
type Statistics struct {
	TotalFiles        int
	TotalStorageBytes uint64
	ActiveContracts   int
	StorageNodes      int
	AvgReplication    float64
	Assembly          AssemblyStats
}

// PerformanceTier buckets nodes by reliability for earnings reporting.
type PerformanceTier string

const (
	TierPremium  PerformanceTier = "premium"
	TierStandard PerformanceTier = "standard"
	TierBasic    PerformanceTier = "basic"
)

// NodeEarningsReport summarizes one node's cumulative settlement outcomes.
type NodeEarningsReport struct {
	NodeID            NodeID
	TotalEarnings     uint64
	ReliabilityScore  float64
	AvgResponse       time.Duration
	StorageCapacityGB float64
	EarningsPerGB     float64
	Tier              PerformanceTier
}

// RewardsDistributionStats aggregates settlement outcomes network-wide.
type RewardsDistributionStats struct {
	TotalDistributed     uint64
	ActiveProviders      int
	CompletedContracts   int
	TotalCapacityGB      float64
	AvgEarningsPerNode   uint64
	AvgReliability       float64
	PremiumTierEarnings  uint64
	StandardTierEarnings uint64
	BasicTierEarnings    uint64
}

// AccessLogEntry is one row of the append-only access audit trail.
type AccessLogEntry struct {
	FileHash   string
	Requester  string
	AccessTime time.Time
	Allowed    bool
	Reason     string
}
