package types

import "time"

// FilePermissions is a closed set of access models for a stored file.
// Exactly one variant is active per file; consumers must switch over all
// variants so a new one is a compile-time review point.
type FilePermissions interface {
	isFilePermissions()
}

// Public files are stored in plaintext and readable by anyone.
type Public struct{}

// OwnerOnly files are encrypted and readable only by the exact owner.
type OwnerOnly struct {
	Owner        string
	EncryptedKey string
}

// Group files are readable by the owner and current members of a
// permission group.
type Group struct {
	GroupID      GroupID
	EncryptedKey string
	Members      []string
}

// Custom files carry an explicit per-user access list mapping each user to
// their copy of the encrypted file key.
type Custom struct {
	AccessList map[string]string
}

func (Public) isFilePermissions()    {}
func (OwnerOnly) isFilePermissions() {}
func (Group) isFilePermissions()     {}
func (Custom) isFilePermissions()    {}

// EncryptionMetadata records how a file's payload was protected. The
// encrypted-key fields inside the permission variant currently hold the raw
// symmetric key; wrapping it under a recipient public key is a known
// refinement that is deliberately not done here.
type EncryptionMetadata struct {
	IsEncrypted bool
	Algorithm   string
	Nonce       string
	Permissions FilePermissions
}

type GroupLevel string

const (
	GroupRead      GroupLevel = "read"
	GroupReadWrite GroupLevel = "read-write"
	GroupAdmin     GroupLevel = "admin"
)

// PermissionGroup is a named sharing group. Only the owner may mutate
// membership.
type PermissionGroup struct {
	GroupID      GroupID
	Name         string
	Description  string
	Owner        string
	Members      []string
	GroupKey     string
	Level        GroupLevel
	CreatedAt    time.Time
	LastModified time.Time
}

// UserKeyPair is per-user key material. Scaffolding for real key wrapping;
// the encryption path does not consume it yet.
type UserKeyPair struct {
	UserID     string
	PublicKey  string
	PrivateKey string
	CreatedAt  time.Time
}

// AccessKind labels a temporary grant. The controller enforces only TTL and
// usage count; kinds differ in the default policy callers apply.
type AccessKind string

const (
	AccessReadOnly     AccessKind = "read-only"
	AccessReadWrite    AccessKind = "read-write"
	AccessTrial        AccessKind = "trial"
	AccessSubscription AccessKind = "subscription"
	AccessEmergency    AccessKind = "emergency"
)

// TemporaryAccess is a time- and usage-bounded grant layered on top of a
// file's base permissions. A grant past ExpiresAt, or at MaxUsage when set,
// is void even before the sweep removes it.
type TemporaryAccess struct {
	FileHash     string
	UserID       string
	EncryptedKey string
	Kind         AccessKind
	GrantedBy    string
	GrantedAt    time.Time
	ExpiresAt    time.Time
	MaxUsage     uint64 // zero means unlimited
	UsageCount   uint64
}
