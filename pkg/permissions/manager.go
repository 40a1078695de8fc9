// Package permissions classifies a file's access model, encrypts payloads
// accordingly, and manages sharing groups, per-user keys, and the access
// audit log.
package permissions

import (
	"fmt"
	"sync"

	"dfs/pkg/types"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns permission groups, user key material, and the append-only
// access log. All mutation goes through named methods under the write lock.
type Manager struct {
	mu     sync.RWMutex
	clk    clock.Clock
	logger *zap.Logger

	groups    map[types.GroupID]*types.PermissionGroup
	userKeys  map[string]*types.UserKeyPair
	accessLog []types.AccessLogEntry
}

func NewManager(clk clock.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		clk:      clk,
		logger:   logger,
		groups:   make(map[types.GroupID]*types.PermissionGroup),
		userKeys: make(map[string]*types.UserKeyPair),
	}
}

// Encrypt prepares a payload for storage under the given permission model.
// Public payloads pass through in plaintext; every other variant gets a
// fresh symmetric key, AES-GCM encryption, and the key material persisted
// inside the variant's encrypted-key field(s). The key is currently stored
// raw rather than wrapped under a recipient public key.
func (m *Manager) Encrypt(data []byte, perms types.FilePermissions, owner string) ([]byte, types.EncryptionMetadata, error) {
	if _, ok := perms.(types.Public); ok {
		return data, types.EncryptionMetadata{
			IsEncrypted: false,
			Algorithm:   "none",
			Permissions: types.Public{},
		}, nil
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, types.EncryptionMetadata{}, err
	}
	ciphertext, nonce, err := encryptPayload(data, key)
	if err != nil {
		return nil, types.EncryptionMetadata{}, err
	}

	var stored types.FilePermissions
	switch p := perms.(type) {
	case types.Public:
		// handled above; keeps the switch exhaustive
		stored = p
	case types.OwnerOnly:
		stored = types.OwnerOnly{Owner: owner, EncryptedKey: key}
	case types.Group:
		group, err := m.Group(p.GroupID)
		if err != nil {
			return nil, types.EncryptionMetadata{}, err
		}
		members := make([]string, len(group.Members))
		copy(members, group.Members)
		stored = types.Group{GroupID: p.GroupID, EncryptedKey: key, Members: members}
	case types.Custom:
		accessList := map[string]string{owner: key}
		for user := range p.AccessList {
			accessList[user] = key
		}
		stored = types.Custom{AccessList: accessList}
	default:
		return nil, types.EncryptionMetadata{}, fmt.Errorf("%w: unknown permission variant %T", types.ErrEncryption, perms)
	}

	return ciphertext, types.EncryptionMetadata{
		IsEncrypted: true,
		Algorithm:   EncryptionAlgorithm,
		Nonce:       nonce,
		Permissions: stored,
	}, nil
}

// Decrypt reverses Encrypt given the caller's key.
func (m *Manager) Decrypt(data []byte, meta types.EncryptionMetadata, keyB64 string) ([]byte, error) {
	if !meta.IsEncrypted {
		return data, nil
	}
	if meta.Nonce == "" {
		return nil, fmt.Errorf("%w: missing nonce", types.ErrEncryption)
	}
	return decryptPayload(data, keyB64, meta.Nonce)
}

// CheckAccess decides whether requester may read the file under its base
// permission variant, and records the decision in the audit log. Temporary
// grants are layered on top by the caller.
func (m *Manager) CheckAccess(file *types.FileRecord, requester string) error {
	allowed, reason := m.evaluate(file, requester)
	m.logDecision(file.FileHash, requester, allowed, reason)

	if !allowed {
		return fmt.Errorf("%w: %s", types.ErrAccessDenied, reason)
	}
	return nil
}

func (m *Manager) evaluate(file *types.FileRecord, requester string) (bool, string) {
	if requester == file.Owner {
		return true, "owner"
	}

	switch p := file.Encryption.Permissions.(type) {
	case types.Public:
		return true, "public file"
	case types.OwnerOnly:
		return false, "file is owner-only"
	case types.Group:
		if m.isGroupMember(p, requester) {
			return true, "group member"
		}
		return false, "not a member of the required group"
	case types.Custom:
		if _, ok := p.AccessList[requester]; ok {
			return true, "on custom access list"
		}
		return false, "not on the custom access list"
	default:
		return false, fmt.Sprintf("unknown permission variant %T", p)
	}
}

// isGroupMember consults the live group registry first so membership
// revocation takes effect immediately, falling back to the member snapshot
// taken at store time if the group has since been deleted.
func (m *Manager) isGroupMember(p types.Group, requester string) bool {
	m.mu.RLock()
	group, exists := m.groups[p.GroupID]
	m.mu.RUnlock()

	if exists {
		return contains(group.Members, requester)
	}
	return contains(p.Members, requester)
}

// DecryptionKey returns the stored key for a requester that has already
// passed an access check.
func (m *Manager) DecryptionKey(meta types.EncryptionMetadata, requester string) (string, error) {
	switch p := meta.Permissions.(type) {
	case types.Public:
		return "", fmt.Errorf("%w: public files carry no key", types.ErrKey)
	case types.OwnerOnly:
		return p.EncryptedKey, nil
	case types.Group:
		return p.EncryptedKey, nil
	case types.Custom:
		key, ok := p.AccessList[requester]
		if !ok {
			return "", fmt.Errorf("%w: no key stored for user %s", types.ErrKey, requester)
		}
		return key, nil
	default:
		return "", fmt.Errorf("%w: unknown permission variant %T", types.ErrKey, p)
	}
}

// CreateGroup registers a new sharing group. The owner is always a member.
func (m *Manager) CreateGroup(name, description, owner string, initialMembers []string, level types.GroupLevel) (*types.PermissionGroup, error) {
	groupKey, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(initialMembers)+1)
	members = append(members, initialMembers...)
	if !contains(members, owner) {
		members = append(members, owner)
	}

	now := m.clk.Now()
	group := &types.PermissionGroup{
		GroupID:      types.GroupID(uuid.NewString()),
		Name:         name,
		Description:  description,
		Owner:        owner,
		Members:      members,
		GroupKey:     groupKey,
		Level:        level,
		CreatedAt:    now,
		LastModified: now,
	}

	m.mu.Lock()
	m.groups[group.GroupID] = group
	m.mu.Unlock()

	m.logger.Info("Created permission group",
		zap.String("group_id", string(group.GroupID)),
		zap.String("owner", owner),
		zap.Int("members", len(members)))
	return group, nil
}

// AddMember adds a user to a group. Owner-only.
func (m *Manager) AddMember(groupID types.GroupID, caller, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrGroupNotFound, groupID)
	}
	if group.Owner != caller {
		return fmt.Errorf("%w: only the group owner may add members", types.ErrAccessDenied)
	}
	if contains(group.Members, member) {
		return nil
	}

	group.Members = append(group.Members, member)
	group.LastModified = m.clk.Now()
	return nil
}

// RemoveMember removes a user from a group. Owner-only; the owner cannot
// remove themselves.
func (m *Manager) RemoveMember(groupID types.GroupID, caller, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrGroupNotFound, groupID)
	}
	if group.Owner != caller {
		return fmt.Errorf("%w: only the group owner may remove members", types.ErrAccessDenied)
	}
	if member == group.Owner {
		return fmt.Errorf("%w: the group owner cannot be removed", types.ErrAccessDenied)
	}

	for i, existing := range group.Members {
		if existing == member {
			group.Members = append(group.Members[:i], group.Members[i+1:]...)
			group.LastModified = m.clk.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not a member of %s", types.ErrUserNotFound, member, groupID)
}

// Group returns a copy of the group's current state.
func (m *Manager) Group(groupID types.GroupID) (types.PermissionGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group, ok := m.groups[groupID]
	if !ok {
		return types.PermissionGroup{}, fmt.Errorf("%w: %s", types.ErrGroupNotFound, groupID)
	}
	copied := *group
	copied.Members = append([]string(nil), group.Members...)
	return copied, nil
}

// RegisterUserKeys stores a user's key pair. Scaffolding for wrapping file
// keys under real public keys; the encryption path does not consume it yet.
func (m *Manager) RegisterUserKeys(pair types.UserKeyPair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := pair
	m.userKeys[pair.UserID] = &copied
}

// UserKeys returns a user's registered key pair.
func (m *Manager) UserKeys(userID string) (types.UserKeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pair, ok := m.userKeys[userID]
	if !ok {
		return types.UserKeyPair{}, fmt.Errorf("%w: %s", types.ErrUserNotFound, userID)
	}
	return *pair, nil
}

// LogDecision appends an externally made access decision (for example a
// temporary-grant admission) to the audit log.
func (m *Manager) LogDecision(fileHash, requester string, allowed bool, reason string) {
	m.logDecision(fileHash, requester, allowed, reason)
}

func (m *Manager) logDecision(fileHash, requester string, allowed bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accessLog = append(m.accessLog, types.AccessLogEntry{
		FileHash:   fileHash,
		Requester:  requester,
		AccessTime: m.clk.Now(),
		Allowed:    allowed,
		Reason:     reason,
	})
}

// AccessLog returns a copy of the audit trail.
func (m *Manager) AccessLog() []types.AccessLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.AccessLogEntry(nil), m.accessLog...)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
