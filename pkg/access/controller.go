// Package access issues and enforces short-lived, usage-capped access
// grants layered on top of a file's base permissions.
package access

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"dfs/pkg/types"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

var (
	// ErrNoGrant means no grant exists for the file/grantee pair.
	ErrNoGrant = errors.New("no access grant")
	// ErrGrantExpired means the grant's TTL has elapsed.
	ErrGrantExpired = errors.New("access grant expired")
	// ErrUsageExceeded means the grant's usage cap has been reached.
	ErrUsageExceeded = errors.New("access grant usage exceeded")
)

// Controller owns all temporary access grants, keyed by file hash then
// grantee. The clock is injected so expiry is testable without sleeps.
type Controller struct {
	mu     sync.RWMutex
	clk    clock.Clock
	logger *zap.Logger

	grants map[string]map[string]*types.TemporaryAccess
}

func NewController(clk clock.Clock, logger *zap.Logger) *Controller {
	return &Controller{
		clk:    clk,
		logger: logger,
		grants: make(map[string]map[string]*types.TemporaryAccess),
	}
}

// Grant issues a grant for file to grantee. Only the file owner may issue;
// every kind, Emergency included, requires an explicit issuing owner.
// encryptedKey is the base decryption key the grantee will use. maxUsage
// zero means unlimited.
func (c *Controller) Grant(file *types.FileRecord, grantee string, kind types.AccessKind, ttl time.Duration, issuer string, maxUsage uint64, encryptedKey string) error {
	if issuer != file.Owner {
		return fmt.Errorf("%w: only the file owner may grant access", types.ErrAccessDenied)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: grant TTL must be positive", types.ErrContract)
	}

	now := c.clk.Now()
	grant := &types.TemporaryAccess{
		FileHash:     file.FileHash,
		UserID:       grantee,
		EncryptedKey: encryptedKey,
		Kind:         kind,
		GrantedBy:    issuer,
		GrantedAt:    now,
		ExpiresAt:    now.Add(ttl),
		MaxUsage:     maxUsage,
	}

	c.mu.Lock()
	if c.grants[file.FileHash] == nil {
		c.grants[file.FileHash] = make(map[string]*types.TemporaryAccess)
	}
	c.grants[file.FileHash][grantee] = grant
	c.mu.Unlock()

	c.logger.Info("Granted temporary access",
		zap.String("file_hash", file.FileHash),
		zap.String("grantee", grantee),
		zap.String("kind", string(kind)),
		zap.Duration("ttl", ttl),
		zap.Uint64("max_usage", maxUsage))
	return nil
}

// CheckAndConsume validates the grant for one read and, when valid,
// increments its usage count. Usage increments are serialized under the
// controller's write lock, which is the per-grant monotonicity guarantee.
func (c *Controller) CheckAndConsume(fileHash, grantee string) (types.TemporaryAccess, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	grant, ok := c.grants[fileHash][grantee]
	if !ok {
		return types.TemporaryAccess{}, ErrNoGrant
	}
	if c.clk.Now().After(grant.ExpiresAt) {
		return types.TemporaryAccess{}, ErrGrantExpired
	}
	if grant.MaxUsage > 0 && grant.UsageCount >= grant.MaxUsage {
		return types.TemporaryAccess{}, ErrUsageExceeded
	}

	grant.UsageCount++
	return *grant, nil
}

// Revoke removes a grant immediately regardless of remaining TTL or
// usage. Owner-only.
func (c *Controller) Revoke(file *types.FileRecord, grantee, issuer string) error {
	if issuer != file.Owner {
		return fmt.Errorf("%w: only the file owner may revoke access", types.ErrAccessDenied)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.grants[file.FileHash][grantee]; !ok {
		return ErrNoGrant
	}
	delete(c.grants[file.FileHash], grantee)

	c.logger.Info("Revoked temporary access",
		zap.String("file_hash", file.FileHash),
		zap.String("grantee", grantee))
	return nil
}

// List returns copies of all grants for a file.
func (c *Controller) List(fileHash string) []types.TemporaryAccess {
	c.mu.RLock()
	defer c.mu.RUnlock()

	grants := make([]types.TemporaryAccess, 0, len(c.grants[fileHash]))
	for _, grant := range c.grants[fileHash] {
		grants = append(grants, *grant)
	}
	return grants
}

// CleanupExpired removes every grant past its expiry and reports how many
// were removed. Intended to run from the periodic sweep, not per request.
func (c *Controller) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	removed := 0
	for fileHash, byGrantee := range c.grants {
		for grantee, grant := range byGrantee {
			if now.After(grant.ExpiresAt) {
				delete(byGrantee, grantee)
				removed++
			}
		}
		if len(byGrantee) == 0 {
			delete(c.grants, fileHash)
		}
	}

	if removed > 0 {
		c.logger.Info("Swept expired access grants", zap.Int("removed", removed))
	}
	return removed
}
