// Package rbac implements role-based access control: role/assignment storage
// behind a Store interface, permission resolution as the union over a user's
// roles, and a TTL cache over resolved permission sets.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leadpilot/governance/internal/auth"
	"github.com/leadpilot/governance/internal/db/models"
)

// DefaultCacheTTL bounds how stale a cached permission set may get
const DefaultCacheTTL = 15 * time.Minute

var (
	// ErrRoleNotFound is returned when assigning or revoking an unknown role
	ErrRoleNotFound = errors.New("role not found")

	// ErrUserNotFound is returned for operations on unknown users
	ErrUserNotFound = errors.New("user not found")
)

// Store is the persistence interface the manager depends on
type Store interface {
	GetRole(ctx context.Context, roleID string) (*models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
	ListRoles(ctx context.Context) ([]models.Role, error)

	// AssignRole inserts an assignment; created is false when it already existed
	AssignRole(ctx context.Context, assignment *models.UserRole) (created bool, err error)
	RevokeRole(ctx context.Context, userID, roleID string) error
	UserRoles(ctx context.Context, userID string) ([]models.Role, error)

	// UserPermissions returns the distinct permission strings across all of
	// the user's roles
	UserPermissions(ctx context.Context, userID string) ([]string, error)
}

type cacheEntry struct {
	perms     map[auth.Permission]struct{}
	fetchedAt time.Time
}

// Manager resolves and caches user permissions
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewManager builds a Manager over the given store. A non-positive ttl falls
// back to DefaultCacheTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

// SeedDefaultRoles creates any missing predefined roles. Existing roles are
// left untouched, so operator customizations survive restarts.
func (m *Manager) SeedDefaultRoles(ctx context.Context) error {
	for _, role := range models.PredefinedRoles() {
		existing, err := m.store.GetRole(ctx, role.ID)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", role.ID, err)
		}
		if existing != nil {
			continue
		}
		r := role
		if err := m.store.CreateRole(ctx, &r); err != nil {
			return fmt.Errorf("seed role %s: %w", role.ID, err)
		}
		slog.Info("Seeded default role", "role_id", role.ID, "permissions", len(role.Permissions))
	}
	return nil
}

// GetUserPermissions returns the union of permissions across the user's
// roles, served from cache within the TTL. Persisted permission strings
// outside the closed enumeration are skipped.
func (m *Manager) GetUserPermissions(ctx context.Context, userID string) (map[auth.Permission]struct{}, error) {
	m.mu.Lock()
	entry, ok := m.cache[userID]
	m.mu.Unlock()
	if ok && m.now().Sub(entry.fetchedAt) < m.ttl {
		return entry.perms, nil
	}

	raw, err := m.store.UserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions for %s: %w", userID, err)
	}

	perms := make(map[auth.Permission]struct{}, len(raw))
	for _, s := range raw {
		p, err := auth.ParsePermission(s)
		if err != nil {
			slog.Warn("Skipping unknown permission in store", "user_id", userID, "permission", s)
			continue
		}
		perms[p] = struct{}{}
	}

	m.mu.Lock()
	m.cache[userID] = cacheEntry{perms: perms, fetchedAt: m.now()}
	m.mu.Unlock()

	return perms, nil
}

// HasPermission checks a single permission for a user
func (m *Manager) HasPermission(ctx context.Context, userID string, perm auth.Permission) (bool, error) {
	perms, err := m.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return auth.HasPermission(perms, perm), nil
}

// AssignRole grants a role to a user. Assigning an already-held role is a
// no-op returning the existing assignment shape. The user's cached
// permissions are invalidated either way.
func (m *Manager) AssignRole(ctx context.Context, userID, roleID, assignedBy string) (*models.UserRole, error) {
	role, err := m.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("assign role %s: %w", roleID, err)
	}
	if role == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}

	assignment := &models.UserRole{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		AssignedAt: m.now().UTC(),
	}
	created, err := m.store.AssignRole(ctx, assignment)
	if err != nil {
		return nil, fmt.Errorf("assign role %s to %s: %w", roleID, userID, err)
	}

	m.Invalidate(userID)
	if created {
		slog.Info("Role assigned", "user_id", userID, "role_id", roleID, "assigned_by", assignedBy)
	}
	return assignment, nil
}

// RevokeRole removes a role from a user. Revoking a role the user does not
// hold is a no-op.
func (m *Manager) RevokeRole(ctx context.Context, userID, roleID string) error {
	if err := m.store.RevokeRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("revoke role %s from %s: %w", roleID, userID, err)
	}
	m.Invalidate(userID)
	return nil
}

// UserRoles lists the roles currently assigned to a user
func (m *Manager) UserRoles(ctx context.Context, userID string) ([]models.Role, error) {
	return m.store.UserRoles(ctx, userID)
}

// Roles lists all defined roles
func (m *Manager) Roles(ctx context.Context) ([]models.Role, error) {
	return m.store.ListRoles(ctx)
}

// Invalidate drops the cached permission set for one user
func (m *Manager) Invalidate(userID string) {
	m.mu.Lock()
	delete(m.cache, userID)
	m.mu.Unlock()
}
