// rbac_repository.go implements RBACRepository: roles, role permissions,
// user-role assignments, and user accounts. Satisfies rbac.Store.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leadpilot/governance/internal/auth"
	"github.com/leadpilot/governance/internal/db/models"
	"github.com/leadpilot/governance/internal/rbac"
)

// RBACRepository handles database operations for RBAC features
type RBACRepository struct {
	db *sqlx.DB
}

// NewRBACRepository creates a new RBAC repository
func NewRBACRepository(db *sqlx.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

// ============================================================================
// Roles
// ============================================================================

// GetRole retrieves a role with its permissions; nil when absent
func (r *RBACRepository) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	query := `SELECT role_id, name, description, is_system, created_at, updated_at
			  FROM roles WHERE role_id = $1`

	var role models.Role
	err := r.db.QueryRowxContext(ctx, query, roleID).Scan(
		&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	perms, err := r.rolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

// ListRoles returns all roles with their permissions
func (r *RBACRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	query := `SELECT role_id, name, description, is_system, created_at, updated_at
			  FROM roles ORDER BY role_id`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		perms, err := r.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

// CreateRole inserts a role and its permission set in one transaction
func (r *RBACRepository) CreateRole(ctx context.Context, role *models.Role) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := `INSERT INTO roles (role_id, name, description, is_system, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $5)`
	if _, err := tx.ExecContext(ctx, query, role.ID, role.Name, role.Description, role.IsSystem, now); err != nil {
		return fmt.Errorf("insert role %s: %w", role.ID, err)
	}

	for _, perm := range role.Permissions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission) VALUES ($1, $2)`,
			role.ID, string(perm)); err != nil {
			return fmt.Errorf("insert permission %s for role %s: %w", perm, role.ID, err)
		}
	}

	return tx.Commit()
}

func (r *RBACRepository) rolePermissions(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT permission FROM role_permissions WHERE role_id = $1 ORDER BY permission`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, auth.Permission(p))
	}
	return perms, rows.Err()
}

// ============================================================================
// Assignments
// ============================================================================

// AssignRole inserts a user-role assignment; created is false when the user
// already held the role
func (r *RBACRepository) AssignRole(ctx context.Context, assignment *models.UserRole) (bool, error) {
	query := `INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (user_id, role_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		assignment.UserID, assignment.RoleID, assignment.AssignedBy, assignment.AssignedAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RevokeRole deletes a user-role assignment; absent assignments are a no-op
func (r *RBACRepository) RevokeRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// UserRoles returns the roles currently assigned to a user
func (r *RBACRepository) UserRoles(ctx context.Context, userID string) ([]models.Role, error) {
	query := `SELECT r.role_id, r.name, r.description, r.is_system, r.created_at, r.updated_at
			  FROM roles r
			  JOIN user_roles ur ON ur.role_id = r.role_id
			  WHERE ur.user_id = $1
			  ORDER BY r.role_id`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UserPermissions returns the distinct permissions across all of a user's roles
func (r *RBACRepository) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT DISTINCT rp.permission
			  FROM user_roles ur
			  JOIN role_permissions rp ON rp.role_id = ur.role_id
			  WHERE ur.user_id = $1
			  ORDER BY rp.permission`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ============================================================================
// Users
// ============================================================================

// GetUser retrieves a user by id; nil when absent
func (r *RBACRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT user_id, username, email, full_name, department, manager_id, is_active, created_at, last_login
			  FROM users WHERE user_id = $1`

	var u models.User
	err := r.db.QueryRowxContext(ctx, query, userID).Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.Department, &u.ManagerID, &u.IsActive, &u.CreatedAt, &u.LastLogin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user account
func (r *RBACRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (user_id, username, email, full_name, department, manager_id, is_active, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.FullName, user.Department, user.ManagerID, user.IsActive, user.CreatedAt)
	return err
}

// DeactivateUser flips is_active off. Users are never hard-deleted so the
// audit trail keeps resolving their ids.
func (r *RBACRepository) DeactivateUser(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", rbac.ErrUserNotFound, userID)
	}
	return nil
}
