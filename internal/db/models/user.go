// Package models - user.go defines the User model for platform accounts with
// department and reporting-line fields used by ownership-scoped policies.
package models

import "time"

// User represents a user in the system
type User struct {
	ID         string     `db:"user_id" json:"user_id"`
	Username   string     `db:"username" json:"username"`
	Email      string     `db:"email" json:"email"`
	FullName   string     `db:"full_name" json:"full_name"`
	Department *string    `db:"department" json:"department,omitempty"`
	ManagerID  *string    `db:"manager_id" json:"manager_id,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastLogin  *time.Time `db:"last_login" json:"last_login,omitempty"`
}
