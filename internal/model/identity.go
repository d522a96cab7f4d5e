package model

import "time"

// IdentityLink asserts that a primary-directory user and an external-realm
// user are the same person. It is the only place that assertion lives; each
// side independently holds its own user record.
type IdentityLink struct {
	UserID      string    `gorm:"primaryKey;size:64" json:"user_id"`
	RealmUserID string    `gorm:"size:64;uniqueIndex:idx_realm_user_id" json:"realm_user_id"`
	Email       string    `gorm:"size:255;index:idx_link_email" json:"email"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoleSnapshot is the per-user input to role synchronization. Computed on
// demand from memberships and the super-admin registry, never cached.
type RoleSnapshot struct {
	IsSuperAdmin   bool
	WorkspaceRoles []Role
}

// Caller is the authenticated user behind a request.
type Caller struct {
	ID          string
	Email       string
	DisplayName string
}
