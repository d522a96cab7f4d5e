package model

import "time"

type Workspace struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// WorkspaceGroup is a sub-grouping invites may target; validated against
// the workspace at invite creation.
type WorkspaceGroup struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string `gorm:"size:36;not null;index:idx_group_workspace" json:"workspace_id"`
	Name        string `gorm:"size:128;not null" json:"name"`
}

type Membership struct {
	WorkspaceID string    `gorm:"primaryKey;size:36" json:"workspace_id"`
	UserID      string    `gorm:"primaryKey;size:64" json:"user_id"`
	Role        Role      `gorm:"size:20;not null" json:"role"`
	GroupID     *string   `gorm:"size:36" json:"group_id,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SuperAdmin is a row in the super-admin registry.
type SuperAdmin struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
