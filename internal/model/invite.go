package model

import "time"

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// ValidRole reports whether r is one of the workspace roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

type RevokeReason string

const (
	RevokeExpired  RevokeReason = "expired"
	RevokeDeclined RevokeReason = "declined"
	RevokeCanceled RevokeReason = "canceled"
)

// InviteState is the derived lifecycle state of an invite row.
type InviteState string

const (
	StatePending  InviteState = "pending"
	StateAccepted InviteState = "accepted"
	StateDeclined InviteState = "declined"
	StateCanceled InviteState = "canceled"
	StateExpired  InviteState = "expired"
)

// Invite is a time-limited offer of workspace membership. The token is the
// primary key and acts as the bearer capability for acceptance.
//
// Active is 1 while the invite is pending and NULL once terminal; the
// unique index over (workspace_id, email, active) is what enforces the
// at-most-one-active-invite rule (NULLs never collide).
type Invite struct {
	Token         string       `gorm:"primaryKey;size:36" json:"token"`
	WorkspaceID   string       `gorm:"size:36;not null;uniqueIndex:idx_active_invite,priority:1" json:"workspace_id"`
	Email         string       `gorm:"size:255;not null;uniqueIndex:idx_active_invite,priority:2;index:idx_invite_email" json:"email"`
	Role          Role         `gorm:"size:20;not null" json:"role"`
	GroupID       *string      `gorm:"size:36" json:"group_id,omitempty"`
	InvitedBy     string       `gorm:"size:36;not null;index:idx_invited_by" json:"invited_by"`
	Active        *bool        `gorm:"uniqueIndex:idx_active_invite,priority:3" json:"-"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt     time.Time    `gorm:"not null" json:"expires_at"`
	AcceptedAt    *time.Time   `json:"accepted_at,omitempty"`
	RevokedAt     *time.Time   `json:"revoked_at,omitempty"`
	RevokedReason RevokeReason `gorm:"size:20" json:"revoked_reason,omitempty"`
}

// State derives the stored lifecycle state. At most one of AcceptedAt and
// RevokedAt is ever set; the store's guarded transitions keep it that way.
func (i *Invite) State() InviteState {
	switch {
	case i.AcceptedAt != nil:
		return StateAccepted
	case i.RevokedAt != nil:
		switch i.RevokedReason {
		case RevokeDeclined:
			return StateDeclined
		case RevokeCanceled:
			return StateCanceled
		default:
			return StateExpired
		}
	default:
		return StatePending
	}
}

// Terminal reports whether the invite has left the pending state.
func (i *Invite) Terminal() bool { return i.AcceptedAt != nil || i.RevokedAt != nil }

// Expired reports whether a pending invite's deadline has passed. Terminal
// invites are never "expired"; their state already says what happened.
func (i *Invite) Expired(now time.Time) bool {
	return !i.Terminal() && now.After(i.ExpiresAt)
}

// DisplayStatus is the state as shown to the inviter: a stale pending
// invite reads as expired even before the lazy revocation catches it.
func (i *Invite) DisplayStatus(now time.Time) InviteState {
	if i.Expired(now) {
		return StateExpired
	}
	return i.State()
}

// RespondedAt is the moment the invitee or inviter resolved the invite,
// nil while pending.
func (i *Invite) RespondedAt() *time.Time {
	if i.AcceptedAt != nil {
		return i.AcceptedAt
	}
	return i.RevokedAt
}
