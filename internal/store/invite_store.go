package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/planboard/internal/model"
)

type inviteStore struct {
	db *gorm.DB
}

// Create inserts a new pending invite, generating the token when absent.
// A duplicate active invite for the same (workspace, email) comes back as
// ErrDuplicate so the caller can re-query the row that won.
func (s *inviteStore) Create(inv *model.Invite) error {
	if inv == nil {
		return errors.New("nil invite")
	}
	if inv.Token == "" {
		inv.Token = uuid.New().String()
	}
	active := true
	inv.Active = &active
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Create(inv).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *inviteStore) GetByToken(token string) (*model.Invite, error) {
	var inv model.Invite
	if err := s.db.First(&inv, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// FindActive returns the pending invite for (workspace, email), expired or
// not; there is at most one by construction.
func (s *inviteStore) FindActive(workspaceID, email string) (*model.Invite, error) {
	var inv model.Invite
	err := s.db.First(&inv, "workspace_id = ? AND email = ? AND active = ?", workspaceID, email, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// UpdatePending refreshes role, group, and expiry on a still-pending invite
// in place, keeping its token.
func (s *inviteStore) UpdatePending(token string, role model.Role, groupID *string, expiresAt time.Time) error {
	res := s.db.Model(&model.Invite{}).
		Where("token = ? AND accepted_at IS NULL AND revoked_at IS NULL", token).
		Updates(map[string]any{"role": role, "group_id": groupID, "expires_at": expiresAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missingOrTerminal(token)
	}
	return nil
}

// MarkAccepted is a guarded compare-and-set: it only fires while the row is
// pending, so a terminal invite can never flip to accepted.
func (s *inviteStore) MarkAccepted(token string, at time.Time) error {
	res := s.db.Model(&model.Invite{}).
		Where("token = ? AND accepted_at IS NULL AND revoked_at IS NULL", token).
		Updates(map[string]any{"accepted_at": at, "active": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missingOrTerminal(token)
	}
	return nil
}

// Revoke is guarded the same way as MarkAccepted.
func (s *inviteStore) Revoke(token string, reason model.RevokeReason, at time.Time) error {
	res := s.db.Model(&model.Invite{}).
		Where("token = ? AND accepted_at IS NULL AND revoked_at IS NULL", token).
		Updates(map[string]any{"revoked_at": at, "revoked_reason": reason, "active": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.missingOrTerminal(token)
	}
	return nil
}

func (s *inviteStore) missingOrTerminal(token string) error {
	var count int64
	if err := s.db.Model(&model.Invite{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrTerminal
}

func (s *inviteStore) RevokeExpired(now time.Time) (int64, error) {
	res := s.db.Model(&model.Invite{}).
		Where("accepted_at IS NULL AND revoked_at IS NULL AND expires_at < ?", now).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": model.RevokeExpired, "active": nil})
	return res.RowsAffected, res.Error
}

func (s *inviteStore) RevokeExpiredForEmail(email string, now time.Time) error {
	return s.db.Model(&model.Invite{}).
		Where("email = ? AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at < ?", email, now).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": model.RevokeExpired, "active": nil}).Error
}

func (s *inviteStore) ListPendingForEmail(email string, now time.Time) ([]model.Invite, error) {
	var out []model.Invite
	err := s.db.
		Where("email = ? AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at >= ?", email, now).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (s *inviteStore) ListByInviter(inviterID string, since time.Time) ([]model.Invite, error) {
	var out []model.Invite
	err := s.db.
		Where("invited_by = ? AND created_at >= ?", inviterID, since).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
