package store

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/planboard/internal/model"
)

type membershipStore struct {
	db *gorm.DB
}

// Upsert writes membership keyed by (workspace_id, user_id), updating role
// and group on conflict. Acceptance re-runs land here idempotently.
func (s *membershipStore) Upsert(m *model.Membership) error {
	if m == nil {
		return errors.New("nil membership")
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "group_id", "updated_at"}),
	}).Create(m).Error
}

func (s *membershipStore) Get(workspaceID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := s.db.First(&m, "workspace_id = ? AND user_id = ?", workspaceID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *membershipStore) RolesForUser(userID string) ([]model.Role, error) {
	var roles []model.Role
	err := s.db.Model(&model.Membership{}).
		Where("user_id = ?", userID).
		Pluck("role", &roles).Error
	return roles, err
}

func (s *membershipStore) RemoveAllForUser(userID string) error {
	return s.db.Delete(&model.Membership{}, "user_id = ?", userID).Error
}
