package store

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/planboard/internal/model"
)

type identityLinkStore struct {
	db *gorm.DB
}

// Upsert inserts or refreshes the link keyed by the internal user id.
// Links are never deleted.
func (s *identityLinkStore) Upsert(link *model.IdentityLink) error {
	if link == nil {
		return errors.New("nil link")
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"realm_user_id", "email", "display_name", "updated_at"}),
	}).Create(link).Error
}

func (s *identityLinkStore) GetByUserID(userID string) (*model.IdentityLink, error) {
	var link model.IdentityLink
	if err := s.db.First(&link, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (s *identityLinkStore) GetByEmail(email string) (*model.IdentityLink, error) {
	var link model.IdentityLink
	if err := s.db.First(&link, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}
