package store

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/planboard/internal/model"
)

type superAdminStore struct {
	db *gorm.DB
}

func (s *superAdminStore) Upsert(sa *model.SuperAdmin) error {
	if sa == nil {
		return errors.New("nil super admin")
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email"}),
	}).Create(sa).Error
}

func (s *superAdminStore) IsSuperAdmin(userID string) (bool, error) {
	var count int64
	err := s.db.Model(&model.SuperAdmin{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}
