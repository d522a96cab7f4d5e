package store

import (
	"errors"

	"gorm.io/gorm"

	"example.com/planboard/internal/model"
)

type workspaceStore struct {
	db *gorm.DB
}

func (s *workspaceStore) Get(id string) (*model.Workspace, error) {
	var ws model.Workspace
	if err := s.db.First(&ws, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

func (s *workspaceStore) GetGroup(groupID string) (*model.WorkspaceGroup, error) {
	var g model.WorkspaceGroup
	if err := s.db.First(&g, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}
