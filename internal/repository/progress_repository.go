package repository

import (
	"certlearn_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// Upsert 以 (user_id, checkpoint_id) 为键覆盖写入，绝不产生第二行
func (r *ProgressRepository) Upsert(p *model.UserProgress) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "checkpoint_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "score", "attempt", "updated_at",
		}),
	}).Create(p).Error
}

func (r *ProgressRepository) FindByUserAndCheckpoint(userID, checkpointID uint) (*model.UserProgress, error) {
	var p model.UserProgress
	err := r.DB.Where("user_id = ? AND checkpoint_id = ?", userID, checkpointID).First(&p).Error
	return &p, err
}

func (r *ProgressRepository) ListByUserAndCheckpoints(userID uint, checkpointIDs []uint) ([]model.UserProgress, error) {
	if len(checkpointIDs) == 0 {
		return nil, nil
	}
	var rows []model.UserProgress
	err := r.DB.Where("user_id = ? AND checkpoint_id IN ?", userID, checkpointIDs).Find(&rows).Error
	return rows, err
}
