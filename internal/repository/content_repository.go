package repository

import (
	"certlearn_backend/internal/model"

	"gorm.io/gorm"
)

type ContentRepository struct {
	DB *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{DB: db}
}

func (r *ContentRepository) ListTracks() ([]model.Track, error) {
	var tracks []model.Track
	err := r.DB.Order("`order` ASC").Find(&tracks).Error
	return tracks, err
}

// FindTrackByID 预加载整个层级，供派生解锁状态计算
func (r *ContentRepository) FindTrackByID(id uint) (*model.Track, error) {
	var track model.Track
	err := r.DB.
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		Preload("Modules.Lessons.Stages", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		Preload("Modules.Lessons.Stages.Checkpoints", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		Preload("Modules.Lessons.Stages.Checkpoints.Choices", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		First(&track, id).Error
	return &track, err
}

func (r *ContentRepository) CreateTrack(track *model.Track) error {
	return r.DB.Create(track).Error
}

func (r *ContentRepository) UpdateTrack(track *model.Track) error {
	return r.DB.Save(track).Error
}

func (r *ContentRepository) DeleteTrack(id uint) error {
	return r.DB.Delete(&model.Track{}, id).Error
}

func (r *ContentRepository) CreateModule(m *model.TrackModule) error {
	return r.DB.Create(m).Error
}

func (r *ContentRepository) FindModuleByID(id uint) (*model.TrackModule, error) {
	var m model.TrackModule
	err := r.DB.First(&m, id).Error
	return &m, err
}

func (r *ContentRepository) CountSiblingModules(trackID uint, order int, excludeID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.TrackModule{}).
		Where("track_id = ? AND `order` = ? AND id <> ?", trackID, order, excludeID).
		Count(&count).Error
	return count, err
}

func (r *ContentRepository) CreateLesson(lesson *model.Lesson) error {
	return r.DB.Create(lesson).Error
}

func (r *ContentRepository) FindLessonByID(id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	err := r.DB.
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		Preload("Stages.Checkpoints", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		First(&lesson, id).Error
	return &lesson, err
}

func (r *ContentRepository) CountSiblingLessons(moduleID uint, order int, excludeID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Lesson{}).
		Where("module_id = ? AND `order` = ? AND id <> ?", moduleID, order, excludeID).
		Count(&count).Error
	return count, err
}

func (r *ContentRepository) DeleteLesson(id uint) error {
	return r.DB.Delete(&model.Lesson{}, id).Error
}

func (r *ContentRepository) CreateStage(stage *model.Stage) error {
	return r.DB.Create(stage).Error
}

func (r *ContentRepository) UpdateStage(stage *model.Stage) error {
	return r.DB.Save(stage).Error
}

func (r *ContentRepository) FindStageByID(id uint) (*model.Stage, error) {
	var stage model.Stage
	err := r.DB.
		Preload("Checkpoints", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		First(&stage, id).Error
	return &stage, err
}

// ListLessonStages 按 Order 返回课时内全部阶段
func (r *ContentRepository) ListLessonStages(lessonID uint) ([]model.Stage, error) {
	var stages []model.Stage
	err := r.DB.Where("lesson_id = ?", lessonID).
		Preload("Checkpoints", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		Order("`order` ASC").
		Find(&stages).Error
	return stages, err
}

func (r *ContentRepository) CountSiblingStages(lessonID uint, order int, excludeID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Stage{}).
		Where("lesson_id = ? AND `order` = ? AND id <> ?", lessonID, order, excludeID).
		Count(&count).Error
	return count, err
}

func (r *ContentRepository) CreateCheckpoint(cp *model.Checkpoint) error {
	return r.DB.Create(cp).Error
}

func (r *ContentRepository) UpdateCheckpoint(cp *model.Checkpoint) error {
	return r.DB.Save(cp).Error
}

func (r *ContentRepository) DeleteCheckpoint(id uint) error {
	return r.DB.Delete(&model.Checkpoint{}, id).Error
}

func (r *ContentRepository) FindCheckpointByID(id uint) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	err := r.DB.
		Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		First(&cp, id).Error
	return &cp, err
}

func (r *ContentRepository) CountSiblingCheckpoints(stageID uint, order int, excludeID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Checkpoint{}).
		Where("stage_id = ? AND `order` = ? AND id <> ?", stageID, order, excludeID).
		Count(&count).Error
	return count, err
}
