package service

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/repository"
	"certlearn_backend/internal/util"
	"certlearn_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ContentService 内容层级的创作接口，负责在编辑时校验结构不变量：
// 兄弟节点 Order 唯一、min_passed 不超过检查点数、quiz 至少一个正确选项
type ContentService struct {
	Repo     *repository.ContentRepository
	Cards    *repository.FlashcardRepository
	Progress *ProgressService
}

func NewContentService(repo *repository.ContentRepository, cards *repository.FlashcardRepository, progress *ProgressService) *ContentService {
	return &ContentService{Repo: repo, Cards: cards, Progress: progress}
}

func (s *ContentService) ListTracks() ([]model.Track, error) {
	return s.Repo.ListTracks()
}

func (s *ContentService) GetTrack(id uint) (*model.Track, error) {
	track, err := s.Repo.FindTrackByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTrackNotFound
		}
		return nil, err
	}
	return track, nil
}

func (s *ContentService) CreateTrack(track *model.Track) error {
	if strings.TrimSpace(track.Title) == "" {
		return util.NewValidationError("track title is required")
	}
	return s.Repo.CreateTrack(track)
}

func (s *ContentService) UpdateTrack(track *model.Track) error {
	if strings.TrimSpace(track.Title) == "" {
		return util.NewValidationError("track title is required")
	}
	return s.Repo.UpdateTrack(track)
}

func (s *ContentService) DeleteTrack(id uint) error {
	return s.Repo.DeleteTrack(id)
}

func (s *ContentService) CreateModule(m *model.TrackModule) error {
	if strings.TrimSpace(m.Title) == "" {
		return util.NewValidationError("module title is required")
	}
	count, err := s.Repo.CountSiblingModules(m.TrackID, m.Order, m.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.NewValidationError("order %d is already taken in track %d", m.Order, m.TrackID)
	}
	return s.Repo.CreateModule(m)
}

func (s *ContentService) CreateLesson(lesson *model.Lesson) error {
	if strings.TrimSpace(lesson.Title) == "" {
		return util.NewValidationError("lesson title is required")
	}
	count, err := s.Repo.CountSiblingLessons(lesson.ModuleID, lesson.Order, lesson.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.NewValidationError("order %d is already taken in module %d", lesson.Order, lesson.ModuleID)
	}
	return s.Repo.CreateLesson(lesson)
}

func (s *ContentService) GetLesson(id uint) (*model.Lesson, error) {
	lesson, err := s.Repo.FindLessonByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}
	return lesson, nil
}

// DeleteLesson 删除课时并级联清理其衍生的复习卡片
func (s *ContentService) DeleteLesson(id uint) error {
	if err := s.Repo.DeleteLesson(id); err != nil {
		return err
	}
	if err := s.Cards.DeleteByLesson(id); err != nil {
		logger.Log.Error("级联删除复习卡片失败", zap.Uint("lessonId", id), zap.Error(err))
		return util.NewPersistenceError("failed to delete lesson flashcards", err)
	}
	return nil
}

func (s *ContentService) CreateStage(stage *model.Stage) error {
	if err := s.validateStage(stage, 0); err != nil {
		return err
	}
	count, err := s.Repo.CountSiblingStages(stage.LessonID, stage.Order, stage.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.NewValidationError("order %d is already taken in lesson %d", stage.Order, stage.LessonID)
	}
	return s.Repo.CreateStage(stage)
}

func (s *ContentService) UpdateStage(stage *model.Stage) error {
	existing, err := s.Repo.FindStageByID(stage.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrStageNotFound
		}
		return err
	}
	if err := s.validateStage(stage, len(existing.Checkpoints)); err != nil {
		return err
	}
	count, err := s.Repo.CountSiblingStages(stage.LessonID, stage.Order, stage.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.NewValidationError("order %d is already taken in lesson %d", stage.Order, stage.LessonID)
	}
	return s.Repo.UpdateStage(stage)
}

// validateStage min_passed 模式要求门槛落在 [1, 检查点数] 区间；
// 存量数据不满足时由闸门求值在运行时收敛为 require_all
func (s *ContentService) validateStage(stage *model.Stage, checkpointCount int) error {
	switch stage.GateMode {
	case model.GateRequireAll:
		return nil
	case model.GateMinPassed:
		if stage.MinPassed < 1 {
			return util.NewValidationError("min_passed threshold must be at least 1")
		}
		if checkpointCount > 0 && stage.MinPassed > checkpointCount {
			return util.NewValidationError("min_passed threshold %d exceeds checkpoint count %d", stage.MinPassed, checkpointCount)
		}
		return nil
	default:
		return util.NewValidationError("unknown gate mode %q", stage.GateMode)
	}
}

func (s *ContentService) GetStage(id uint) (*model.Stage, error) {
	stage, err := s.Repo.FindStageByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrStageNotFound
		}
		return nil, err
	}
	return stage, nil
}

func (s *ContentService) CreateCheckpoint(cp *model.Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	count, err := s.Repo.CountSiblingCheckpoints(cp.StageID, cp.Order, cp.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.NewValidationError("order %d is already taken in stage %d", cp.Order, cp.StageID)
	}
	return s.Repo.CreateCheckpoint(cp)
}

func (s *ContentService) UpdateCheckpoint(cp *model.Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	count, err := s.Repo.CountSiblingCheckpoints(cp.StageID, cp.Order, cp.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.NewValidationError("order %d is already taken in stage %d", cp.Order, cp.StageID)
	}
	if err := s.Repo.UpdateCheckpoint(cp); err != nil {
		return err
	}
	// 进行中的判分读的是缓存快照，编辑后立即失效
	s.Progress.InvalidateCheckpoint(cp.ID)
	return nil
}

func (s *ContentService) DeleteCheckpoint(id uint) error {
	if err := s.Repo.DeleteCheckpoint(id); err != nil {
		return err
	}
	s.Progress.InvalidateCheckpoint(id)
	return nil
}

// validateCheckpoint 按类型校验判分数据的结构
func validateCheckpoint(cp *model.Checkpoint) error {
	switch cp.Kind {
	case model.CheckpointAck:
		if len(cp.Choices) > 0 || len(cp.AnswerKeys) > 0 {
			return util.NewValidationError("ack checkpoints carry no answer data")
		}
	case model.CheckpointQuiz:
		if len(cp.Choices) == 0 {
			return util.NewValidationError("quiz checkpoints need at least one choice")
		}
		hasCorrect := false
		for _, c := range cp.Choices {
			if c.Correct {
				hasCorrect = true
				break
			}
		}
		if !hasCorrect {
			return util.NewValidationError("quiz checkpoints need at least one correct choice")
		}
		if cp.PassThreshold <= 0 || cp.PassThreshold > 1 {
			return util.NewValidationError("pass threshold must be in (0, 1]")
		}
	case model.CheckpointShortAnswer, model.CheckpointTask:
		if !cp.RequiresRubric && len(cp.AcceptedAnswers()) == 0 {
			return util.NewValidationError("deterministic %s checkpoints need answer keys", cp.Kind)
		}
	default:
		return util.NewValidationError("unknown checkpoint kind %q", cp.Kind)
	}
	return nil
}

// CardSpec 课时转卡片的单条定义
type CardSpec struct {
	Front string `json:"front" binding:"required"`
	Back  string `json:"back" binding:"required"`
}

// ConvertLessonToCards 把课时要点转成该学员的复习卡片。
// 新卡间隔为 0、立即到期，进入 SRS 调度。
func (s *ContentService) ConvertLessonToCards(lessonID, userID uint, specs []CardSpec) ([]model.Flashcard, error) {
	if len(specs) == 0 {
		return nil, util.NewValidationError("at least one card is required")
	}
	if _, err := s.Repo.FindLessonByID(lessonID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrLessonNotFound
		}
		return nil, err
	}

	now := time.Now()
	cards := make([]model.Flashcard, 0, len(specs))
	for _, spec := range specs {
		front := strings.TrimSpace(spec.Front)
		back := strings.TrimSpace(spec.Back)
		if front == "" || back == "" {
			return nil, util.NewValidationError("card front and back must be non-empty")
		}
		cards = append(cards, model.Flashcard{
			LessonID:   lessonID,
			UserID:     userID,
			Front:      front,
			Back:       back,
			Ease:       2.5,
			NextReview: now,
		})
	}

	if err := s.Cards.CreateBatch(cards); err != nil {
		return nil, util.NewPersistenceError("failed to create flashcards", err)
	}

	logger.Log.Info("课时转换为复习卡片",
		zap.Uint("lessonId", lessonID),
		zap.Uint("userId", userID),
		zap.Int("count", len(cards)))
	return cards, nil
}

// ListLessonCards 学员在某课时下的卡片
func (s *ContentService) ListLessonCards(lessonID, userID uint) ([]model.Flashcard, error) {
	return s.Cards.ListByLesson(lessonID, userID)
}

// ExportStage 导出阶段定义（含答案），供创作端备份
func (s *ContentService) ExportStage(id uint) (json.RawMessage, error) {
	stage, err := s.GetStage(id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stage)
}
