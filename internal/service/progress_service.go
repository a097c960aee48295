package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/util"
	"certlearn_backend/pkg/cache"
	"certlearn_backend/pkg/logger"
	"certlearn_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CheckpointReader 进度服务需要的内容只读视图
type CheckpointReader interface {
	FindCheckpointByID(id uint) (*model.Checkpoint, error)
	FindStageByID(id uint) (*model.Stage, error)
	ListLessonStages(lessonID uint) ([]model.Stage, error)
}

// ProgressStore UserProgress 的读写，进度行只经由本服务变更
type ProgressStore interface {
	Upsert(p *model.UserProgress) error
	FindByUserAndCheckpoint(userID, checkpointID uint) (*model.UserProgress, error)
	ListByUserAndCheckpoints(userID uint, checkpointIDs []uint) ([]model.UserProgress, error)
}

// ProgressService 持有进度状态的唯一写入方。
// 同一 (userId, checkpointId) 上的并发提交经 per-key 锁串行化，后写覆盖。
type ProgressService struct {
	Content  CheckpointReader
	Progress ProgressStore

	cpCache *cache.TTLCache[uint, *model.Checkpoint]

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProgressService(content CheckpointReader, progress ProgressStore, cacheTTL time.Duration) *ProgressService {
	return &ProgressService{
		Content:  content,
		Progress: progress,
		cpCache:  cache.New[uint, *model.Checkpoint](cacheTTL),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *ProgressService) keyLock(userID, checkpointID uint) *sync.Mutex {
	key := fmt.Sprintf("%d:%d", userID, checkpointID)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *ProgressService) checkpoint(id uint) (*model.Checkpoint, error) {
	if cp, ok := s.cpCache.Get(id); ok {
		return cp, nil
	}
	cp, err := s.Content.FindCheckpointByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCheckpointNotFound
		}
		return nil, err
	}
	s.cpCache.Set(id, cp)
	return cp, nil
}

// InvalidateCheckpoint 检查点编辑后由 ContentService 调用
func (s *ProgressService) InvalidateCheckpoint(id uint) {
	s.cpCache.Delete(id)
}

// RecordAttempt 学员提交一次作答：判分、覆盖写入进度行、重算所属阶段的闸门。
// 判分错误原样上抛；存储错误退避重试一次后包装为 PersistenceError，绝不静默丢弃。
func (s *ProgressService) RecordAttempt(userID, checkpointID uint, attempt model.Attempt) (*model.UserProgress, *model.StageStatus, error) {
	lock := s.keyLock(userID, checkpointID)
	lock.Lock()
	defer lock.Unlock()

	cp, err := s.checkpoint(checkpointID)
	if err != nil {
		return nil, nil, err
	}

	outcome, gradeErr := GradeCheckpoint(cp, attempt)
	if gradeErr != nil && !util.IsKind(gradeErr, util.KindIndeterminate) {
		// 校验类错误：不触碰已有进度行，调用方修正后重新提交
		return nil, nil, gradeErr
	}

	raw, _ := json.Marshal(attempt)
	row := &model.UserProgress{
		UserID:       userID,
		CheckpointID: checkpointID,
		Status:       outcome.Status,
		Score:        outcome.Score,
		Attempt:      raw,
	}
	row.UpdatedAt = time.Now()

	stage, rows, preGate, err := s.gateBefore(userID, cp.StageID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.persist(row); err != nil {
		return nil, nil, err
	}
	monitoring.AttemptsGraded.WithLabelValues(string(cp.Kind), string(outcome.Status)).Inc()

	status := s.gateAfter(userID, stage, rows, row, preGate)

	// IndeterminateGrading 已把 pending 行落库，错误仍需回传调用方
	return row, status, gradeErr
}

// RecordQuizOutcome 考试会话结束后由 QuizSessionService 调用，
// 将已判分的认证成绩写入进度行（不再重复判分）。
// 通过与否由绑定检查点的 PassThreshold 决定：分数（百分制）达到
// 阈值对应的百分比即通过。
func (s *ProgressService) RecordQuizOutcome(userID, checkpointID uint, score float64, raw json.RawMessage) (*model.UserProgress, *model.StageStatus, error) {
	lock := s.keyLock(userID, checkpointID)
	lock.Lock()
	defer lock.Unlock()

	cp, err := s.checkpoint(checkpointID)
	if err != nil {
		return nil, nil, err
	}

	bar := cp.PassThreshold
	if bar <= 0 || bar > 1 {
		bar = 1
	}
	status := model.StatusFailed
	if score >= bar*100 {
		status = model.StatusPassed
	}
	row := &model.UserProgress{
		UserID:       userID,
		CheckpointID: checkpointID,
		Status:       status,
		Score:        &score,
		Attempt:      raw,
	}
	row.UpdatedAt = time.Now()

	stage, rows, preGate, err := s.gateBefore(userID, cp.StageID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.persist(row); err != nil {
		return nil, nil, err
	}
	monitoring.AttemptsGraded.WithLabelValues(string(cp.Kind), string(status)).Inc()

	stageStatus := s.gateAfter(userID, stage, rows, row, preGate)
	return row, stageStatus, nil
}

func (s *ProgressService) persist(row *model.UserProgress) error {
	err := util.RetryOnce(util.PersistRetryBackoff, func() error {
		return s.Progress.Upsert(row)
	})
	if err != nil {
		logger.Log.Error("progress upsert failed after retry",
			zap.Uint("userId", row.UserID),
			zap.Uint("checkpointId", row.CheckpointID),
			zap.Error(err))
		return util.NewPersistenceError("failed to persist attempt", err)
	}
	return nil
}

func (s *ProgressService) gateBefore(userID, stageID uint) (*model.Stage, []model.UserProgress, GateResult, error) {
	stage, err := s.Content.FindStageByID(stageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, GateResult{}, util.ErrStageNotFound
		}
		return nil, nil, GateResult{}, err
	}

	ids := make([]uint, 0, len(stage.Checkpoints))
	for _, cp := range stage.Checkpoints {
		ids = append(ids, cp.ID)
	}
	rows, err := s.Progress.ListByUserAndCheckpoints(userID, ids)
	if err != nil {
		return nil, nil, GateResult{}, err
	}

	return stage, rows, EvaluateGate(stage, rows), nil
}

// gateAfter 用写入后的行重算闸门并派生解锁状态
func (s *ProgressService) gateAfter(userID uint, stage *model.Stage, rows []model.UserProgress, updated *model.UserProgress, pre GateResult) *model.StageStatus {
	merged := make([]model.UserProgress, 0, len(rows)+1)
	for _, r := range rows {
		if r.CheckpointID != updated.CheckpointID {
			merged = append(merged, r)
		}
	}
	merged = append(merged, *updated)

	result := EvaluateGate(stage, merged)
	if result.Anomaly {
		logger.Log.Warn("gate rule violates authoring invariant, clamped to require_all",
			zap.Uint("stageId", stage.ID),
			zap.Int("minPassed", stage.MinPassed),
			zap.Int("checkpoints", len(stage.Checkpoints)))
		monitoring.GateAnomalies.Inc()
	}
	if !pre.Unlocked && result.Unlocked {
		monitoring.StageUnlocks.Inc()
	}

	status := &model.StageStatus{
		StageID:     stage.ID,
		Unlocked:    result.Unlocked,
		PassedCount: result.PassedCount,
		Required:    result.Required,
	}
	if result.Unlocked {
		status.NextStageID = s.nextStageID(stage)
	}
	return status
}

// nextStageID 解锁后查找同课时内 Order 紧随其后的阶段；派生值，不落库
func (s *ProgressService) nextStageID(stage *model.Stage) *uint {
	stages, err := s.Content.ListLessonStages(stage.LessonID)
	if err != nil {
		return nil
	}
	for i, st := range stages {
		if st.ID == stage.ID && i+1 < len(stages) {
			id := stages[i+1].ID
			return &id
		}
	}
	return nil
}

// StageStatus 按需派生某阶段的闸门状态
func (s *ProgressService) StageStatus(userID, stageID uint) (*model.StageStatus, error) {
	stage, rows, result, err := s.gateBefore(userID, stageID)
	if err != nil {
		return nil, err
	}
	_ = rows

	if result.Anomaly {
		logger.Log.Warn("gate rule violates authoring invariant, clamped to require_all",
			zap.Uint("stageId", stage.ID),
			zap.Int("minPassed", stage.MinPassed),
			zap.Int("checkpoints", len(stage.Checkpoints)))
		monitoring.GateAnomalies.Inc()
	}

	status := &model.StageStatus{
		StageID:     stage.ID,
		Unlocked:    result.Unlocked,
		PassedCount: result.PassedCount,
		Required:    result.Required,
	}
	if result.Unlocked {
		status.NextStageID = s.nextStageID(stage)
	}
	return status, nil
}

// LessonStatus 派生课时内全部阶段的闸门与可进入状态：
// 第一阶段总是可进入，其后每一阶段在前一阶段解锁后可进入
func (s *ProgressService) LessonStatus(userID, lessonID uint) ([]model.StageStatus, error) {
	stages, err := s.Content.ListLessonStages(lessonID)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, util.ErrLessonNotFound
	}

	var ids []uint
	for _, st := range stages {
		for _, cp := range st.Checkpoints {
			ids = append(ids, cp.ID)
		}
	}
	rows, err := s.Progress.ListByUserAndCheckpoints(userID, ids)
	if err != nil {
		return nil, err
	}

	statuses := make([]model.StageStatus, 0, len(stages))
	prevUnlocked := true
	for i := range stages {
		st := &stages[i]
		result := EvaluateGate(st, rows)
		status := model.StageStatus{
			StageID:     st.ID,
			Unlocked:    result.Unlocked,
			PassedCount: result.PassedCount,
			Required:    result.Required,
			Available:   prevUnlocked,
		}
		if result.Unlocked && i+1 < len(stages) {
			id := stages[i+1].ID
			status.NextStageID = &id
		}
		statuses = append(statuses, status)
		prevUnlocked = result.Unlocked
	}
	return statuses, nil
}

// CheckpointProgress 查询单个检查点的进度行
func (s *ProgressService) CheckpointProgress(userID, checkpointID uint) (*model.UserProgress, error) {
	row, err := s.Progress.FindByUserAndCheckpoint(userID, checkpointID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCheckpointNotFound
		}
		return nil, err
	}
	return row, nil
}
