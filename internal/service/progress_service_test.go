package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeContent struct {
	checkpoints map[uint]*model.Checkpoint
	stages      map[uint]*model.Stage
	lessons     map[uint][]model.Stage
	cpLoads     int
}

func (f *fakeContent) FindCheckpointByID(id uint) (*model.Checkpoint, error) {
	f.cpLoads++
	cp, ok := f.checkpoints[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cp, nil
}

func (f *fakeContent) FindStageByID(id uint) (*model.Stage, error) {
	st, ok := f.stages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return st, nil
}

func (f *fakeContent) ListLessonStages(lessonID uint) ([]model.Stage, error) {
	return f.lessons[lessonID], nil
}

type fakeProgressStore struct {
	mu         sync.Mutex
	rows       map[string]model.UserProgress
	upsertErrs []error
	upserts    int
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{rows: make(map[string]model.UserProgress)}
}

func progressKey(userID, checkpointID uint) string {
	return fmt.Sprintf("%d:%d", userID, checkpointID)
}

func (f *fakeProgressStore) Upsert(p *model.UserProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		if err != nil {
			return err
		}
	}
	f.rows[progressKey(p.UserID, p.CheckpointID)] = *p
	return nil
}

func (f *fakeProgressStore) FindByUserAndCheckpoint(userID, checkpointID uint) (*model.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[progressKey(userID, checkpointID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (f *fakeProgressStore) ListByUserAndCheckpoints(userID uint, ids []uint) ([]model.UserProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.UserProgress
	for _, id := range ids {
		if row, ok := f.rows[progressKey(userID, id)]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// 单阶段、两检查点（ack + 单选 quiz）的测试内容
func progressFixture() (*fakeContent, *fakeProgressStore, *ProgressService) {
	ack := &model.Checkpoint{Kind: model.CheckpointAck, StageID: 10}
	ack.ID = 1
	quiz := quizCheckpoint(1, []uint{100}, []uint{101})
	quiz.ID = 2
	quiz.StageID = 10

	stage := stageWith(model.GateRequireAll, 0, 1, 2)
	stage.ID = 10
	stage.LessonID = 5
	next := stageWith(model.GateRequireAll, 0, 3)
	next.ID = 11
	next.LessonID = 5

	content := &fakeContent{
		checkpoints: map[uint]*model.Checkpoint{1: ack, 2: quiz},
		stages:      map[uint]*model.Stage{10: stage, 11: next},
		lessons:     map[uint][]model.Stage{5: {*stage, *next}},
	}
	store := newFakeProgressStore()
	svc := NewProgressService(content, store, time.Minute)
	return content, store, svc
}

func TestRecordAttemptRubricPersistsPending(t *testing.T) {
	content, store, svc := progressFixture()
	rubric := &model.Checkpoint{
		Kind:           model.CheckpointShortAnswer,
		StageID:        10,
		RequiresRubric: true,
	}
	rubric.ID = 4
	content.checkpoints[4] = rubric

	row, status, err := svc.RecordAttempt(7, 4, model.Attempt{Text: "自由作答"})
	// pending 行已落库，错误仍回传供响应层映射为 202
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindIndeterminate))
	require.NotNil(t, row)
	assert.Equal(t, model.StatusPending, row.Status)
	assert.Nil(t, row.Score)
	require.NotNil(t, status)

	saved, findErr := store.FindByUserAndCheckpoint(7, 4)
	require.NoError(t, findErr)
	assert.Equal(t, model.StatusPending, saved.Status)
}

func TestRecordAttemptPassAndUnlock(t *testing.T) {
	_, store, svc := progressFixture()

	row, status, err := svc.RecordAttempt(7, 1, model.Attempt{Acknowledged: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, row.Status)
	require.NotNil(t, status)
	assert.False(t, status.Unlocked)
	assert.Equal(t, 1, status.PassedCount)

	// 第二个检查点通过后阶段解锁，并给出下一阶段
	row, status, err = svc.RecordAttempt(7, 2, model.Attempt{Selected: []uint{100}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, row.Status)
	assert.True(t, status.Unlocked)
	require.NotNil(t, status.NextStageID)
	assert.Equal(t, uint(11), *status.NextStageID)

	assert.Len(t, store.rows, 2)
}

func TestRecordAttemptOverwrites(t *testing.T) {
	_, store, svc := progressFixture()

	_, _, err := svc.RecordAttempt(7, 2, model.Attempt{Selected: []uint{101}})
	require.NoError(t, err)
	first := store.rows[progressKey(7, 2)]
	assert.Equal(t, model.StatusFailed, first.Status)

	_, _, err = svc.RecordAttempt(7, 2, model.Attempt{Selected: []uint{100}})
	require.NoError(t, err)

	// 覆盖而非新增
	assert.Len(t, store.rows, 1)
	second := store.rows[progressKey(7, 2)]
	assert.Equal(t, model.StatusPassed, second.Status)
}

func TestRecordAttemptValidationLeavesRowUntouched(t *testing.T) {
	_, store, svc := progressFixture()

	_, _, err := svc.RecordAttempt(7, 1, model.Attempt{Acknowledged: true})
	require.NoError(t, err)
	before := store.rows[progressKey(7, 1)]

	// 空提交：校验失败，已有进度行保持不变
	_, _, err = svc.RecordAttempt(7, 1, model.Attempt{})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))

	after := store.rows[progressKey(7, 1)]
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, 1, store.upserts)
}

func TestRecordAttemptUnknownCheckpoint(t *testing.T) {
	_, _, svc := progressFixture()

	_, _, err := svc.RecordAttempt(7, 99, model.Attempt{Acknowledged: true})
	assert.ErrorIs(t, err, util.ErrCheckpointNotFound)
}

func TestRecordAttemptPersistenceRetry(t *testing.T) {
	_, store, svc := progressFixture()
	store.upsertErrs = []error{errors.New("deadlock")}

	// 第一次失败后重试成功
	row, _, err := svc.RecordAttempt(7, 1, model.Attempt{Acknowledged: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, row.Status)
	assert.Equal(t, 2, store.upserts)
}

func TestRecordAttemptPersistenceFailureSurfaces(t *testing.T) {
	_, store, svc := progressFixture()
	store.upsertErrs = []error{errors.New("down"), errors.New("still down")}

	_, _, err := svc.RecordAttempt(7, 1, model.Attempt{Acknowledged: true})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindPersistence))
	assert.Empty(t, store.rows)
}

func TestRecordAttemptCachesCheckpoint(t *testing.T) {
	content, _, svc := progressFixture()

	_, _, _ = svc.RecordAttempt(7, 1, model.Attempt{Acknowledged: true})
	_, _, _ = svc.RecordAttempt(7, 1, model.Attempt{Acknowledged: true})
	assert.Equal(t, 1, content.cpLoads)

	// 编辑后缓存失效，重新加载
	svc.InvalidateCheckpoint(1)
	_, _, _ = svc.RecordAttempt(7, 1, model.Attempt{Acknowledged: true})
	assert.Equal(t, 2, content.cpLoads)
}

func TestRecordAttemptConcurrentSameKey(t *testing.T) {
	_, store, svc := progressFixture()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.RecordAttempt(7, 2, model.Attempt{Selected: []uint{100}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 串行化后仍然只有一行
	assert.Len(t, store.rows, 1)
	assert.Equal(t, 20, store.upserts)
}

func TestRecordQuizOutcome(t *testing.T) {
	_, store, svc := progressFixture()

	raw := json.RawMessage(`{"answers":[]}`)

	// 检查点阈值 1.0：不满分即失败
	row, status, err := svc.RecordQuizOutcome(7, 2, 85.5, raw)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, row.Status)
	require.NotNil(t, row.Score)
	assert.Equal(t, 85.5, *row.Score)
	require.NotNil(t, status)

	row, _, err = svc.RecordQuizOutcome(7, 2, 100, raw)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, row.Status)

	stored := store.rows[progressKey(7, 2)]
	assert.Equal(t, model.StatusPassed, stored.Status)
}

func TestRecordQuizOutcomePartialThreshold(t *testing.T) {
	content, _, svc := progressFixture()
	half := quizCheckpoint(0.5, []uint{100, 102}, []uint{101})
	half.ID = 4
	half.StageID = 10
	content.checkpoints[4] = half

	// 阈值 0.5：半数得分即通过认证
	row, _, err := svc.RecordQuizOutcome(7, 4, 50, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, row.Status)

	row, _, err = svc.RecordQuizOutcome(7, 4, 49, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, row.Status)
}

func TestLessonStatusChaining(t *testing.T) {
	_, _, svc := progressFixture()

	statuses, err := svc.LessonStatus(7, 5)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	// 第一阶段总是可进入，第二阶段在前一阶段解锁前不可进入
	assert.True(t, statuses[0].Available)
	assert.False(t, statuses[0].Unlocked)
	assert.False(t, statuses[1].Available)

	_, _, err = svc.RecordAttempt(7, 1, model.Attempt{Acknowledged: true})
	require.NoError(t, err)
	_, _, err = svc.RecordAttempt(7, 2, model.Attempt{Selected: []uint{100}})
	require.NoError(t, err)

	statuses, err = svc.LessonStatus(7, 5)
	require.NoError(t, err)
	assert.True(t, statuses[0].Unlocked)
	assert.True(t, statuses[1].Available)
}

func TestStageStatusDerived(t *testing.T) {
	_, _, svc := progressFixture()

	status, err := svc.StageStatus(7, 10)
	require.NoError(t, err)
	assert.False(t, status.Unlocked)
	assert.Equal(t, 0, status.PassedCount)
	assert.Equal(t, 2, status.Required)

	_, err = svc.StageStatus(7, 99)
	assert.ErrorIs(t, err, util.ErrStageNotFound)
}

func TestCheckpointProgressNotFound(t *testing.T) {
	_, _, svc := progressFixture()

	_, err := svc.CheckpointProgress(7, 1)
	assert.ErrorIs(t, err, util.ErrCheckpointNotFound)
}
