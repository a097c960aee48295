package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeBankReader struct {
	banks map[uint]*model.QuizBank
}

func (f *fakeBankReader) FindBankByID(id uint) (*model.QuizBank, error) {
	bank, ok := f.banks[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return bank, nil
}

type fakeResultStore struct {
	results    map[string]*model.QuizResult
	createErrs []error
	creates    int
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: make(map[string]*model.QuizResult)}
}

func (f *fakeResultStore) CreateResult(result *model.QuizResult) error {
	f.creates++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	f.results[result.SessionID] = result
	return nil
}

func (f *fakeResultStore) FindResultBySession(sessionID string) (*model.QuizResult, error) {
	r, ok := f.results[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r, nil
}

type fakeOutcomeRecorder struct {
	// passBar 模拟绑定检查点的 PassThreshold
	passBar float64
	calls   []struct {
		UserID, CheckpointID uint
		Score                float64
	}
}

func (f *fakeOutcomeRecorder) RecordQuizOutcome(userID, checkpointID uint, score float64, raw json.RawMessage) (*model.UserProgress, *model.StageStatus, error) {
	f.calls = append(f.calls, struct {
		UserID, CheckpointID uint
		Score                float64
	}{userID, checkpointID, score})
	bar := f.passBar
	if bar == 0 {
		bar = 1
	}
	status := model.StatusFailed
	if score >= bar*100 {
		status = model.StatusPassed
	}
	return &model.UserProgress{UserID: userID, CheckpointID: checkpointID, Status: status, Score: &score}, &model.StageStatus{}, nil
}

type fakeCertIssuer struct {
	issued []uint
}

func (f *fakeCertIssuer) IssueForQuiz(userID, checkpointID, bankID uint, score float64) (*model.Certificate, error) {
	f.issued = append(f.issued, checkpointID)
	return &model.Certificate{}, nil
}

// sessionHarness 固定时钟、捕获超时回调的测试装置
type sessionHarness struct {
	svc      *QuizSessionService
	results  *fakeResultStore
	progress *fakeOutcomeRecorder
	certs    *fakeCertIssuer
	now      time.Time
	timeout  func()
}

func bankChoices(t *testing.T, choices []model.QuizChoice) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(choices)
	require.NoError(t, err)
	return raw
}

func testBank(t *testing.T, practice bool, checkpointID *uint) *model.QuizBank {
	q1 := model.QuizBankQuestion{
		Prompt: "1+1=?",
		Order:  1,
		Choices: bankChoices(t, []model.QuizChoice{
			{ID: 1, Text: "2", Correct: true},
			{ID: 2, Text: "3"},
		}),
		PassThreshold: 1,
	}
	q1.ID = 100
	q2 := model.QuizBankQuestion{
		Prompt: "2+2=?",
		Order:  2,
		Choices: bankChoices(t, []model.QuizChoice{
			{ID: 1, Text: "4", Correct: true},
			{ID: 2, Text: "5"},
		}),
		PassThreshold: 1,
	}
	q2.ID = 101

	bank := &model.QuizBank{
		Title:            "测试题库",
		TimeLimitSeconds: 600,
		PracticeMode:     practice,
		CheckpointID:     checkpointID,
		Questions:        []model.QuizBankQuestion{q1, q2},
	}
	bank.ID = 50
	return bank
}

func newSessionHarness(t *testing.T, bank *model.QuizBank) *sessionHarness {
	h := &sessionHarness{
		results:  newFakeResultStore(),
		progress: &fakeOutcomeRecorder{},
		certs:    &fakeCertIssuer{},
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	h.svc = NewQuizSessionService(
		&fakeBankReader{banks: map[uint]*model.QuizBank{bank.ID: bank}},
		h.results,
		h.progress,
		h.certs,
		30*time.Minute,
	)
	h.svc.now = func() time.Time { return h.now }
	h.svc.schedule = func(d time.Duration, f func()) *time.Timer {
		h.timeout = f
		tm := time.NewTimer(time.Hour)
		tm.Stop()
		return tm
	}
	return h
}

func (h *sessionHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func TestSessionStartSnapshotsQuestions(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))

	view, err := h.svc.Start(50, 7)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, view.State)
	assert.Len(t, view.Questions, 2)
	assert.Equal(t, 600, view.TimeLimitSeconds)

	// 快照选项不含答案
	for _, q := range view.Questions {
		for _, choice := range q.Choices {
			_, leaked := choice["correct"]
			assert.False(t, leaked)
		}
	}
}

func TestSessionStartUnknownBank(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	_, err := h.svc.Start(99, 7)
	assert.ErrorIs(t, err, util.ErrBankNotFound)
}

func TestSessionAnswerAndFinish(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, err := h.svc.Start(50, 7)
	require.NoError(t, err)

	_, err = h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(view.SessionID, 7, 101, model.Attempt{Selected: []uint{2}})
	require.NoError(t, err)

	result, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Correct)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 50.0, result.Score)
	assert.False(t, result.AutoSubmitted)
}

func TestSessionAnswerOverwrite(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)

	_, err := h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{2}})
	require.NoError(t, err)
	// 改答案：以最后一次为准
	_, err = h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})
	require.NoError(t, err)

	result, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Correct)
}

func TestSessionUnansweredCountsWrong(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)

	result, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Correct)
	assert.Equal(t, 0.0, result.Score)
}

func TestSessionDeadlineRejectsLateAnswers(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)

	h.advance(601 * time.Second)

	_, err := h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindSessionState))

	err = h.svc.Flag(view.SessionID, 7, 100, true)
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindSessionState))
}

func TestSessionFinishIdempotent(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)
	_, _ = h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})

	first, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)

	second, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, h.results.creates)
}

func TestSessionAutoSubmitOnTimeout(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)
	_, _ = h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})

	h.advance(601 * time.Second)
	require.NotNil(t, h.timeout)
	h.timeout()

	result, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.True(t, result.AutoSubmitted)
	assert.Equal(t, 1, result.Correct)
	assert.Equal(t, 1, h.results.creates)
}

func TestSessionTimeoutAfterManualFinishIsNoop(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)

	result, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.False(t, result.AutoSubmitted)

	// 定时器迟到触发：结果不被覆盖
	h.timeout()
	again, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.False(t, again.AutoSubmitted)
	assert.Equal(t, 1, h.results.creates)
}

func TestSessionPersistFailureKeepsActive(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)
	h.results.createErrs = []error{errors.New("down"), errors.New("down")}

	_, err := h.svc.Finish(view.SessionID, 7)
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindPersistence))

	// 会话保持 active，可重试
	got, err := h.svc.Get(view.SessionID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, got.State)

	_, err = h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
}

func TestSessionPersistFailureKeepsTimerArmed(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)
	_, _ = h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})
	h.results.createErrs = []error{errors.New("down"), errors.New("down")}

	_, err := h.svc.Finish(view.SessionID, 7)
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindPersistence))

	// 交卷失败不摘除定时器：到期自动交卷兜底重试落库
	h.advance(601 * time.Second)
	require.NotNil(t, h.timeout)
	h.timeout()

	got, err := h.svc.Get(view.SessionID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFinished, got.State)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.AutoSubmitted)
	assert.Equal(t, 1, got.Result.Correct)
}

func TestSessionTimerFiringBeforePublishStillFinishes(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	// 回调在 Start 返回前同步触发
	h.svc.schedule = func(d time.Duration, f func()) *time.Timer {
		f()
		tm := time.NewTimer(time.Hour)
		tm.Stop()
		return tm
	}

	view, err := h.svc.Start(50, 7)
	require.NoError(t, err)

	got, err := h.svc.Get(view.SessionID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFinished, got.State)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.AutoSubmitted)
}

func TestSessionPracticeModeFeedback(t *testing.T) {
	h := newSessionHarness(t, testBank(t, true, nil))
	view, _ := h.svc.Start(50, 7)

	fb, err := h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})
	require.NoError(t, err)
	require.NotNil(t, fb)
	assert.True(t, fb.Correct)

	fb, err = h.svc.SubmitAnswer(view.SessionID, 7, 101, model.Attempt{Selected: []uint{2}})
	require.NoError(t, err)
	assert.False(t, fb.Correct)
}

func TestSessionExamModeNoFeedback(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)

	fb, err := h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})
	require.NoError(t, err)
	assert.Nil(t, fb)
}

func TestSessionCertificationOutcome(t *testing.T) {
	checkpointID := uint(42)
	h := newSessionHarness(t, testBank(t, false, &checkpointID))
	view, _ := h.svc.Start(50, 7)
	_, _ = h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})
	_, _ = h.svc.SubmitAnswer(view.SessionID, 7, 101, model.Attempt{Selected: []uint{1}})

	_, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)

	// 全对：成绩写入进度行并签发证书
	require.Len(t, h.progress.calls, 1)
	assert.Equal(t, uint(42), h.progress.calls[0].CheckpointID)
	assert.Equal(t, 100.0, h.progress.calls[0].Score)
	assert.Equal(t, []uint{42}, h.certs.issued)
}

func TestSessionCertificationPartialThreshold(t *testing.T) {
	checkpointID := uint(42)
	h := newSessionHarness(t, testBank(t, false, &checkpointID))
	// 绑定检查点的阈值 0.5：两题答对一题即通过
	h.progress.passBar = 0.5
	view, _ := h.svc.Start(50, 7)
	_, _ = h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})

	result, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.Equal(t, 50.0, result.Score)
	assert.Equal(t, []uint{42}, h.certs.issued)
}

func TestSessionCertificationFailNoCert(t *testing.T) {
	checkpointID := uint(42)
	h := newSessionHarness(t, testBank(t, false, &checkpointID))
	view, _ := h.svc.Start(50, 7)
	_, _ = h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})

	_, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)

	require.Len(t, h.progress.calls, 1)
	assert.Equal(t, 50.0, h.progress.calls[0].Score)
	assert.Empty(t, h.certs.issued)
}

func TestSessionWrongUser(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)

	_, err := h.svc.Get(view.SessionID, 8)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
	_, err = h.svc.Finish(view.SessionID, 8)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestSessionFlagTracking(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)

	require.NoError(t, h.svc.Flag(view.SessionID, 7, 100, true))
	got, _ := h.svc.Get(view.SessionID, 7)
	assert.Equal(t, []uint{100}, got.Flagged)

	require.NoError(t, h.svc.Flag(view.SessionID, 7, 100, false))
	got, _ = h.svc.Get(view.SessionID, 7)
	assert.Empty(t, got.Flagged)

	// 不属于会话的题目
	err := h.svc.Flag(view.SessionID, 7, 999, true)
	assert.True(t, util.IsKind(err, util.KindValidation))
}

func TestSessionBankEditDoesNotAffectActive(t *testing.T) {
	bank := testBank(t, false, nil)
	h := newSessionHarness(t, bank)
	view, _ := h.svc.Start(50, 7)

	// 开考后题库被清空
	bank.Questions = nil

	_, err := h.svc.SubmitAnswer(view.SessionID, 7, 100, model.Attempt{Selected: []uint{1}})
	require.NoError(t, err)
	result, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}

func TestSessionEviction(t *testing.T) {
	h := newSessionHarness(t, testBank(t, false, nil))
	view, _ := h.svc.Start(50, 7)
	_, err := h.svc.Finish(view.SessionID, 7)
	require.NoError(t, err)

	// 保留期内不回收
	h.svc.evictFinished()
	_, err = h.svc.Get(view.SessionID, 7)
	require.NoError(t, err)

	h.advance(31 * time.Minute)
	h.svc.evictFinished()
	_, err = h.svc.Get(view.SessionID, 7)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}
