package service

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/util"
	"certlearn_backend/pkg/logger"
	"certlearn_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BankReader 题库只读视图
type BankReader interface {
	FindBankByID(id uint) (*model.QuizBank, error)
}

// ResultStore 成绩落库
type ResultStore interface {
	CreateResult(result *model.QuizResult) error
	FindResultBySession(sessionID string) (*model.QuizResult, error)
}

// QuizOutcomeRecorder 认证题库的成绩经进度服务写入进度行，
// 通过与否按绑定检查点的 PassThreshold 判定
type QuizOutcomeRecorder interface {
	RecordQuizOutcome(userID, checkpointID uint, score float64, raw json.RawMessage) (*model.UserProgress, *model.StageStatus, error)
}

// CertIssuer 认证通过后签发证书
type CertIssuer interface {
	IssueForQuiz(userID, checkpointID, bankID uint, score float64) (*model.Certificate, error)
}

// quizSession 进行中考试的进程内状态。状态机只允许 active → finished，
// 所有读写都必须持有 mu，截止时间检查与变更在同一临界区内完成。
type quizSession struct {
	mu sync.Mutex

	id           string
	userID       uint
	bankID       uint
	checkpointID *uint
	practice     bool

	questions []model.QuestionSnapshot
	answers   map[uint]model.Attempt
	flagged   map[uint]bool

	startedAt time.Time
	deadline  time.Time

	state         model.SessionState
	autoSubmitted bool
	result        *model.QuizResult

	timer *time.Timer
}

// QuizSessionService 有界时长考试会话的管理器。
// 会话状态只存在于本进程内；丢失后学员从最后一次落库的成绩重新开考，
// 不会产生损坏的成绩记录。
type QuizSessionService struct {
	Banks    BankReader
	Results  ResultStore
	Progress QuizOutcomeRecorder
	Certs    CertIssuer

	retention time.Duration

	now      func() time.Time
	schedule func(d time.Duration, f func()) *time.Timer

	mu       sync.RWMutex
	sessions map[string]*quizSession

	stopJanitor chan struct{}
}

func NewQuizSessionService(banks BankReader, results ResultStore, progress QuizOutcomeRecorder, certs CertIssuer, retention time.Duration) *QuizSessionService {
	s := &QuizSessionService{
		Banks:       banks,
		Results:     results,
		Progress:    progress,
		Certs:       certs,
		retention:   retention,
		now:         time.Now,
		schedule:    time.AfterFunc,
		sessions:    make(map[string]*quizSession),
		stopJanitor: make(chan struct{}),
	}
	return s
}

// SessionView 返回给调用方的会话视图
type SessionView struct {
	SessionID        string                   `json:"sessionId"`
	BankID           uint                     `json:"bankId"`
	State            model.SessionState       `json:"state"`
	StartedAt        time.Time                `json:"startedAt"`
	Deadline         time.Time                `json:"deadline"`
	TimeLimitSeconds int                      `json:"timeLimitSeconds"`
	Questions        []QuestionView           `json:"questions"`
	Answered         []uint                   `json:"answered"`
	Flagged          []uint                   `json:"flagged"`
	Result           *model.QuizResult        `json:"result,omitempty"`
}

type QuestionView struct {
	QuestionID uint                     `json:"questionId"`
	Prompt     string                   `json:"prompt"`
	Order      int                      `json:"order"`
	Choices    []map[string]interface{} `json:"choices"`
}

// Start 开考：对题目做不可变快照，启动单次超时定时器。
// 题库后续编辑不影响进行中的考试。
func (s *QuizSessionService) Start(bankID, userID uint) (*SessionView, error) {
	bank, err := s.Banks.FindBankByID(bankID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrBankNotFound
		}
		return nil, err
	}
	if len(bank.Questions) == 0 {
		return nil, util.NewValidationError("quiz bank %d has no questions", bankID)
	}

	snapshots := make([]model.QuestionSnapshot, 0, len(bank.Questions))
	for _, q := range bank.Questions {
		choices := q.DecodeChoices()
		if len(choices) == 0 {
			return nil, util.NewValidationError("question %d has no choices", q.ID)
		}
		snapshots = append(snapshots, model.QuestionSnapshot{
			QuestionID:    q.ID,
			Prompt:        q.Prompt,
			Order:         q.Order,
			Choices:       choices,
			PassThreshold: q.PassThreshold,
		})
	}

	now := s.now()
	sess := &quizSession{
		id:           model.GenerateUUID(),
		userID:       userID,
		bankID:       bank.ID,
		checkpointID: bank.CheckpointID,
		practice:     bank.PracticeMode,
		questions:    snapshots,
		answers:      make(map[uint]model.Attempt),
		flagged:      make(map[uint]bool),
		startedAt:    now,
		deadline:     now.Add(time.Duration(bank.TimeLimitSeconds) * time.Second),
		state:        model.SessionActive,
	}

	// 先发布会话再武装定时器，超时回调总能在 sessions 里找到它
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	timer := s.schedule(sess.deadline.Sub(now), func() {
		s.autoFinish(sess.id)
	})
	sess.mu.Lock()
	sess.timer = timer
	if sess.state != model.SessionActive {
		// 回调已经抢先交卷
		timer.Stop()
	}
	view := s.view(sess)
	sess.mu.Unlock()

	logger.Log.Info("quiz session started",
		zap.String("sessionId", sess.id),
		zap.Uint("bankId", bank.ID),
		zap.Uint("userId", userID))

	return &view, nil
}

func (s *QuizSessionService) session(sessionID string, userID uint) (*quizSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || sess.userID != userID {
		return nil, util.ErrSessionNotFound
	}
	return sess, nil
}

// AnswerFeedback 练习模式下的即时判分反馈
type AnswerFeedback struct {
	QuestionID uint     `json:"questionId"`
	Correct    bool     `json:"correct"`
	Score      *float64 `json:"score,omitempty"`
}

// SubmitAnswer 记录一题作答。只允许 active 状态，且必须在截止时间之前——
// 截止判断与写入在同一临界区，迟到的写入直接拒绝而不是被定时器竞态接受。
func (s *QuizSessionService) SubmitAnswer(sessionID string, userID, questionID uint, attempt model.Attempt) (*AnswerFeedback, error) {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != model.SessionActive {
		return nil, util.NewSessionStateError("session %s is %s, answers are closed", sessionID, sess.state)
	}
	if !s.now().Before(sess.deadline) {
		return nil, util.NewSessionStateError("session %s deadline has passed", sessionID)
	}

	snap := sess.findQuestion(questionID)
	if snap == nil {
		return nil, util.NewValidationError("question %d is not part of this session", questionID)
	}

	// 覆盖写入；最终判分统一发生在 finish，避免考中泄露答案信息
	sess.answers[questionID] = attempt

	if !sess.practice {
		return nil, nil
	}

	// 练习模式：立即判分反馈，但原始作答仍保留用于最终计分
	outcome, gradeErr := GradeCheckpoint(snapshotCheckpoint(snap), attempt)
	if gradeErr != nil {
		return nil, gradeErr
	}
	return &AnswerFeedback{
		QuestionID: questionID,
		Correct:    outcome.Status == model.StatusPassed,
		Score:      outcome.Score,
	}, nil
}

// Flag 标记题目待回看
func (s *QuizSessionService) Flag(sessionID string, userID, questionID uint, flagged bool) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != model.SessionActive {
		return util.NewSessionStateError("session %s is %s", sessionID, sess.state)
	}
	if !s.now().Before(sess.deadline) {
		return util.NewSessionStateError("session %s deadline has passed", sessionID)
	}
	if sess.findQuestion(questionID) == nil {
		return util.NewValidationError("question %d is not part of this session", questionID)
	}

	if flagged {
		sess.flagged[questionID] = true
	} else {
		delete(sess.flagged, questionID)
	}
	return nil
}

// Finish 结束会话并判分。幂等：重复调用返回已计算的成绩，不会重复判分。
func (s *QuizSessionService) Finish(sessionID string, userID uint) (*model.QuizResult, error) {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.finishLocked(sess, false)
}

// autoFinish 超时定时器的回调：会话仍 active 则自动交卷
func (s *QuizSessionService) autoFinish(sessionID string) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != model.SessionActive {
		return
	}

	if _, err := s.finishLocked(sess, true); err != nil {
		logger.Log.Error("auto-submit failed",
			zap.String("sessionId", sessionID),
			zap.Error(err))
		return
	}
	monitoring.QuizAutoSubmits.Inc()
	logger.Log.Info("quiz session auto-submitted on timeout",
		zap.String("sessionId", sessionID))
}

// finishLocked 调用方必须已持有 sess.mu。
// 定时器在成绩落库成功后才取消：落库失败时会话保持 active，
// 到期的自动交卷仍会兜底重试，学员不会停留在悬空状态。
func (s *QuizSessionService) finishLocked(sess *quizSession, auto bool) (*model.QuizResult, error) {
	if sess.state == model.SessionFinished {
		return sess.result, nil
	}

	// 逐题判分：未作答按错误计
	correct := 0
	total := len(sess.questions)
	for i := range sess.questions {
		snap := &sess.questions[i]
		attempt, answered := sess.answers[snap.QuestionID]
		if !answered {
			continue
		}
		outcome, err := GradeCheckpoint(snapshotCheckpoint(snap), attempt)
		if err != nil {
			continue
		}
		if outcome.Status == model.StatusPassed {
			correct++
		}
	}

	score := float64(correct) / float64(total) * 100
	rawAnswers, _ := json.Marshal(sess.answers)

	result := &model.QuizResult{
		SessionID:     sess.id,
		BankID:        sess.bankID,
		UserID:        sess.userID,
		Score:         score,
		Correct:       correct,
		Total:         total,
		AutoSubmitted: auto,
		Answers:       rawAnswers,
		StartedAt:     sess.startedAt,
		FinishedAt:    s.now(),
	}

	err := util.RetryOnce(util.PersistRetryBackoff, func() error {
		return s.Results.CreateResult(result)
	})
	if err != nil {
		// 成绩未落库则会话保持 active，学员可重试 finish
		return nil, util.NewPersistenceError("failed to persist quiz result", err)
	}

	sess.state = model.SessionFinished
	sess.autoSubmitted = auto
	sess.result = result
	if sess.timer != nil {
		sess.timer.Stop()
	}

	// 认证题库：成绩经 ProgressService 写入进度行，按检查点阈值
	// 判定通过并按需签发证书
	if sess.checkpointID != nil {
		row, _, err := s.Progress.RecordQuizOutcome(sess.userID, *sess.checkpointID, score, rawAnswers)
		if err != nil {
			logger.Log.Error("failed to record certification outcome",
				zap.String("sessionId", sess.id),
				zap.Error(err))
		} else if row.Status == model.StatusPassed && s.Certs != nil {
			if _, err := s.Certs.IssueForQuiz(sess.userID, *sess.checkpointID, sess.bankID, score); err != nil {
				logger.Log.Error("certificate issuance failed",
					zap.String("sessionId", sess.id),
					zap.Error(err))
			}
		}
	}

	return result, nil
}

// Get 返回会话当前视图
func (s *QuizSessionService) Get(sessionID string, userID uint) (*SessionView, error) {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	view := s.view(sess)
	return &view, nil
}

// view 调用方必须已持有 sess.mu
func (s *QuizSessionService) view(sess *quizSession) SessionView {
	questions := make([]QuestionView, 0, len(sess.questions))
	for _, q := range sess.questions {
		questions = append(questions, QuestionView{
			QuestionID: q.QuestionID,
			Prompt:     q.Prompt,
			Order:      q.Order,
			Choices:    q.PublicChoices(),
		})
	}
	answered := make([]uint, 0, len(sess.answers))
	for id := range sess.answers {
		answered = append(answered, id)
	}
	flagged := make([]uint, 0, len(sess.flagged))
	for id := range sess.flagged {
		flagged = append(flagged, id)
	}
	return SessionView{
		SessionID:        sess.id,
		BankID:           sess.bankID,
		State:            sess.state,
		StartedAt:        sess.startedAt,
		Deadline:         sess.deadline,
		TimeLimitSeconds: int(sess.deadline.Sub(sess.startedAt).Seconds()),
		Questions:        questions,
		Answered:         answered,
		Flagged:          flagged,
		Result:           sess.result,
	}
}

func (sess *quizSession) findQuestion(questionID uint) *model.QuestionSnapshot {
	for i := range sess.questions {
		if sess.questions[i].QuestionID == questionID {
			return &sess.questions[i]
		}
	}
	return nil
}

// snapshotCheckpoint 把题目快照转成检查点形态复用判分逻辑
func snapshotCheckpoint(snap *model.QuestionSnapshot) *model.Checkpoint {
	cp := &model.Checkpoint{
		Kind:          model.CheckpointQuiz,
		Prompt:        snap.Prompt,
		PassThreshold: snap.PassThreshold,
	}
	cp.ID = snap.QuestionID
	for _, c := range snap.Choices {
		choice := model.CheckpointChoice{Text: c.Text, Correct: c.Correct}
		choice.ID = c.ID
		cp.Choices = append(cp.Choices, choice)
	}
	return cp
}

// StartJanitor 启动清理协程，回收保留期之外的已结束会话
func (s *QuizSessionService) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.evictFinished()
			case <-s.stopJanitor:
				return
			}
		}
	}()
}

func (s *QuizSessionService) StopJanitor() {
	close(s.stopJanitor)
}

func (s *QuizSessionService) evictFinished() {
	cutoff := s.now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		evict := sess.state == model.SessionFinished && sess.result != nil && sess.result.FinishedAt.Before(cutoff)
		sess.mu.Unlock()
		if evict {
			delete(s.sessions, id)
		}
	}
}
