package service

import (
	"encoding/json"
	"errors"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/repository"
	"certlearn_backend/internal/util"

	"gorm.io/gorm"
)

// QuizBankService 题库创作接口。编辑只影响后续开考，
// 进行中的会话持有快照不受影响。
type QuizBankService struct {
	Repo *repository.QuizRepository
}

func NewQuizBankService(repo *repository.QuizRepository) *QuizBankService {
	return &QuizBankService{Repo: repo}
}

func (s *QuizBankService) CreateBank(bank *model.QuizBank) error {
	if bank.Title == "" {
		return util.NewValidationError("bank title is required")
	}
	if bank.TimeLimitSeconds <= 0 {
		return util.NewValidationError("time limit must be positive")
	}
	return s.Repo.CreateBank(bank)
}

func (s *QuizBankService) UpdateBank(id uint, updated *model.QuizBank) (*model.QuizBank, error) {
	if updated.Title == "" {
		return nil, util.NewValidationError("bank title is required")
	}
	if updated.TimeLimitSeconds <= 0 {
		return nil, util.NewValidationError("time limit must be positive")
	}
	bank, err := s.GetBank(id)
	if err != nil {
		return nil, err
	}
	bank.LessonID = updated.LessonID
	bank.Title = updated.Title
	bank.TimeLimitSeconds = updated.TimeLimitSeconds
	bank.PracticeMode = updated.PracticeMode
	bank.CheckpointID = updated.CheckpointID
	// 只更新题库本身，题目经题目接口单独维护
	bank.Questions = nil
	if err := s.Repo.UpdateBank(bank); err != nil {
		return nil, err
	}
	return bank, nil
}

func (s *QuizBankService) DeleteBank(id uint) error {
	return s.Repo.DeleteBank(id)
}

func (s *QuizBankService) GetBank(id uint) (*model.QuizBank, error) {
	bank, err := s.Repo.FindBankByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrBankNotFound
		}
		return nil, err
	}
	return bank, nil
}

func (s *QuizBankService) ListBanks(page, limit int) ([]model.QuizBank, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.Repo.ListBanks(page, limit)
}

// AddQuestion 新增题目，选项在写入前校验结构
func (s *QuizBankService) AddQuestion(bankID uint, q *model.QuizBankQuestion) error {
	if _, err := s.GetBank(bankID); err != nil {
		return err
	}
	q.BankID = bankID
	if err := validateQuestion(q); err != nil {
		return err
	}
	return s.Repo.CreateQuestion(q)
}

func (s *QuizBankService) UpdateQuestion(id uint, updated *model.QuizBankQuestion) (*model.QuizBankQuestion, error) {
	q, err := s.Repo.FindQuestionByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	q.Prompt = updated.Prompt
	q.Order = updated.Order
	q.Choices = updated.Choices
	q.PassThreshold = updated.PassThreshold
	if err := validateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateQuestion(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuizBankService) DeleteQuestion(id uint) error {
	return s.Repo.DeleteQuestion(id)
}

func (s *QuizBankService) ListResults(userID uint) ([]model.QuizResult, error) {
	return s.Repo.ListResultsByUser(userID)
}

func validateQuestion(q *model.QuizBankQuestion) error {
	if q.Prompt == "" {
		return util.NewValidationError("question prompt is required")
	}
	var choices []model.QuizChoice
	if err := json.Unmarshal(q.Choices, &choices); err != nil || len(choices) == 0 {
		return util.NewValidationError("question needs at least one choice")
	}
	hasCorrect := false
	seen := make(map[uint]bool, len(choices))
	for _, c := range choices {
		if seen[c.ID] {
			return util.NewValidationError("duplicate choice id %d", c.ID)
		}
		seen[c.ID] = true
		if c.Correct {
			hasCorrect = true
		}
	}
	if !hasCorrect {
		return util.NewValidationError("question needs at least one correct choice")
	}
	if q.PassThreshold <= 0 || q.PassThreshold > 1 {
		return util.NewValidationError("pass threshold must be in (0, 1]")
	}
	return nil
}
