package repository

import (
	"certlearn_backend/internal/model"

	"gorm.io/gorm"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) CreateBank(bank *model.QuizBank) error {
	return r.DB.Create(bank).Error
}

func (r *QuizRepository) UpdateBank(bank *model.QuizBank) error {
	return r.DB.Save(bank).Error
}

func (r *QuizRepository) DeleteBank(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bank_id = ?", id).Delete(&model.QuizBankQuestion{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.QuizBank{}, id).Error
	})
}

func (r *QuizRepository) FindBankByID(id uint) (*model.QuizBank, error) {
	var bank model.QuizBank
	err := r.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("`order` ASC") }).
		First(&bank, id).Error
	return &bank, err
}

func (r *QuizRepository) ListBanks(page, limit int) ([]model.QuizBank, int64, error) {
	var banks []model.QuizBank
	var total int64
	if err := r.DB.Model(&model.QuizBank{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.DB.Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&banks).Error
	return banks, total, err
}

func (r *QuizRepository) CreateQuestion(q *model.QuizBankQuestion) error {
	return r.DB.Create(q).Error
}

func (r *QuizRepository) FindQuestionByID(id uint) (*model.QuizBankQuestion, error) {
	var q model.QuizBankQuestion
	err := r.DB.First(&q, id).Error
	return &q, err
}

func (r *QuizRepository) UpdateQuestion(q *model.QuizBankQuestion) error {
	return r.DB.Save(q).Error
}

func (r *QuizRepository) DeleteQuestion(id uint) error {
	return r.DB.Delete(&model.QuizBankQuestion{}, id).Error
}

func (r *QuizRepository) CreateResult(result *model.QuizResult) error {
	return r.DB.Create(result).Error
}

func (r *QuizRepository) FindResultBySession(sessionID string) (*model.QuizResult, error) {
	var result model.QuizResult
	err := r.DB.Where("session_id = ?", sessionID).First(&result).Error
	return &result, err
}

func (r *QuizRepository) ListResultsByUser(userID uint) ([]model.QuizResult, error) {
	var results []model.QuizResult
	err := r.DB.Where("user_id = ?", userID).Order("finished_at DESC").Find(&results).Error
	return results, err
}
