package repository

import (
	"time"

	"certlearn_backend/internal/model"

	"gorm.io/gorm"
)

type FlashcardRepository struct {
	DB *gorm.DB
}

func NewFlashcardRepository(db *gorm.DB) *FlashcardRepository {
	return &FlashcardRepository{DB: db}
}

func (r *FlashcardRepository) CreateBatch(cards []model.Flashcard) error {
	if len(cards) == 0 {
		return nil
	}
	return r.DB.Create(&cards).Error
}

func (r *FlashcardRepository) FindByID(id uint) (*model.Flashcard, error) {
	var card model.Flashcard
	err := r.DB.First(&card, id).Error
	return &card, err
}

func (r *FlashcardRepository) Save(card *model.Flashcard) error {
	return r.DB.Save(card).Error
}

// ListDue 返回到期卡片，最早到期的排前面
func (r *FlashcardRepository) ListDue(userID uint, now time.Time, limit int) ([]model.Flashcard, error) {
	var cards []model.Flashcard
	q := r.DB.Where("user_id = ? AND next_review <= ?", userID, now).
		Order("next_review ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&cards).Error
	return cards, err
}

func (r *FlashcardRepository) ListByLesson(lessonID, userID uint) ([]model.Flashcard, error) {
	var cards []model.Flashcard
	err := r.DB.Where("lesson_id = ? AND user_id = ?", lessonID, userID).Find(&cards).Error
	return cards, err
}

// DeleteByLesson 课时删除时级联清理其卡片
func (r *FlashcardRepository) DeleteByLesson(lessonID uint) error {
	return r.DB.Where("lesson_id = ?", lessonID).Delete(&model.Flashcard{}).Error
}
