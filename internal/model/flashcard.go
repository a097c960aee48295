package model

import "time"

// Flashcard 间隔复习卡片，调度状态只由 SRSService 变更
type Flashcard struct {
	BaseModel
	LessonID uint   `gorm:"index;not null" json:"lessonId"`
	UserID   uint   `gorm:"index;not null" json:"userId"`
	Front    string `gorm:"type:text;not null" json:"front"`
	Back     string `gorm:"type:text;not null" json:"back"`

	// Ease 难度系数（SM-2 风格），基线 2.5，下限 1.3
	Ease float64 `gorm:"default:2.5" json:"ease"`
	// IntervalMinutes 当前间隔，分钟为最小单位
	IntervalMinutes float64    `gorm:"default:0" json:"intervalMinutes"`
	ReviewCount     int        `gorm:"default:0" json:"reviewCount"`
	LastReviewed    *time.Time `json:"lastReviewed,omitempty"`
	NextReview      time.Time  `gorm:"index" json:"nextReview"`
}

func (Flashcard) TableName() string {
	return "flashcards"
}

// Graduated 卡片是否已脱离新卡阶段（间隔达到一天）
func (f *Flashcard) Graduated() bool {
	return f.IntervalMinutes >= 1440
}
