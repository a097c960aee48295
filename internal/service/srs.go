package service

import (
	"time"

	"certlearn_backend/internal/model"
)

// Quality 学员对卡片回忆强度的自评
type Quality int

const (
	QualityAgain Quality = iota
	QualityHard
	QualityGood
	QualityEasy
)

func (q Quality) Valid() bool {
	return q >= QualityAgain && q <= QualityEasy
}

func (q Quality) String() string {
	switch q {
	case QualityAgain:
		return "again"
	case QualityHard:
		return "hard"
	case QualityGood:
		return "good"
	case QualityEasy:
		return "easy"
	default:
		return "unknown"
	}
}

// 间隔与难度系数的策略常量。具体数值是策略选择，
// 唯一硬约束是结果间隔保持 Again < Hard < Good < Easy 的序关系。
const (
	// 最小间隔单位：1 分钟
	minIntervalMinutes = 1
	// 新卡 Hard：6 个最小单位
	hardNewMinutes = 6
	// Good 毕业到 1 天
	graduateMinutes = 1440
	// 新卡 Easy 直接到 4 天
	easyNewMinutes = 4 * 1440

	// 已毕业卡片的 Hard 增长系数
	hardGrownFactor = 1.2
	// Easy 在 Good 基础上的额外系数
	easyBonus = 1.3

	easeDefault    = 2.5
	easeFloor      = 1.3
	easeAgainDelta = -0.20
	easeHardDelta  = -0.05
	easeEasyDelta  = 0.15
)

// ScheduleReview 纯函数：根据质量评分推进卡片的间隔、难度和到期时间。
// 不修改入参；reviewCount 每次调用恰好加一；nextReview 严格晚于 now。
func ScheduleReview(card model.Flashcard, quality Quality, now time.Time) model.Flashcard {
	updated := card
	updated.ReviewCount = card.ReviewCount + 1
	reviewedAt := now
	updated.LastReviewed = &reviewedAt

	ease := card.Ease
	if ease == 0 {
		ease = easeDefault
	}

	graduated := card.Graduated()

	var interval float64
	switch quality {
	case QualityAgain:
		// 重置到最小单位，间隔只在 Again 时回落
		interval = minIntervalMinutes
		ease += easeAgainDelta
	case QualityHard:
		if graduated {
			interval = card.IntervalMinutes * hardGrownFactor
		} else {
			interval = hardNewMinutes
		}
		ease += easeHardDelta
	case QualityGood:
		if graduated {
			interval = card.IntervalMinutes * ease
		} else {
			interval = graduateMinutes
		}
	case QualityEasy:
		if graduated {
			interval = card.IntervalMinutes * ease * easyBonus
		} else {
			interval = easyNewMinutes
		}
		ease += easeEasyDelta
	default:
		// 非法评分不应到达这里，调用方已校验；保守地按 Again 处理
		interval = minIntervalMinutes
	}

	if ease < easeFloor {
		ease = easeFloor
	}

	// 毕业后间隔至少一天，且 Good/Easy 不回落
	if graduated && quality >= QualityGood && interval < card.IntervalMinutes {
		interval = card.IntervalMinutes
	}
	if interval < minIntervalMinutes {
		interval = minIntervalMinutes
	}

	updated.Ease = ease
	updated.IntervalMinutes = interval
	updated.NextReview = now.Add(time.Duration(interval * float64(time.Minute)))
	return updated
}
