package model

import "encoding/json"

// ProgressStatus 检查点完成状态
type ProgressStatus string

const (
	StatusPending ProgressStatus = "pending"
	StatusPassed  ProgressStatus = "passed"
	StatusFailed  ProgressStatus = "failed"
)

// Attempt 学员提交的原始作答
type Attempt struct {
	// ack 类型：确认已读
	Acknowledged bool `json:"acknowledged,omitempty"`
	// short_answer/task 类型：作答文本
	Text string `json:"text,omitempty"`
	// quiz 类型：选中的选项 ID 集合
	Selected []uint `json:"selected,omitempty"`
}

// Empty 判断作答是否为空提交
func (a Attempt) Empty() bool {
	return !a.Acknowledged && a.Text == "" && len(a.Selected) == 0
}

// UserProgress (userId, checkpointId) 唯一，重复提交覆盖而非新增
type UserProgress struct {
	BaseModel
	UserID       uint            `gorm:"uniqueIndex:idx_user_checkpoint;not null" json:"userId"`
	CheckpointID uint            `gorm:"uniqueIndex:idx_user_checkpoint;not null" json:"checkpointId"`
	Status       ProgressStatus  `gorm:"type:enum('pending','passed','failed');default:'pending'" json:"status"`
	Score        *float64        `json:"score,omitempty"`
	Attempt      json.RawMessage `gorm:"type:json" json:"attempt,omitempty"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}

// StageStatus 闸门计算结果，按需派生，不落库
type StageStatus struct {
	StageID     uint `json:"stageId"`
	Unlocked    bool `json:"unlocked"`
	PassedCount int  `json:"passedCount"`
	Required    int  `json:"required"`
	// 前置阶段是否已解锁（第一阶段恒为 true）
	Available bool `json:"available"`
	// 解锁后的下一阶段（无则为 nil）
	NextStageID *uint `json:"nextStageId,omitempty"`
}
