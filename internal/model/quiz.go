package model

import (
	"encoding/json"
	"time"
)

// QuizBank 题库，开考时对题目做不可变快照
type QuizBank struct {
	BaseModel
	LessonID         *uint  `gorm:"index" json:"lessonId,omitempty"`
	Title            string `gorm:"size:255;not null" json:"title"`
	TimeLimitSeconds int    `gorm:"default:600" json:"timeLimitSeconds"`
	// PracticeMode 开启后提交答案立即反馈判分
	PracticeMode bool `gorm:"default:false" json:"practiceMode"`
	// 绑定认证检查点后，成绩通过 ProgressService 落库
	CheckpointID *uint              `gorm:"index" json:"checkpointId,omitempty"`
	Questions    []QuizBankQuestion `gorm:"foreignKey:BankID" json:"questions,omitempty"`
}

func (QuizBank) TableName() string {
	return "quiz_banks"
}

type QuizBankQuestion struct {
	BaseModel
	BankID uint   `gorm:"index;not null" json:"bankId"`
	Prompt string `gorm:"type:text;not null" json:"prompt"`
	Order  int    `gorm:"default:0" json:"order"`
	// Choices 选项 JSON 数组: [{"id":1,"text":"...","correct":true}, ...]
	Choices json.RawMessage `gorm:"type:json" json:"choices"`
	// 多选题及格线 (0,1]
	PassThreshold float64 `gorm:"default:1" json:"passThreshold"`
}

func (QuizBankQuestion) TableName() string {
	return "quiz_bank_questions"
}

type QuizChoice struct {
	ID      uint   `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// DecodeChoices 解析选项 JSON
func (q *QuizBankQuestion) DecodeChoices() []QuizChoice {
	if len(q.Choices) == 0 {
		return nil
	}
	var cs []QuizChoice
	if err := json.Unmarshal(q.Choices, &cs); err != nil {
		return nil
	}
	return cs
}

// SessionState 考试会话状态机: active → finished
type SessionState string

const (
	SessionActive   SessionState = "active"
	SessionFinished SessionState = "finished"
)

// QuestionSnapshot 开考时刻的题目快照，题库后续编辑不影响进行中的考试
type QuestionSnapshot struct {
	QuestionID    uint         `json:"questionId"`
	Prompt        string       `json:"prompt"`
	Order         int          `json:"order"`
	Choices       []QuizChoice `json:"-"`
	PassThreshold float64      `json:"-"`
}

// PublicChoices 返回不含答案的选项视图
func (q QuestionSnapshot) PublicChoices() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(q.Choices))
	for _, c := range q.Choices {
		out = append(out, map[string]interface{}{"id": c.ID, "text": c.Text})
	}
	return out
}

// QuizResult 存储已结束会话的成绩
type QuizResult struct {
	BaseModel
	SessionID     string          `gorm:"size:36;uniqueIndex;not null" json:"sessionId"`
	BankID        uint            `gorm:"index;not null" json:"bankId"`
	UserID        uint            `gorm:"index;not null" json:"userId"`
	Score         float64         `gorm:"not null" json:"score"`
	Correct       int             `gorm:"not null" json:"correct"`
	Total         int             `gorm:"not null" json:"total"`
	AutoSubmitted bool            `gorm:"default:false" json:"autoSubmitted"`
	Answers       json.RawMessage `gorm:"type:json" json:"answers,omitempty"`
	StartedAt     time.Time       `json:"startedAt"`
	FinishedAt    time.Time       `json:"finishedAt"`
}

func (QuizResult) TableName() string {
	return "quiz_results"
}
