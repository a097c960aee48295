package model

import "encoding/json"

// 内容层级: Track → Module → Lesson → Stage → Checkpoint
// 兄弟节点的 Order 在同一父级内唯一，由 ContentService 在编辑时校验

type Track struct {
	BaseModel
	Title       string        `gorm:"size:255;not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	Order       int           `gorm:"default:0" json:"order"`
	Published   bool          `gorm:"default:false" json:"published"`
	Modules     []TrackModule `gorm:"foreignKey:TrackID" json:"modules,omitempty"`
}

func (Track) TableName() string {
	return "tracks"
}

type TrackModule struct {
	BaseModel
	TrackID     uint     `gorm:"index;not null" json:"trackId"`
	Title       string   `gorm:"size:255;not null" json:"title"`
	Description string   `gorm:"type:text" json:"description"`
	Order       int      `gorm:"default:0" json:"order"`
	Lessons     []Lesson `gorm:"foreignKey:ModuleID" json:"lessons,omitempty"`
}

func (TrackModule) TableName() string {
	return "track_modules"
}

type Lesson struct {
	BaseModel
	ModuleID uint    `gorm:"index;not null" json:"moduleId"`
	Title    string  `gorm:"size:255;not null" json:"title"`
	Content  string  `gorm:"type:text" json:"content"`
	Order    int     `gorm:"default:0" json:"order"`
	Stages   []Stage `gorm:"foreignKey:LessonID" json:"stages,omitempty"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// GateMode 阶段闸门规则，二选一
type GateMode string

const (
	GateRequireAll GateMode = "require_all"
	GateMinPassed  GateMode = "min_passed"
)

type Stage struct {
	BaseModel
	LessonID    uint         `gorm:"index;not null" json:"lessonId"`
	Title       string       `gorm:"size:255;not null" json:"title"`
	Order       int          `gorm:"default:0" json:"order"`
	GateMode    GateMode     `gorm:"type:enum('require_all','min_passed');default:'require_all'" json:"gateMode"`
	MinPassed   int          `gorm:"default:0" json:"minPassed"`
	Checkpoints []Checkpoint `gorm:"foreignKey:StageID" json:"checkpoints,omitempty"`
}

func (Stage) TableName() string {
	return "stages"
}

// CheckpointKind 检查点类型
type CheckpointKind string

const (
	CheckpointAck         CheckpointKind = "ack"
	CheckpointTask        CheckpointKind = "task"
	CheckpointQuiz        CheckpointKind = "quiz"
	CheckpointShortAnswer CheckpointKind = "short_answer"
)

type Checkpoint struct {
	BaseModel
	StageID uint           `gorm:"index;not null" json:"stageId"`
	Kind    CheckpointKind `gorm:"type:enum('ack','task','quiz','short_answer');not null" json:"kind"`
	Prompt  string         `gorm:"type:text" json:"prompt"`
	Order   int            `gorm:"default:0" json:"order"`

	// quiz 类型的选项
	Choices []CheckpointChoice `gorm:"foreignKey:CheckpointID" json:"choices,omitempty"`

	// short_answer/task 的判分数据：可接受答案的 JSON 数组
	AnswerKeys json.RawMessage `gorm:"type:json" json:"answerKeys,omitempty"`
	// 需要人工/AI 评分的题目没有确定性答案
	RequiresRubric bool `gorm:"default:false" json:"requiresRubric"`

	// 多选 quiz 的及格线 (0,1]，单选题忽略
	PassThreshold float64 `gorm:"default:1" json:"passThreshold"`
}

func (Checkpoint) TableName() string {
	return "checkpoints"
}

// AcceptedAnswers 解析 AnswerKeys JSON 数组
func (c *Checkpoint) AcceptedAnswers() []string {
	if len(c.AnswerKeys) == 0 {
		return nil
	}
	var keys []string
	if err := json.Unmarshal(c.AnswerKeys, &keys); err != nil {
		return nil
	}
	return keys
}

// MultiSelect 通过正确选项数判定单选/多选
func (c *Checkpoint) MultiSelect() bool {
	n := 0
	for _, ch := range c.Choices {
		if ch.Correct {
			n++
		}
	}
	return n > 1
}

type CheckpointChoice struct {
	BaseModel
	CheckpointID uint   `gorm:"index;not null" json:"checkpointId"`
	Text         string `gorm:"size:500;not null" json:"text"`
	Correct      bool   `gorm:"default:false" json:"correct"`
	Order        int    `gorm:"default:0" json:"order"`
}

func (CheckpointChoice) TableName() string {
	return "checkpoint_choices"
}
