package service

import (
	"strings"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/util"
)

// GradeOutcome 判分结果，只计算不落库
type GradeOutcome struct {
	Status model.ProgressStatus
	Score  *float64
}

// GradeCheckpoint 纯函数判分：checkpoint 定义 + 作答 → 结果。
// 持久化是 ProgressService 的职责，这里没有任何副作用。
func GradeCheckpoint(cp *model.Checkpoint, attempt model.Attempt) (GradeOutcome, error) {
	switch cp.Kind {
	case model.CheckpointAck:
		return gradeAck(attempt)
	case model.CheckpointQuiz:
		return gradeQuiz(cp, attempt)
	case model.CheckpointShortAnswer, model.CheckpointTask:
		return gradeText(cp, attempt)
	default:
		return GradeOutcome{}, util.NewValidationError("unknown checkpoint kind %q", cp.Kind)
	}
}

func gradeAck(attempt model.Attempt) (GradeOutcome, error) {
	if attempt.Empty() {
		// 空提交必须显式失败，调用方需重新提交
		return GradeOutcome{}, util.NewValidationError("ack checkpoint requires a non-empty attempt")
	}
	score := 100.0
	return GradeOutcome{Status: model.StatusPassed, Score: &score}, nil
}

func gradeQuiz(cp *model.Checkpoint, attempt model.Attempt) (GradeOutcome, error) {
	if len(cp.Choices) == 0 {
		return GradeOutcome{}, util.NewValidationError("quiz checkpoint %d has no choices", cp.ID)
	}

	correct := make(map[uint]bool)
	for _, ch := range cp.Choices {
		if ch.Correct {
			correct[ch.ID] = true
		}
	}

	selected := make(map[uint]bool, len(attempt.Selected))
	for _, id := range attempt.Selected {
		selected[id] = true
	}

	if !cp.MultiSelect() {
		// 单选：选中集合与正确集合完全一致才得分，无部分分
		score := 0.0
		status := model.StatusFailed
		if setsEqual(selected, correct) {
			score = 100.0
			status = model.StatusPassed
		}
		return GradeOutcome{Status: status, Score: &score}, nil
	}

	// 多选：score = 命中正确项数/正确项总数，错选一项直接判零
	matched := 0
	overSelected := false
	for id := range selected {
		if correct[id] {
			matched++
		} else {
			overSelected = true
		}
	}

	ratio := 0.0
	if !overSelected {
		ratio = float64(matched) / float64(len(correct))
	}

	threshold := cp.PassThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 1.0
	}

	score := ratio * 100
	status := model.StatusFailed
	if ratio >= threshold {
		status = model.StatusPassed
	}
	return GradeOutcome{Status: status, Score: &score}, nil
}

func gradeText(cp *model.Checkpoint, attempt model.Attempt) (GradeOutcome, error) {
	keys := cp.AcceptedAnswers()
	if len(keys) == 0 {
		if cp.RequiresRubric {
			// 没有确定性答案，等待外部评分，状态保持 pending
			return GradeOutcome{Status: model.StatusPending},
				util.NewIndeterminateGrading("checkpoint requires rubric-based grading")
		}
		return GradeOutcome{}, util.NewValidationError("checkpoint %d has no answer key", cp.ID)
	}

	if strings.TrimSpace(attempt.Text) == "" {
		return GradeOutcome{}, util.NewValidationError("attempt text is required")
	}

	normalized := NormalizeAnswer(attempt.Text)
	for _, key := range keys {
		if normalized == NormalizeAnswer(key) {
			score := 100.0
			return GradeOutcome{Status: model.StatusPassed, Score: &score}, nil
		}
	}

	score := 0.0
	return GradeOutcome{Status: model.StatusFailed, Score: &score}, nil
}

// NormalizeAnswer 去首尾空白、转小写、压缩连续空白
func NormalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func setsEqual(a, b map[uint]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
