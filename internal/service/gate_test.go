package service

import (
	"testing"

	"certlearn_backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func stageWith(mode model.GateMode, minPassed int, checkpointIDs ...uint) *model.Stage {
	stage := &model.Stage{GateMode: mode, MinPassed: minPassed}
	for _, id := range checkpointIDs {
		cp := model.Checkpoint{}
		cp.ID = id
		stage.Checkpoints = append(stage.Checkpoints, cp)
	}
	return stage
}

func progressRows(passed []uint, failed []uint) []model.UserProgress {
	var rows []model.UserProgress
	for _, id := range passed {
		rows = append(rows, model.UserProgress{CheckpointID: id, Status: model.StatusPassed})
	}
	for _, id := range failed {
		rows = append(rows, model.UserProgress{CheckpointID: id, Status: model.StatusFailed})
	}
	return rows
}

func TestEvaluateGateRequireAll(t *testing.T) {
	stage := stageWith(model.GateRequireAll, 0, 1, 2, 3)

	res := EvaluateGate(stage, progressRows([]uint{1, 2}, []uint{3}))
	assert.False(t, res.Unlocked)
	assert.Equal(t, 2, res.PassedCount)
	assert.Equal(t, 3, res.Required)

	res = EvaluateGate(stage, progressRows([]uint{1, 2, 3}, nil))
	assert.True(t, res.Unlocked)
	assert.Equal(t, 3, res.PassedCount)
}

func TestEvaluateGateMinPassed(t *testing.T) {
	stage := stageWith(model.GateMinPassed, 2, 1, 2, 3)

	res := EvaluateGate(stage, progressRows([]uint{1}, nil))
	assert.False(t, res.Unlocked)
	assert.Equal(t, 2, res.Required)

	res = EvaluateGate(stage, progressRows([]uint{1, 3}, []uint{2}))
	assert.True(t, res.Unlocked)
	assert.False(t, res.Anomaly)
}

func TestEvaluateGateMissingRowsFailClosed(t *testing.T) {
	stage := stageWith(model.GateRequireAll, 0, 1, 2)

	// 没有任何进度行：未通过
	res := EvaluateGate(stage, nil)
	assert.False(t, res.Unlocked)
	assert.Equal(t, 0, res.PassedCount)
}

func TestEvaluateGateEmptyStage(t *testing.T) {
	// 零检查点的阶段永不解锁
	stage := stageWith(model.GateRequireAll, 0)
	res := EvaluateGate(stage, nil)
	assert.False(t, res.Unlocked)
}

func TestEvaluateGateMinPassedExceedsTotal(t *testing.T) {
	// 门槛超过检查点总数：收紧为 require_all 并标记异常
	stage := stageWith(model.GateMinPassed, 5, 1, 2)

	res := EvaluateGate(stage, progressRows([]uint{1}, nil))
	assert.False(t, res.Unlocked)
	assert.Equal(t, 2, res.Required)
	assert.True(t, res.Anomaly)

	res = EvaluateGate(stage, progressRows([]uint{1, 2}, nil))
	assert.True(t, res.Unlocked)
	assert.True(t, res.Anomaly)
}

func TestEvaluateGateMinPassedNonPositive(t *testing.T) {
	stage := stageWith(model.GateMinPassed, 0, 1, 2)

	res := EvaluateGate(stage, progressRows([]uint{1}, nil))
	assert.False(t, res.Unlocked)
	assert.Equal(t, 2, res.Required)
}

func TestEvaluateGateIgnoresForeignRows(t *testing.T) {
	stage := stageWith(model.GateRequireAll, 0, 1)

	// 其他阶段的进度行不计入
	rows := progressRows([]uint{1, 99}, nil)
	res := EvaluateGate(stage, rows)
	assert.True(t, res.Unlocked)
	assert.Equal(t, 1, res.PassedCount)
}

func TestEvaluateGatePendingNotCounted(t *testing.T) {
	stage := stageWith(model.GateRequireAll, 0, 1, 2)

	rows := []model.UserProgress{
		{CheckpointID: 1, Status: model.StatusPassed},
		{CheckpointID: 2, Status: model.StatusPending},
	}
	res := EvaluateGate(stage, rows)
	assert.False(t, res.Unlocked)
	assert.Equal(t, 1, res.PassedCount)
}
