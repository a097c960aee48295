package service

import (
	"encoding/json"
	"testing"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quizCheckpoint(threshold float64, correctIDs []uint, wrongIDs []uint) *model.Checkpoint {
	cp := &model.Checkpoint{Kind: model.CheckpointQuiz, PassThreshold: threshold}
	for _, id := range correctIDs {
		ch := model.CheckpointChoice{Correct: true}
		ch.ID = id
		cp.Choices = append(cp.Choices, ch)
	}
	for _, id := range wrongIDs {
		ch := model.CheckpointChoice{}
		ch.ID = id
		cp.Choices = append(cp.Choices, ch)
	}
	return cp
}

func textCheckpoint(keys ...string) *model.Checkpoint {
	raw, _ := json.Marshal(keys)
	return &model.Checkpoint{Kind: model.CheckpointShortAnswer, AnswerKeys: raw}
}

func TestGradeAck(t *testing.T) {
	cp := &model.Checkpoint{Kind: model.CheckpointAck}

	out, err := GradeCheckpoint(cp, model.Attempt{Acknowledged: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, out.Status)
	require.NotNil(t, out.Score)
	assert.Equal(t, 100.0, *out.Score)

	_, err = GradeCheckpoint(cp, model.Attempt{})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))
}

func TestGradeQuizSingleSelect(t *testing.T) {
	cp := quizCheckpoint(1, []uint{1}, []uint{2, 3})

	out, err := GradeCheckpoint(cp, model.Attempt{Selected: []uint{1}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, out.Status)
	assert.Equal(t, 100.0, *out.Score)

	// 错误选项：无部分分
	out, err = GradeCheckpoint(cp, model.Attempt{Selected: []uint{2}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, 0.0, *out.Score)

	// 正确项加错误项也判零
	out, err = GradeCheckpoint(cp, model.Attempt{Selected: []uint{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, 0.0, *out.Score)
}

func TestGradeQuizMultiSelectRatio(t *testing.T) {
	cp := quizCheckpoint(0.5, []uint{1, 2, 3, 4}, []uint{5})

	// 命中 2/4，达到 0.5 门槛
	out, err := GradeCheckpoint(cp, model.Attempt{Selected: []uint{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, out.Status)
	assert.Equal(t, 50.0, *out.Score)

	// 命中 1/4，低于门槛
	out, err = GradeCheckpoint(cp, model.Attempt{Selected: []uint{3}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, 25.0, *out.Score)
}

func TestGradeQuizMultiSelectOverSelectionZeroes(t *testing.T) {
	cp := quizCheckpoint(0.5, []uint{1, 2, 3}, []uint{9})

	// 全部正确项加一个错误项：直接判零
	out, err := GradeCheckpoint(cp, model.Attempt{Selected: []uint{1, 2, 3, 9}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, 0.0, *out.Score)
}

func TestGradeQuizDefaultThreshold(t *testing.T) {
	// 未设门槛按 1.0 处理：必须全部命中
	cp := quizCheckpoint(0, []uint{1, 2}, nil)

	out, err := GradeCheckpoint(cp, model.Attempt{Selected: []uint{1}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, out.Status)

	out, err = GradeCheckpoint(cp, model.Attempt{Selected: []uint{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, out.Status)
}

func TestGradeQuizNoChoices(t *testing.T) {
	cp := &model.Checkpoint{Kind: model.CheckpointQuiz}
	_, err := GradeCheckpoint(cp, model.Attempt{Selected: []uint{1}})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))
}

func TestGradeTextNormalization(t *testing.T) {
	cp := textCheckpoint("Hello World")

	cases := []string{
		"hello world",
		"  HELLO   WORLD  ",
		"Hello\tWorld",
	}
	for _, text := range cases {
		out, err := GradeCheckpoint(cp, model.Attempt{Text: text})
		require.NoError(t, err, "text %q", text)
		assert.Equal(t, model.StatusPassed, out.Status, "text %q", text)
	}

	out, err := GradeCheckpoint(cp, model.Attempt{Text: "helloworld"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, 0.0, *out.Score)
}

func TestGradeTextMultipleKeys(t *testing.T) {
	cp := textCheckpoint("int", "integer")

	out, err := GradeCheckpoint(cp, model.Attempt{Text: "Integer"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPassed, out.Status)
}

func TestGradeTextEmptyAttempt(t *testing.T) {
	cp := textCheckpoint("answer")
	_, err := GradeCheckpoint(cp, model.Attempt{Text: "   "})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))
}

func TestGradeTextRubricIndeterminate(t *testing.T) {
	cp := &model.Checkpoint{Kind: model.CheckpointShortAnswer, RequiresRubric: true}

	out, err := GradeCheckpoint(cp, model.Attempt{Text: "essay response"})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindIndeterminate))
	// 状态保持 pending，等待外部评分
	assert.Equal(t, model.StatusPending, out.Status)
	assert.Nil(t, out.Score)
}

func TestGradeTextNoKeysNoRubric(t *testing.T) {
	cp := &model.Checkpoint{Kind: model.CheckpointShortAnswer}
	_, err := GradeCheckpoint(cp, model.Attempt{Text: "anything"})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))
}

func TestGradeUnknownKind(t *testing.T) {
	cp := &model.Checkpoint{Kind: "essay"}
	_, err := GradeCheckpoint(cp, model.Attempt{Text: "x"})
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidation))
}

func TestGradeDeterministic(t *testing.T) {
	cp := quizCheckpoint(0.5, []uint{1, 2}, []uint{3})
	attempt := model.Attempt{Selected: []uint{1}}

	first, err := GradeCheckpoint(cp, attempt)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		out, err := GradeCheckpoint(cp, attempt)
		require.NoError(t, err)
		assert.Equal(t, first.Status, out.Status)
		assert.Equal(t, *first.Score, *out.Score)
	}
}
