package service

import "certlearn_backend/internal/model"

// GateResult 闸门计算结果。Anomaly 表示规则在创作期就已违反约束
// （min_passed 超过检查点总数），计算时按 require_all 收紧处理，由调用方记日志。
type GateResult struct {
	Unlocked    bool
	PassedCount int
	Required    int
	Anomaly     bool
}

// EvaluateGate 纯函数：阶段定义 + 进度行 → 是否解锁。
// 无时间依赖，相同输入恒返回相同结果；没有进度行的检查点按未通过处理（fail-closed）。
func EvaluateGate(stage *model.Stage, rows []model.UserProgress) GateResult {
	ids := make(map[uint]bool, len(stage.Checkpoints))
	for _, cp := range stage.Checkpoints {
		ids[cp.ID] = true
	}

	passed := 0
	for _, row := range rows {
		if ids[row.CheckpointID] && row.Status == model.StatusPassed {
			passed++
		}
	}

	total := len(stage.Checkpoints)
	required := total
	anomaly := false

	if stage.GateMode == model.GateMinPassed {
		required = stage.MinPassed
		if required > total {
			// 创作期约束被破坏：收紧为 require_all，绝不放宽
			required = total
			anomaly = true
		}
		if required <= 0 {
			required = total
		}
	}

	return GateResult{
		Unlocked:    total > 0 && passed >= required,
		PassedCount: passed,
		Required:    required,
		Anomaly:     anomaly,
	}
}
