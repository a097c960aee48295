package controller

import (
	"certlearn_backend/internal/model"
	"certlearn_backend/internal/service"
	"certlearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ProgressController 作答提交与解锁状态查询
type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// AttemptRequest 一次作答提交
type AttemptRequest struct {
	Acknowledged bool   `json:"acknowledged"`
	Text         string `json:"text"`
	Selected     []uint `json:"selected"`
}

// SubmitAttempt godoc
// @Summary 提交检查点作答
// @Description 判分并覆盖写入进度行，返回最新进度与所属阶段的闸门状态
// @Tags 进度
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "检查点ID"
// @Param body body AttemptRequest true "作答内容"
// @Success 200 {object} util.Response{data=object} "判分完成"
// @Success 202 {object} util.Response "已受理，待外部评分"
// @Failure 400 {object} util.Response "作答非法，进度行未变更"
// @Failure 503 {object} util.Response "存储不可用"
// @Router /api/checkpoints/{id}/attempts [post]
func (c *ProgressController) SubmitAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req AttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt := model.Attempt{
		Acknowledged: req.Acknowledged,
		Text:         req.Text,
		Selected:     req.Selected,
	}

	row, stage, err := c.ProgressService.RecordAttempt(claims.UserID, id, attempt)
	if err != nil {
		if util.IsKind(err, util.KindIndeterminate) {
			// pending 行已落库，结果待外部评分
			util.Accepted(ctx, util.KindIndeterminate, err.Error(), gin.H{
				"progress": row,
				"stage":    stage,
			})
			return
		}
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"progress": row,
		"stage":    stage,
	})
}

// GetCheckpointProgress godoc
// @Summary 当前学员在某检查点的进度
// @Tags 进度
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "检查点ID"
// @Success 200 {object} util.Response{data=model.UserProgress}
// @Failure 404 {object} util.Response "尚无提交记录"
// @Router /api/checkpoints/{id}/progress [get]
func (c *ProgressController) GetCheckpointProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}

	row, err := c.ProgressService.CheckpointProgress(claims.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, row)
}

// GetStageStatus godoc
// @Summary 阶段闸门状态
// @Description 按需派生：通过数、门槛、是否解锁、下一阶段
// @Tags 进度
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "阶段ID"
// @Success 200 {object} util.Response{data=model.StageStatus}
// @Router /api/stages/{id}/status [get]
func (c *ProgressController) GetStageStatus(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}

	status, err := c.ProgressService.StageStatus(claims.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// GetLessonStatus godoc
// @Summary 课时内全部阶段的解锁状态
// @Description 阶段链式可用：只有前置阶段解锁后，后续阶段才开放提交
// @Tags 进度
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response{data=[]model.StageStatus}
// @Router /api/lessons/{id}/status [get]
func (c *ProgressController) GetLessonStatus(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}

	statuses, err := c.ProgressService.LessonStatus(claims.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, statuses)
}
