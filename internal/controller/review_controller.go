package controller

import (
	"strconv"

	"certlearn_backend/internal/service"
	"certlearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ReviewController 间隔复习队列与复习提交
type ReviewController struct {
	SRSService *service.SRSService
}

func NewReviewController(srsService *service.SRSService) *ReviewController {
	return &ReviewController{SRSService: srsService}
}

// ListDueCards godoc
// @Summary 到期复习队列
// @Description 返回当前学员已到期的卡片，最早到期的排前面
// @Tags 复习
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "最多返回数量，默认 20"
// @Success 200 {object} util.Response{data=[]model.Flashcard}
// @Router /api/reviews/due [get]
func (c *ReviewController) ListDueCards(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 200 {
		limit = 20
	}

	cards, err := c.SRSService.DueCards(claims.UserID, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, cards)
}

// SubmitReview godoc
// @Summary 提交一次复习
// @Description 按评分质量（0=忘记 1=困难 2=良好 3=轻松）推进卡片调度；
// @Description 同一 reviewToken 的重复提交被拒绝
// @Tags 复习
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "卡片ID"
// @Param body body service.ReviewRequest true "复习评分"
// @Success 200 {object} util.Response{data=model.Flashcard} "更新后的调度状态"
// @Failure 400 {object} util.Response "评分非法或重复提交"
// @Failure 503 {object} util.Response "存储不可用"
// @Router /api/cards/{id}/reviews [post]
func (c *ReviewController) SubmitReview(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req service.ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	card, err := c.SRSService.RecordReview(ctx.Request.Context(), claims.UserID, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, card)
}
