package controller

import (
	"encoding/json"
	"strconv"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/service"
	"certlearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// QuizController 题库创作与考试会话
type QuizController struct {
	BankService    *service.QuizBankService
	SessionService *service.QuizSessionService
}

func NewQuizController(bankService *service.QuizBankService, sessionService *service.QuizSessionService) *QuizController {
	return &QuizController{
		BankService:    bankService,
		SessionService: sessionService,
	}
}

// BankRequest 题库创建/更新请求
type BankRequest struct {
	LessonID         *uint  `json:"lessonId"`
	Title            string `json:"title" binding:"required"`
	TimeLimitSeconds int    `json:"timeLimitSeconds" binding:"required,min=1"`
	PracticeMode     bool   `json:"practiceMode"`
	CheckpointID     *uint  `json:"checkpointId"`
}

// CreateBank godoc
// @Summary 创建题库
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body BankRequest true "题库信息"
// @Success 201 {object} util.Response{data=model.QuizBank}
// @Router /api/quiz/banks [post]
func (c *QuizController) CreateBank(ctx *gin.Context) {
	var req BankRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	bank := &model.QuizBank{
		LessonID:         req.LessonID,
		Title:            req.Title,
		TimeLimitSeconds: req.TimeLimitSeconds,
		PracticeMode:     req.PracticeMode,
		CheckpointID:     req.CheckpointID,
	}
	if err := c.BankService.CreateBank(bank); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, bank)
}

// UpdateBank godoc
// @Summary 更新题库
// @Description 编辑只影响后续开考，进行中的会话持有快照不受影响
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "题库ID"
// @Param body body BankRequest true "题库信息"
// @Success 200 {object} util.Response{data=model.QuizBank}
// @Router /api/quiz/banks/{id} [put]
func (c *QuizController) UpdateBank(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req BankRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	bank, err := c.BankService.UpdateBank(id, &model.QuizBank{
		LessonID:         req.LessonID,
		Title:            req.Title,
		TimeLimitSeconds: req.TimeLimitSeconds,
		PracticeMode:     req.PracticeMode,
		CheckpointID:     req.CheckpointID,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, bank)
}

// GetBank godoc
// @Summary 题库详情（含题目与答案，仅创作端）
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "题库ID"
// @Success 200 {object} util.Response{data=model.QuizBank}
// @Router /api/quiz/banks/{id} [get]
func (c *QuizController) GetBank(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	bank, err := c.BankService.GetBank(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, bank)
}

// ListBanks godoc
// @Summary 题库列表
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/quiz/banks [get]
func (c *QuizController) ListBanks(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	banks, total, err := c.BankService.ListBanks(page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{
		List:  banks,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// DeleteBank godoc
// @Summary 删除题库及其题目
// @Tags 考试
// @Security ApiKeyAuth
// @Param id path int true "题库ID"
// @Success 200 {object} util.Response
// @Router /api/quiz/banks/{id} [delete]
func (c *QuizController) DeleteBank(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	if err := c.BankService.DeleteBank(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

func encodeChoices(choices []model.QuizChoice) (json.RawMessage, error) {
	return json.Marshal(choices)
}

// QuestionRequest 题目创建请求
type QuestionRequest struct {
	Prompt        string             `json:"prompt" binding:"required"`
	Order         int                `json:"order"`
	Choices       []model.QuizChoice `json:"choices" binding:"required,min=1"`
	PassThreshold float64            `json:"passThreshold"`
}

// AddQuestion godoc
// @Summary 新增题目
// @Description 选项至少一个且至少一个正确；编辑不影响进行中的会话
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "题库ID"
// @Param body body QuestionRequest true "题目信息"
// @Success 201 {object} util.Response{data=model.QuizBankQuestion}
// @Router /api/quiz/banks/{id}/questions [post]
func (c *QuizController) AddQuestion(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q := &model.QuizBankQuestion{
		Prompt:        req.Prompt,
		Order:         req.Order,
		PassThreshold: req.PassThreshold,
	}
	if q.PassThreshold == 0 {
		q.PassThreshold = 1
	}
	q.Choices, _ = encodeChoices(req.Choices)

	if err := c.BankService.AddQuestion(id, q); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// UpdateQuestion godoc
// @Summary 更新题目
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "题目ID"
// @Param body body QuestionRequest true "题目信息"
// @Success 200 {object} util.Response{data=model.QuizBankQuestion}
// @Router /api/quiz/questions/{id} [put]
func (c *QuizController) UpdateQuestion(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	updated := &model.QuizBankQuestion{
		Prompt:        req.Prompt,
		Order:         req.Order,
		PassThreshold: req.PassThreshold,
	}
	if updated.PassThreshold == 0 {
		updated.PassThreshold = 1
	}
	updated.Choices, _ = encodeChoices(req.Choices)

	q, err := c.BankService.UpdateQuestion(id, updated)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// DeleteQuestion godoc
// @Summary 删除题目
// @Tags 考试
// @Security ApiKeyAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/quiz/questions/{id} [delete]
func (c *QuizController) DeleteQuestion(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	if err := c.BankService.DeleteQuestion(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// StartSession godoc
// @Summary 开始考试
// @Description 对题目做不可变快照并启动倒计时，超时自动交卷
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "题库ID"
// @Success 201 {object} util.Response{data=service.SessionView} "会话已创建，选项不含答案"
// @Failure 404 {object} util.Response "题库不存在"
// @Router /api/quiz/banks/{id}/sessions [post]
func (c *QuizController) StartSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}

	view, err := c.SessionService.Start(id, claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, view)
}

// GetSession godoc
// @Summary 会话当前状态
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionView}
// @Router /api/quiz/sessions/{id} [get]
func (c *QuizController) GetSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.SessionService.Get(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// SessionAnswerRequest 考中作答
type SessionAnswerRequest struct {
	QuestionID uint   `json:"questionId" binding:"required"`
	Selected   []uint `json:"selected" binding:"required,min=1"`
}

// SubmitSessionAnswer godoc
// @Summary 提交一题作答
// @Description 截止时间后的提交返回 409；练习模式立即返回判分反馈
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Param body body SessionAnswerRequest true "作答"
// @Success 200 {object} util.Response{data=service.AnswerFeedback}
// @Failure 409 {object} util.Response "会话已结束或已超时"
// @Router /api/quiz/sessions/{id}/answers [post]
func (c *QuizController) SubmitSessionAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	var req SessionAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	feedback, err := c.SessionService.SubmitAnswer(ctx.Param("id"), claims.UserID, req.QuestionID, model.Attempt{Selected: req.Selected})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, feedback)
}

// SessionFlagRequest 标记请求
type SessionFlagRequest struct {
	QuestionID uint `json:"questionId" binding:"required"`
	Flagged    bool `json:"flagged"`
}

// FlagSessionQuestion godoc
// @Summary 标记/取消标记题目
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Param body body SessionFlagRequest true "标记"
// @Success 200 {object} util.Response
// @Router /api/quiz/sessions/{id}/flags [put]
func (c *QuizController) FlagSessionQuestion(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	var req SessionFlagRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.SessionService.Flag(ctx.Param("id"), claims.UserID, req.QuestionID, req.Flagged); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// FinishSession godoc
// @Summary 交卷
// @Description 幂等：重复交卷返回已计算的成绩
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.QuizResult}
// @Failure 503 {object} util.Response "成绩落库失败，会话保持进行中"
// @Router /api/quiz/sessions/{id}/finish [post]
func (c *QuizController) FinishSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.SessionService.Finish(ctx.Param("id"), claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ListMyResults godoc
// @Summary 当前学员的历史成绩
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.QuizResult}
// @Router /api/quiz/results [get]
func (c *QuizController) ListMyResults(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	results, err := c.BankService.ListResults(claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, results)
}
