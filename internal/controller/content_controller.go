package controller

import (
	"encoding/json"
	"strconv"

	"certlearn_backend/internal/model"
	"certlearn_backend/internal/service"
	"certlearn_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ContentController 内容层级的创作与浏览接口
type ContentController struct {
	ContentService *service.ContentService
}

func NewContentController(contentService *service.ContentService) *ContentController {
	return &ContentController{ContentService: contentService}
}

func parseUintParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// ListTracks godoc
// @Summary 学习轨道列表
// @Tags 内容
// @Produce json
// @Success 200 {object} util.Response{data=[]model.Track}
// @Router /api/tracks [get]
func (c *ContentController) ListTracks(ctx *gin.Context) {
	tracks, err := c.ContentService.ListTracks()
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, tracks)
}

// GetTrack godoc
// @Summary 轨道详情
// @Description 返回轨道的完整层级（模块、课时、阶段、检查点）
// @Tags 内容
// @Produce json
// @Param id path int true "轨道ID"
// @Success 200 {object} util.Response{data=model.Track}
// @Failure 404 {object} util.Response
// @Router /api/tracks/{id} [get]
func (c *ContentController) GetTrack(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	track, err := c.ContentService.GetTrack(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, track)
}

// TrackRequest 轨道创建/更新请求
type TrackRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	Published   bool   `json:"published"`
}

// CreateTrack godoc
// @Summary 创建轨道
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body TrackRequest true "轨道信息"
// @Success 201 {object} util.Response{data=model.Track}
// @Router /api/tracks [post]
func (c *ContentController) CreateTrack(ctx *gin.Context) {
	var req TrackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	track := &model.Track{
		Title:       req.Title,
		Description: req.Description,
		Order:       req.Order,
		Published:   req.Published,
	}
	if err := c.ContentService.CreateTrack(track); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, track)
}

// UpdateTrack godoc
// @Summary 更新轨道
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "轨道ID"
// @Param body body TrackRequest true "轨道信息"
// @Success 200 {object} util.Response{data=model.Track}
// @Router /api/tracks/{id} [put]
func (c *ContentController) UpdateTrack(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req TrackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	track, err := c.ContentService.GetTrack(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	track.Title = req.Title
	track.Description = req.Description
	track.Order = req.Order
	track.Published = req.Published
	track.Modules = nil

	if err := c.ContentService.UpdateTrack(track); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, track)
}

// DeleteTrack godoc
// @Summary 删除轨道
// @Tags 内容
// @Security ApiKeyAuth
// @Param id path int true "轨道ID"
// @Success 200 {object} util.Response
// @Router /api/tracks/{id} [delete]
func (c *ContentController) DeleteTrack(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	if err := c.ContentService.DeleteTrack(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ModuleRequest 模块创建请求
type ModuleRequest struct {
	TrackID     uint   `json:"trackId" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// CreateModule godoc
// @Summary 创建模块
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body ModuleRequest true "模块信息"
// @Success 201 {object} util.Response{data=model.TrackModule}
// @Failure 400 {object} util.Response "Order 冲突"
// @Router /api/modules [post]
func (c *ContentController) CreateModule(ctx *gin.Context) {
	var req ModuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	m := &model.TrackModule{
		TrackID:     req.TrackID,
		Title:       req.Title,
		Description: req.Description,
		Order:       req.Order,
	}
	if err := c.ContentService.CreateModule(m); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, m)
}

// LessonRequest 课时创建请求
type LessonRequest struct {
	ModuleID uint   `json:"moduleId" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content"`
	Order    int    `json:"order"`
}

// CreateLesson godoc
// @Summary 创建课时
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body LessonRequest true "课时信息"
// @Success 201 {object} util.Response{data=model.Lesson}
// @Router /api/lessons [post]
func (c *ContentController) CreateLesson(ctx *gin.Context) {
	var req LessonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson := &model.Lesson{
		ModuleID: req.ModuleID,
		Title:    req.Title,
		Content:  req.Content,
		Order:    req.Order,
	}
	if err := c.ContentService.CreateLesson(lesson); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, lesson)
}

// GetLesson godoc
// @Summary 课时详情
// @Tags 内容
// @Produce json
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response{data=model.Lesson}
// @Failure 404 {object} util.Response
// @Router /api/lessons/{id} [get]
func (c *ContentController) GetLesson(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	lesson, err := c.ContentService.GetLesson(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, lesson)
}

// DeleteLesson godoc
// @Summary 删除课时
// @Description 删除课时并级联清理衍生的复习卡片
// @Tags 内容
// @Security ApiKeyAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response
// @Router /api/lessons/{id} [delete]
func (c *ContentController) DeleteLesson(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	if err := c.ContentService.DeleteLesson(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// StageRequest 阶段创建/更新请求
type StageRequest struct {
	LessonID  uint   `json:"lessonId" binding:"required"`
	Title     string `json:"title" binding:"required"`
	Order     int    `json:"order"`
	GateMode  string `json:"gateMode" binding:"required,oneof=require_all min_passed"`
	MinPassed int    `json:"minPassed"`
}

// CreateStage godoc
// @Summary 创建阶段
// @Description 闸门规则在创建时校验：min_passed 模式门槛至少为 1
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body StageRequest true "阶段信息"
// @Success 201 {object} util.Response{data=model.Stage}
// @Failure 400 {object} util.Response "闸门参数非法"
// @Router /api/stages [post]
func (c *ContentController) CreateStage(ctx *gin.Context) {
	var req StageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	stage := &model.Stage{
		LessonID:  req.LessonID,
		Title:     req.Title,
		Order:     req.Order,
		GateMode:  model.GateMode(req.GateMode),
		MinPassed: req.MinPassed,
	}
	if err := c.ContentService.CreateStage(stage); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, stage)
}

// UpdateStage godoc
// @Summary 更新阶段
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "阶段ID"
// @Param body body StageRequest true "阶段信息"
// @Success 200 {object} util.Response{data=model.Stage}
// @Router /api/stages/{id} [put]
func (c *ContentController) UpdateStage(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req StageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	stage := &model.Stage{
		LessonID:  req.LessonID,
		Title:     req.Title,
		Order:     req.Order,
		GateMode:  model.GateMode(req.GateMode),
		MinPassed: req.MinPassed,
	}
	stage.ID = id
	if err := c.ContentService.UpdateStage(stage); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, stage)
}

// GetStage godoc
// @Summary 阶段详情（含检查点与答案，仅创作端）
// @Tags 内容
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "阶段ID"
// @Success 200 {object} util.Response{data=model.Stage}
// @Router /api/stages/{id} [get]
func (c *ContentController) GetStage(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	stage, err := c.ContentService.GetStage(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, stage)
}

// ExportStage godoc
// @Summary 导出阶段定义
// @Description 含答案的完整阶段 JSON，供创作端备份迁移
// @Tags 内容
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "阶段ID"
// @Success 200 {object} util.Response
// @Router /api/stages/{id}/export [get]
func (c *ContentController) ExportStage(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	raw, err := c.ContentService.ExportStage(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, raw)
}

// CheckpointRequest 检查点创建/更新请求
type CheckpointRequest struct {
	StageID        uint                     `json:"stageId" binding:"required"`
	Kind           string                   `json:"kind" binding:"required,oneof=ack task quiz short_answer"`
	Prompt         string                   `json:"prompt"`
	Order          int                      `json:"order"`
	Choices        []model.CheckpointChoice `json:"choices"`
	AnswerKeys     []string                 `json:"answerKeys"`
	RequiresRubric bool                     `json:"requiresRubric"`
	PassThreshold  float64                  `json:"passThreshold"`
}

func (req *CheckpointRequest) toModel() *model.Checkpoint {
	cp := &model.Checkpoint{
		StageID:        req.StageID,
		Kind:           model.CheckpointKind(req.Kind),
		Prompt:         req.Prompt,
		Order:          req.Order,
		Choices:        req.Choices,
		RequiresRubric: req.RequiresRubric,
		PassThreshold:  req.PassThreshold,
	}
	if cp.PassThreshold == 0 {
		cp.PassThreshold = 1
	}
	if len(req.AnswerKeys) > 0 {
		cp.AnswerKeys, _ = json.Marshal(req.AnswerKeys)
	}
	return cp
}

// CreateCheckpoint godoc
// @Summary 创建检查点
// @Description 按类型校验判分数据：quiz 须有正确选项，确定性简答须有答案
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CheckpointRequest true "检查点信息"
// @Success 201 {object} util.Response{data=model.Checkpoint}
// @Failure 400 {object} util.Response "判分数据非法"
// @Router /api/checkpoints [post]
func (c *ContentController) CreateCheckpoint(ctx *gin.Context) {
	var req CheckpointRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	cp := req.toModel()
	if err := c.ContentService.CreateCheckpoint(cp); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, cp)
}

// UpdateCheckpoint godoc
// @Summary 更新检查点
// @Description 更新后立即失效判分缓存，进行中的提交读到新定义
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "检查点ID"
// @Param body body CheckpointRequest true "检查点信息"
// @Success 200 {object} util.Response{data=model.Checkpoint}
// @Router /api/checkpoints/{id} [put]
func (c *ContentController) UpdateCheckpoint(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req CheckpointRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	cp := req.toModel()
	cp.ID = id
	if err := c.ContentService.UpdateCheckpoint(cp); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, cp)
}

// DeleteCheckpoint godoc
// @Summary 删除检查点
// @Tags 内容
// @Security ApiKeyAuth
// @Param id path int true "检查点ID"
// @Success 200 {object} util.Response
// @Router /api/checkpoints/{id} [delete]
func (c *ContentController) DeleteCheckpoint(ctx *gin.Context) {
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	if err := c.ContentService.DeleteCheckpoint(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ConvertCardsRequest 课时转卡片请求
type ConvertCardsRequest struct {
	Cards []service.CardSpec `json:"cards" binding:"required,min=1"`
}

// ConvertLessonToCards godoc
// @Summary 课时要点转复习卡片
// @Description 为当前学员生成复习卡片，新卡立即到期进入复习队列
// @Tags 内容
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课时ID"
// @Param body body ConvertCardsRequest true "卡片定义"
// @Success 201 {object} util.Response{data=[]model.Flashcard}
// @Router /api/lessons/{id}/cards [post]
func (c *ContentController) ConvertLessonToCards(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}
	var req ConvertCardsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	cards, err := c.ContentService.ConvertLessonToCards(id, claims.UserID, req.Cards)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, cards)
}

// ListLessonCards godoc
// @Summary 当前学员在课时下的卡片
// @Tags 内容
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "课时ID"
// @Success 200 {object} util.Response{data=[]model.Flashcard}
// @Router /api/lessons/{id}/cards [get]
func (c *ContentController) ListLessonCards(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseUintParam(ctx, "id")
	if !ok {
		return
	}

	cards, err := c.ContentService.ListLessonCards(id, claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, cards)
}
