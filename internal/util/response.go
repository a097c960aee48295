package util

import (
	"errors"
	"net/http"

	"certlearn_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

// Accepted 用于已受理但结果待定的请求（如待人工评分的提交）
func Accepted(c *gin.Context, kind ErrorKind, message string, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Code:    http.StatusAccepted,
		Message: message,
		Kind:    string(kind),
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithKind 携带稳定 kind 字段的错误响应
func ErrorWithKind(c *gin.Context, code int, kind ErrorKind, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Kind:    string(kind),
	})
}

func Unauthorized(c *gin.Context) {
	ErrorWithKind(c, http.StatusUnauthorized, KindUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	ErrorWithKind(c, http.StatusForbidden, KindForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	ErrorWithKind(c, http.StatusBadRequest, KindValidation, message)
}

func NotFound(c *gin.Context) {
	ErrorWithKind(c, http.StatusNotFound, KindNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// HandleError 按错误分类映射 HTTP 状态码
func HandleError(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case KindValidation:
			ErrorWithKind(c, http.StatusBadRequest, appErr.Kind, appErr.Message)
		case KindSessionState:
			ErrorWithKind(c, http.StatusConflict, appErr.Kind, appErr.Message)
		case KindIndeterminate:
			// 不是调用方错误，作答已受理，等待外部评分
			ErrorWithKind(c, http.StatusAccepted, appErr.Kind, appErr.Message)
		case KindPersistence:
			logger.Log.Error("persistence failure", zap.Error(err))
			ErrorWithKind(c, http.StatusServiceUnavailable, appErr.Kind, appErr.Message)
		case KindNotFound:
			ErrorWithKind(c, http.StatusNotFound, appErr.Kind, appErr.Message)
		case KindForbidden:
			ErrorWithKind(c, http.StatusForbidden, appErr.Kind, appErr.Message)
		default:
			LogInternalError(c, err)
		}
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrTrackNotFound),
		errors.Is(err, ErrLessonNotFound),
		errors.Is(err, ErrStageNotFound),
		errors.Is(err, ErrCheckpointNotFound),
		errors.Is(err, ErrCardNotFound),
		errors.Is(err, ErrBankNotFound),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrUserNotFound):
		ErrorWithKind(c, http.StatusNotFound, KindNotFound, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		Forbidden(c)
	case errors.Is(err, ErrInvalidCredentials):
		Unauthorized(c)
	case errors.Is(err, ErrEmailRegistered):
		BadRequest(c, err.Error())
	default:
		LogInternalError(c, err)
	}
}
