package util

import (
	"errors"
	"fmt"
)

// ErrorKind 稳定的错误分类，随响应返回，客户端据此判断是否值得重试
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation_error"
	KindIndeterminate ErrorKind = "indeterminate_grading"
	KindGateAnomaly   ErrorKind = "gate_violation_anomaly"
	KindPersistence   ErrorKind = "persistence_error"
	KindSessionState  ErrorKind = "session_state_error"
	KindNotFound      ErrorKind = "not_found"
	KindUnauthorized  ErrorKind = "unauthorized"
	KindForbidden     ErrorKind = "forbidden"
)

// AppError 携带分类的领域错误
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewIndeterminateGrading(message string) *AppError {
	return &AppError{Kind: KindIndeterminate, Message: message}
}

func NewPersistenceError(message string, err error) *AppError {
	return &AppError{Kind: KindPersistence, Message: message, Err: err}
}

func NewSessionStateError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindSessionState, Message: fmt.Sprintf(format, args...)}
}

// KindOf 提取错误分类，非 AppError 一律视为未分类
func KindOf(err error) (ErrorKind, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}

// IsKind 判断错误是否属于某一分类
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailRegistered    = errors.New("该邮箱已被注册")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrTrackNotFound      = errors.New("track not found")
	ErrLessonNotFound     = errors.New("lesson not found")
	ErrStageNotFound      = errors.New("stage not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCardNotFound       = errors.New("flashcard not found")
	ErrBankNotFound       = errors.New("quiz bank not found")
	ErrQuestionNotFound   = errors.New("quiz question not found")
	ErrSessionNotFound    = errors.New("quiz session not found")
)
