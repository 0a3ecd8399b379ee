package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"

	// 检索引擎
	ErrCodeConfig          ErrorCode = "CONFIG_ERROR"
	ErrCodeCorruptSnapshot ErrorCode = "CORRUPT_SNAPSHOT"
	ErrCodeEngineNotReady  ErrorCode = "ENGINE_NOT_READY"
	ErrCodeEmptyIndex      ErrorCode = "EMPTY_INDEX"

	// 外部服务错误
	ErrCodeExternalCall ErrorCode = "EXTERNAL_CALL_FAILURE"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// 会话存储
	ErrCodeSessionStore ErrorCode = "SESSION_STORE_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// String 返回错误类型名称
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeSystem:
		return "system"
	case ErrorTypeBusiness:
		return "business"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// AppError 应用错误结构体
type AppError struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Type      ErrorType   `json:"type"`
	HTTPCode  int         `json:"-"`
	Details   interface{} `json:"details,omitempty"`
	Cause     error       `json:"-"`
	RequestID string      `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithRequestID 添加请求ID
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("Invalid input for field '%s': %s", field, reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewConfigError 配置缺失或非法，启动阶段致命
func NewConfigError(message string) *AppError {
	return NewSystemError(ErrCodeConfig, message)
}

// NewCorruptSnapshotError 快照损坏，可回退为全量重建
func NewCorruptSnapshotError(path string) *AppError {
	return NewSystemError(ErrCodeCorruptSnapshot, fmt.Sprintf("snapshot %s is corrupt", path))
}

// NewEngineNotReadyError 检索引擎尚未完成初始化
func NewEngineNotReadyError() *AppError {
	return &AppError{
		Code:     ErrCodeEngineNotReady,
		Message:  "search engine is not ready",
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusServiceUnavailable,
	}
}

// NewEmptyIndexError 索引为空
func NewEmptyIndexError() *AppError {
	return &AppError{
		Code:     ErrCodeEmptyIndex,
		Message:  "index is empty",
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusOK,
	}
}

// NewExternalCallError 外部能力(向量化/生成)调用失败
func NewExternalCallError(service string) *AppError {
	return &AppError{
		Code:     ErrCodeExternalCall,
		Message:  fmt.Sprintf("%s call failed", service),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
	}
}

// NewSessionStoreError 会话存储读写失败
func NewSessionStoreError(op string) *AppError {
	return NewSystemError(ErrCodeSessionStore, fmt.Sprintf("session store %s failed", op))
}

// IsAppError 检查错误链中是否有AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// IsCode 检查错误链中的AppError是否为指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}
