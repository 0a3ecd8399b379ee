package errors

import (
	"go.uber.org/zap"
)

// LogFields 将AppError展开为结构化日志字段
func LogFields(err error) []zap.Field {
	appErr := GetAppError(err)
	fields := []zap.Field{
		zap.String("error_code", string(appErr.Code)),
		zap.String("error_type", appErr.Type.String()),
		zap.Int("http_code", appErr.HTTPCode),
	}
	if appErr.RequestID != "" {
		fields = append(fields, zap.String("request_id", appErr.RequestID))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.NamedError("cause", appErr.Cause))
	}
	return fields
}

// Log 根据错误类型选择日志级别
func Log(logger *zap.Logger, msg string, err error) {
	if logger == nil || err == nil {
		return
	}
	appErr := GetAppError(err)
	fields := LogFields(appErr)

	switch appErr.Type {
	case ErrorTypeSystem:
		logger.Error(msg, fields...)
	case ErrorTypeValidation:
		logger.Info(msg, fields...)
	default:
		logger.Warn(msg, fields...)
	}
}
