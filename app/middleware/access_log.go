package middleware

import (
	"time"

	"github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
)

const startedAtKey = "accessLogStartedAt"

// AccessLogStart 记录请求开始时间，配合 AccessLogFinish 使用
func AccessLogStart(ctx *context.Context) {
	ctx.Input.SetData(startedAtKey, time.Now())
}

// AccessLogFinish 请求结束后输出访问日志
func AccessLogFinish(log *zap.Logger) func(*context.Context) {
	return func(ctx *context.Context) {
		status := ctx.ResponseWriter.Status
		if status == 0 {
			status = ctx.Output.Status
		}
		fields := []zap.Field{
			zap.String("method", ctx.Input.Method()),
			zap.String("path", ctx.Input.URL()),
			zap.Int("status", status),
			zap.String("ip", ctx.Input.IP()),
		}
		if started, ok := ctx.Input.GetData(startedAtKey).(time.Time); ok {
			fields = append(fields, zap.Duration("elapsed", time.Since(started)))
		}
		if id := ctx.ResponseWriter.Header().Get("X-Request-ID"); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		log.Info("请求完成", fields...)
	}
}
