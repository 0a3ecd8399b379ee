package middleware

import (
	"net/http"

	"github.com/beego/beego/v2/server/web/context"
)

const (
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "Content-Type, Authorization, X-Requested-With, X-Request-ID, Accept, Origin"
)

// CORSMiddleware 允许任意来源调用问答接口
func CORSMiddleware(ctx *context.Context) {
	origin := ctx.Input.Header("Origin")
	if origin == "" {
		return
	}

	ctx.Output.Header("Access-Control-Allow-Origin", origin)
	ctx.Output.Header("Vary", "Origin")
	ctx.Output.Header("Access-Control-Allow-Methods", allowMethods)
	ctx.Output.Header("Access-Control-Allow-Headers", allowHeaders)
	ctx.Output.Header("Access-Control-Max-Age", "3600")

	// 处理OPTIONS预检请求
	if ctx.Input.Method() == http.MethodOptions {
		ctx.Output.SetStatus(http.StatusNoContent)
		_ = ctx.Output.Body([]byte(""))
	}
}
