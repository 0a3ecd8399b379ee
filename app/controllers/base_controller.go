package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web"
)

const maxBodyBytes = 1 << 20

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	_ = c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// readBody 读取请求体；开启CopyRequestBody时直接复用
func (c *BaseController) readBody() ([]byte, error) {
	if body := c.Ctx.Input.RequestBody; len(body) > 0 {
		return body, nil
	}
	if c.Ctx.Request.Body == nil {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(c.Ctx.Request.Body, maxBodyBytes))
}

// getClientIP 获取客户端真实IP地址
func (c *BaseController) getClientIP() string {
	// X-Forwarded-For可能包含多个IP，取第一个
	if xForwardedFor := c.Ctx.Input.Header("X-Forwarded-For"); xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}
	if xRealIP := c.Ctx.Input.Header("X-Real-IP"); xRealIP != "" {
		return xRealIP
	}
	return c.Ctx.Input.IP()
}
