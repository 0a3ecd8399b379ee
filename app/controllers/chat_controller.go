package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	apperrors "github.com/aihub/medical-rag/internal/errors"
	"github.com/aihub/medical-rag/internal/knowledge"
	"github.com/aihub/medical-rag/internal/services"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// rebuildInFlight 同一时间只允许一个管理接口触发的重建
var rebuildInFlight atomic.Bool

// AskRequest POST /ask 请求体
type AskRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id" validate:"omitempty,max=128"`
}

// AskResponse POST /ask 响应体
type AskResponse struct {
	Answer  string            `json:"answer"`
	Sources []services.Source `json:"sources"`
}

// ChatController 问答与索引运维接口
type ChatController struct {
	BaseController
}

func (c *ChatController) deps() *Dependencies {
	d := currentDeps()
	if d == nil {
		c.JSONError(http.StatusServiceUnavailable, "服务尚未初始化")
	}
	return d
}

// Ask 多轮问答
func (c *ChatController) Ask() {
	d := c.deps()
	if d == nil {
		return
	}

	emptyQuestion := AskResponse{Answer: services.EmptyQuestionMessage, Sources: []services.Source{}}

	body, err := c.readBody()
	if err != nil {
		c.JSON(http.StatusBadRequest, emptyQuestion)
		return
	}
	var req AskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, emptyQuestion)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		c.JSON(http.StatusBadRequest, emptyQuestion)
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, AskResponse{Answer: "user_id 格式不正確", Sources: []services.Source{}})
		return
	}
	if limit := d.Config.Chat.MaxQuestionLen; limit > 0 {
		if err := validate.Var(req.Question, fmt.Sprintf("max=%d", limit)); err != nil {
			c.JSON(http.StatusBadRequest, AskResponse{
				Answer:  fmt.Sprintf("問題過長，請精簡在 %d 字以內", limit),
				Sources: []services.Source{},
			})
			return
		}
	}
	if req.UserID == "" {
		req.UserID = d.Config.Chat.DefaultUserID
	}

	result, err := d.Chat.ProcessChat(c.Ctx.Request.Context(), req.UserID, req.Question)
	if result != nil && result.RequestID != "" {
		c.Ctx.Output.Header("X-Request-ID", result.RequestID)
	}
	if err != nil {
		d.Logger.Warn("问答失败",
			zap.String("user_id", req.UserID),
			zap.String("ip", c.getClientIP()),
			zap.Error(err))
		answer := services.FallbackMessage
		if result != nil {
			answer = result.Answer
		}
		c.JSON(askStatus(err), AskResponse{Answer: answer, Sources: []services.Source{}})
		return
	}

	c.JSON(http.StatusOK, AskResponse{Answer: result.Answer, Sources: result.Sources})
}

// askStatus 输入错误400，索引未就绪503，其余按内部错误处理
func askStatus(err error) int {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case apperrors.ErrCodeEngineNotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Search 直接检索，返回距离与分数
func (c *ChatController) Search() {
	d := c.deps()
	if d == nil {
		return
	}

	query := strings.TrimSpace(c.GetString("q"))
	if query == "" {
		c.JSONError(http.StatusBadRequest, "查询参数不能为空")
		return
	}
	k := d.Config.Retrieval.TopK
	if raw := c.GetString("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 || parsed > 100 {
			c.JSONError(http.StatusBadRequest, "k 必须是0到100之间的整数")
			return
		}
		k = parsed
	}

	results, err := d.Engine.Search(c.Ctx.Request.Context(), query, k)
	if err != nil {
		appErr := apperrors.FromKnowledgeError(err)
		apperrors.Log(d.Logger, "检索失败", appErr)
		c.JSONError(appErr.HTTPCode, appErr.Message)
		return
	}
	if results == nil {
		results = []knowledge.SearchResult{}
	}

	c.JSONSuccess(map[string]interface{}{
		"query":   query,
		"k":       k,
		"metric":  d.Engine.Stats().Metric,
		"results": results,
	})
}

// Rebuild 后台重建索引，构建期间旧索引继续服务
func (c *ChatController) Rebuild() {
	d := c.deps()
	if d == nil {
		return
	}
	if !d.Config.Index.AdminEnabled {
		c.JSONError(http.StatusForbidden, "索引管理接口未启用")
		return
	}

	if !rebuildInFlight.CompareAndSwap(false, true) {
		c.JSONError(http.StatusConflict, "索引正在重建")
		return
	}

	go func() {
		defer rebuildInFlight.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		err := d.Engine.TryRebuild(ctx)
		switch {
		case errors.Is(err, knowledge.ErrRebuildInProgress):
			d.Logger.Info("已有索引构建在进行，跳过本次重建")
		case err != nil:
			d.Logger.Error("重建索引失败", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, map[string]interface{}{
		"success": true,
		"status":  "rebuilding",
	})
}

// Health 索引状态与熔断器状态，索引未就绪返回503
func (c *ChatController) Health() {
	d := c.deps()
	if d == nil {
		return
	}

	stats := d.Engine.Stats()
	status, code := "ok", http.StatusOK
	if !stats.Ready {
		status, code = "initializing", http.StatusServiceUnavailable
	}

	c.JSON(code, map[string]interface{}{
		"status":   status,
		"index":    stats,
		"breakers": d.Chat.Breakers(),
	})
}
