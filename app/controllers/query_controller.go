package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/paperhub/backend-go/app/bootstrap"
	"github.com/paperhub/backend-go/internal/logger"
	"github.com/paperhub/backend-go/internal/services"
	"go.uber.org/zap"
)

// QueryController 混合检索问答
type QueryController struct {
	BaseController
}

type queryRequest struct {
	Message        string `json:"message" validate:"required"`
	ConversationID uint   `json:"conversation_id,omitempty"`
}

// Query 处理一次提问，管线事件以NDJSON流式返回
func (c *QueryController) Query() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	app := bootstrap.GetApp()
	if app == nil || app.QueryService == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not ready")
		return
	}

	var req queryRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSONError(http.StatusBadRequest, "message is required")
		return
	}

	w := c.Ctx.ResponseWriter
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.ResponseWriter.(http.Flusher)

	encoder := json.NewEncoder(w)
	sink := func(event services.QueryEvent) error {
		if err := encoder.Encode(event); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	ctx := c.Ctx.Request.Context()
	result, err := app.QueryService.ProcessQuery(ctx, userID, req.Message, sink)
	if err != nil {
		// 终态错误事件已经在管线内发出
		logger.Error("query failed", zap.Uint("user_id", userID), zap.Error(err))
		return
	}

	// 问答落库，失败不影响已经发出的回答
	if app.ConversationService != nil && !result.NoContext {
		conversationID := req.ConversationID
		if conversationID == 0 {
			conversation, err := app.ConversationService.Create(ctx, userID, req.Message)
			if err != nil {
				logger.Warn("failed to create conversation", zap.Error(err))
				return
			}
			conversationID = conversation.ConversationID
		}
		if err := app.ConversationService.AppendExchange(ctx, userID, conversationID, req.Message, result.Answer, result.Sources); err != nil {
			logger.Warn("failed to persist exchange", zap.Error(err))
		}
	}
}
