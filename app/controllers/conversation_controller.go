package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/paperhub/backend-go/app/bootstrap"
)

// ConversationController 对话记录
type ConversationController struct {
	BaseController
}

type createConversationRequest struct {
	Title string `json:"title"`
}

// Create 新建空对话
func (c *ConversationController) Create() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	var req createConversationRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		c.JSONError(http.StatusBadRequest, "title is required")
		return
	}

	conversation, err := bootstrap.GetApp().ConversationService.Create(c.Ctx.Request.Context(), userID, req.Title)
	if err != nil {
		c.JSONError(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSONSuccess(conversation)
}

// List 列出当前用户的对话
func (c *ConversationController) List() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	conversations, err := bootstrap.GetApp().ConversationService.List(c.Ctx.Request.Context(), userID)
	if err != nil {
		c.JSONError(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSONSuccess(conversations)
}

// Get 取回对话及消息
func (c *ConversationController) Get() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	conversationID, err := strconv.ParseUint(c.Ctx.Input.Param(":id"), 10, 32)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "invalid conversation id")
		return
	}

	conversation, messages, err := bootstrap.GetApp().ConversationService.Get(c.Ctx.Request.Context(), userID, uint(conversationID))
	if err != nil {
		if err.Error() == "conversation not found" {
			c.JSONError(http.StatusNotFound, err.Error())
			return
		}
		c.JSONError(http.StatusInternalServerError, err.Error())
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"conversation": conversation,
		"messages":     messages,
	})
}

// Delete 删除对话
func (c *ConversationController) Delete() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	conversationID, err := strconv.ParseUint(c.Ctx.Input.Param(":id"), 10, 32)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "invalid conversation id")
		return
	}

	if err := bootstrap.GetApp().ConversationService.Delete(c.Ctx.Request.Context(), userID, uint(conversationID)); err != nil {
		if err.Error() == "conversation not found" {
			c.JSONError(http.StatusNotFound, err.Error())
			return
		}
		c.JSONError(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSONSuccess(map[string]interface{}{"deleted": conversationID})
}
