package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/paperhub/backend-go/app/bootstrap"
	"github.com/paperhub/backend-go/internal/logger"
	"github.com/paperhub/backend-go/internal/services"
	"go.uber.org/zap"
)

// DocumentController 文档上传与管理
type DocumentController struct {
	BaseController
}

// Upload 接收multipart文件，入库过程以NDJSON进度事件流式返回
func (c *DocumentController) Upload() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	app := bootstrap.GetApp()
	if app == nil || app.DocumentService == nil {
		c.JSONError(http.StatusServiceUnavailable, "service not ready")
		return
	}

	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	w := c.Ctx.ResponseWriter
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.ResponseWriter.(http.Flusher)

	encoder := json.NewEncoder(w)
	progress := func(p services.UploadProgress) {
		if err := encoder.Encode(p); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	doc, err := app.DocumentService.Upload(c.Ctx.Request.Context(), userID, header.Filename, header.Size, file, progress)
	if err != nil {
		logger.Error("upload failed", zap.Uint("user_id", userID), zap.Error(err))
		_ = encoder.Encode(map[string]interface{}{"stage": "error", "error": err.Error()})
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	_ = encoder.Encode(map[string]interface{}{
		"stage":       "complete",
		"document_id": doc.DocumentID,
		"name":        doc.Name,
	})
	if flusher != nil {
		flusher.Flush()
	}
}

// List 列出当前用户的文档
func (c *DocumentController) List() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	docs, err := bootstrap.GetApp().DocumentService.List(c.Ctx.Request.Context(), userID)
	if err != nil {
		c.JSONError(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSONSuccess(docs)
}

// Delete 删除文档及其派生数据
func (c *DocumentController) Delete() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	documentID, err := strconv.ParseUint(c.Ctx.Input.Param(":id"), 10, 32)
	if err != nil {
		c.JSONError(http.StatusBadRequest, "invalid document id")
		return
	}

	if err := bootstrap.GetApp().DocumentService.Delete(c.Ctx.Request.Context(), userID, uint(documentID)); err != nil {
		if err.Error() == "document not found" {
			c.JSONError(http.StatusNotFound, err.Error())
			return
		}
		c.JSONError(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSONSuccess(map[string]interface{}{"deleted": documentID})
}

// Repair 为缺失向量的分块重建嵌入
func (c *DocumentController) Repair() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	repaired, err := bootstrap.GetApp().DocumentService.Repair(c.Ctx.Request.Context(), userID)
	if err != nil {
		c.JSONError(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSONSuccess(map[string]interface{}{"repaired": repaired})
}

// Status 每个文档的分块/向量计数
func (c *DocumentController) Status() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return
	}

	statuses, err := bootstrap.GetApp().DocumentService.Status(c.Ctx.Request.Context(), userID)
	if err != nil {
		c.JSONError(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSONSuccess(statuses)
}
