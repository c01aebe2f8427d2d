package controllers

import (
	"net/http"

	"github.com/paperhub/backend-go/app/bootstrap"
	"github.com/paperhub/backend-go/internal/database"
)

// RootController 根路由
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "paperhub-backend",
		"status":  "running",
	})
}

// HealthController 健康检查
type HealthController struct {
	BaseController
}

// Health 汇报各个后端组件的可用性
func (c *HealthController) Health() {
	components := map[string]bool{
		"database": database.DB != nil,
		"redis":    database.RedisClient != nil,
	}

	if app := bootstrap.GetApp(); app != nil {
		components["embedder"] = app.Embedder != nil && app.Embedder.Ready()
		components["chat_model"] = app.ChatModel != nil && app.ChatModel.Ready()
		components["fulltext"] = app.Indexer != nil && app.Indexer.Ready()
		components["vectors"] = app.VectorStore != nil && app.VectorStore.Ready()
		components["object_store"] = app.ObjectStore != nil && app.ObjectStore.Ready()
	}

	status := "healthy"
	if !components["database"] {
		status = "unhealthy"
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}
