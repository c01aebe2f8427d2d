package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/paperhub/backend-go/app/controllers"
)

// Init registers all routes. Must be called after bootstrap.Init.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

	documentController := &controllers.DocumentController{}
	web.Router("/api/documents", documentController, "get:List")
	web.Router("/api/documents/upload", documentController, "post:Upload")
	// 具体路由必须在参数路由之前注册
	web.Router("/api/documents/repair", documentController, "post:Repair")
	web.Router("/api/documents/status", documentController, "get:Status")
	web.Router("/api/documents/:id", documentController, "delete:Delete")

	queryController := &controllers.QueryController{}
	web.Router("/api/query", queryController, "post:Query")

	conversationController := &controllers.ConversationController{}
	web.Router("/api/conversations", conversationController, "get:List;post:Create")
	web.Router("/api/conversations/:id", conversationController, "get:Get;delete:Delete")
}
