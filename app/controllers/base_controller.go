package controllers

import (
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web"
	"github.com/paperhub/backend-go/app/bootstrap"
	"github.com/paperhub/backend-go/internal/config"
	"github.com/paperhub/backend-go/internal/logger"
	"go.uber.org/zap"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
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

// getAuthenticatedUserID 解析Bearer token得到用户ID
// 开发环境下token缺失时退回默认用户，生产环境必须携带有效token
func (c *BaseController) getAuthenticatedUserID() (uint, bool) {
	authHeader := c.Ctx.Input.Header("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			app := bootstrap.GetApp()
			if app != nil && app.JWTService != nil {
				claims, err := app.JWTService.ValidateToken(parts[1])
				if err == nil {
					return claims.UserID, true
				}
				logger.Debug("token validation failed", zap.Error(err))
			}
		}
	}

	cfg := config.GetAppConfig()
	if cfg != nil && cfg.Server.Env == "production" {
		return 0, false
	}

	logger.Warn("SECURITY WARNING: Using default user ID in non-production environment",
		zap.String("path", c.Ctx.Request.RequestURI),
		zap.String("method", c.Ctx.Request.Method))
	return 1, true
}
