package controllers

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsController 暴露Prometheus指标
type MetricsController struct {
	BaseController
}

func (c *MetricsController) Metrics() {
	promhttp.Handler().ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
