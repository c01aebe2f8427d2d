package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/paperhub/backend-go/app/bootstrap"
	"github.com/paperhub/backend-go/app/router"
	"github.com/paperhub/backend-go/internal/config"
	"github.com/paperhub/backend-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init()

	web.BConfig.AppName = "PaperHub Backend"
	web.BConfig.CopyRequestBody = true
	if port, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = port
	}

	logger.Info("starting server", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
