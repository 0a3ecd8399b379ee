package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aihub/medical-rag/app/bootstrap"
	"github.com/aihub/medical-rag/app/router"
	"github.com/aihub/medical-rag/internal/logger"
	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}

	router.Init(logger.Named("http"))

	// 配置Beego全局设置
	web.BConfig.AppName = app.Config.Server.AppName
	web.BConfig.CopyRequestBody = true
	web.BConfig.RunMode = app.Config.Server.Env
	web.BConfig.Listen.HTTPPort = app.Config.Server.Port

	if err := app.Start(); err != nil {
		logger.Error("Failed to start application", zap.Error(err))
		app.Shutdown()
		os.Exit(1)
	}

	// 收到信号先停止HTTP服务，web.Run返回后再释放资源，避免进行中的请求使用已关闭的依赖
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		logger.Info("Shutting down", zap.String("signal", s.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := web.BeeApp.Server.Shutdown(ctx); err != nil {
			logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("Starting Medical RAG service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
	app.Shutdown()
}
