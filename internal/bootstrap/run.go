package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/logger"
)

// Main 读取配置、装配服务并运行到收到 SIGINT 或 SIGTERM
func Main(configPath string, svc Service) error {
	cfg, err := config.Setup(configPath)
	if err != nil {
		return err
	}
	app, err := New(cfg, svc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := logger.Named(app.GetLogger(), "main")
	l.Info("starting", zap.String("service", cfg.Application.Name), zap.String("config", configPath))
	err = app.Run(ctx)
	_ = app.GetLogger().Sync()
	return err
}
