package main

import (
	"bitwise74/account-api/app"
	"bitwise74/account-api/config"
	"bitwise74/account-api/internal/service"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.Setup(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := app.MakeLogger(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer zap.L().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Worker {
		runWorker(ctx, cfg)
		return
	}

	runServer(ctx, stop, cfg)
}

func runWorker(ctx context.Context, cfg *config.Config) {
	worker := service.NewMailWorker(asynq.RedisClientOpt{Addr: cfg.Mail.RedisAddr}, app.NewMailer(cfg.Mail))

	zap.L().Info("Mail worker starting", zap.String("redis", cfg.Mail.RedisAddr))

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Fatal("Mail worker stopped", zap.Error(err))
	}
}

func runServer(ctx context.Context, stop context.CancelFunc, cfg *config.Config) {
	d, cleanup, err := app.Setup(cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize", zap.Error(err))
	}
	defer cleanup()

	if cfg.SuperuserEmail != "" {
		if err := d.Auth.EnsureSuperuser(ctx, cfg.SuperuserEmail, cfg.SuperuserPassword); err != nil {
			zap.L().Fatal("Failed to create superuser", zap.Error(err))
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Host.Port),
		Handler:           app.NewRouter(d),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("Server starting", zap.Int("port", cfg.Host.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zap.L().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Graceful shutdown failed", zap.Error(err))
	}
}
