package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"alphadip-config/configs"
	"alphadip-config/pipelines"
	_ "alphadip-config/pipelines/setup" // registers the setup check
	"alphadip-config/tasks"
)

func main() {
	restore := pipelines.InstallLogger(zapcore.InfoLevel)
	defer restore()

	env, err := configs.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("configuration loaded",
		zap.String("file", env.ConfigFile),
		zap.Any("config", env.Config.Masked()),
	)

	warnIfTracked(env.ConfigFile)
	if err := env.Config.Validate(); err != nil {
		// Serve anyway; /config.js answers 503 until the file is fixed.
		logger.Error("configuration is not usable yet", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	holder := configs.NewHolder(env.Config, env.ConfigFile, func() (configs.Config, error) {
		reloaded, err := configs.Load()
		if err != nil {
			return configs.Config{}, err
		}
		return reloaded.Config, nil
	})

	srv := newServer(env, holder)

	if env.WatchConfig {
		if err := holder.Watch(ctx); err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		}
	}

	if env.GCPProjectID != "" {
		logClient, err := tasks.NewLogClient(ctx, env.GCPProjectID, env.ServiceName)
		if err != nil {
			logger.Warn("check history disabled", zap.Error(err))
		} else {
			defer logClient.Close()
			srv.history = logClient
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", env.Port),
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", env.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// warnIfTracked logs when the runtime file is not excluded by .gitignore
func warnIfTracked(path string) {
	ignored, err := configs.IsGitIgnored(path)
	if err != nil {
		logger.Warn("could not read .gitignore", zap.Error(err))
		return
	}
	if !ignored {
		logger.Warn("runtime config is not git-ignored; never commit real credentials",
			zap.String("file", path))
	}
}
