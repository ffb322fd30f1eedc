package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gowvp/scanbox/internal/app"
	"github.com/gowvp/scanbox/internal/conf"
	"github.com/gowvp/scanbox/pkg/ffcam"
)

// buildVersion 编译时通过 -ldflags "-X main.buildVersion=xxx" 注入
var buildVersion = "dev"

const defaultConfigPath = "configs/config.toml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "配置文件路径")
	flag.Parse()

	bc, err := conf.SetupConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion

	logLevel := slog.LevelInfo
	if bc.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting scanbox",
		"version", buildVersion,
		"config", *configPath,
		"device_index", bc.Camera.DeviceIndex,
	)

	uc, handler, cleanup, err := app.SetupApp(bc)
	if err != nil {
		// 摄像头不可用属于致命错误，只在启动阶段出现
		if errors.Is(err, ffcam.ErrDeviceUnavailable) {
			slog.Error("camera unavailable", "err", err)
			os.Exit(2)
		}
		slog.Error("setup failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 采集循环独立运行，HTTP 只是旁路观察与控制入口
	go uc.Capture.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", bc.Server.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errChan <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "err", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	// 结束采集并封口录像文件
	uc.Capture.Close(shutdownCtx)

	slog.Info("scanbox stopped")
}
