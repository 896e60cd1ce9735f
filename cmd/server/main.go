package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"oblik/config"
	"oblik/core/appbootstrap"
	"oblik/core/utils"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("OBLIK_CONFIG"), "path to YAML config (env only when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := utils.NewServiceLogger(cfg.Log.Level, cfg.Log.Format, "oblik")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	restoreStdLog := zap.RedirectStdLog(logger.Zap())
	defer restoreStdLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := appbootstrap.Run(ctx, cfg, logger); err != nil {
		logger.Errorf("server stopped: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}
