package main

import (
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core"
	"github.com/agenthands/hvaudit/internal/server"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.ApplyEnv() {
		log.Println("No .env file found, using defaults")
	}

	zc := zap.NewProductionConfig()
	if level, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
		zc.Level = level
	}
	logger, err := zc.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	a, err := core.NewAuditor(cfg, nil, logger)
	if err != nil {
		logger.Fatal("Failed to build auditor", zap.Error(err))
	}

	r := server.NewServer(a, logger).SetupRouter()

	logger.Info("Starting server", zap.String("addr", cfg.Server.Addr))
	if err := r.Run(cfg.Server.Addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
