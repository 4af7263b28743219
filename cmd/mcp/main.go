package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/docqa/internal/adapters/mcp"
	"github.com/kirillkom/docqa/internal/bootstrap"
	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/observability/logging"
)

const (
	serviceName = "docqa-mcp"
	version     = "0.1.0"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// stdout carries JSON-RPC.
	logger := logging.New(os.Stderr, serviceName, cfg.LogLevel, logging.FormatJSON)
	slog.SetDefault(logger)

	ctx := context.Background()
	engine, err := bootstrap.NewEngine(ctx, cfg, bootstrap.EngineOptions{Service: serviceName, Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if loaded, err := engine.ScopeUC.LoadSnapshot(ctx, domain.ScopeGlobal); err != nil {
		logger.Warn("snapshot_load_failed", "scope", domain.ScopeGlobal, "error", err)
	} else {
		logger.Info("snapshot_restored", "loaded", loaded, "chunks", engine.Index.Len())
	}

	s := mcpadapter.NewServer(version, mcpadapter.NewTools(engine.QueryUC, engine.ScopeUC, logger))
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		engine.Close()
		os.Exit(1)
	}
}
