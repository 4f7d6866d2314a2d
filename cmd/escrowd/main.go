package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aerisfi/aeris-contracts/config"
	"github.com/aerisfi/aeris-contracts/core"
	"github.com/aerisfi/aeris-contracts/observability"
	"github.com/aerisfi/aeris-contracts/observability/logging"
	"github.com/aerisfi/aeris-contracts/rpc"
	"github.com/aerisfi/aeris-contracts/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("escrowd", cfg.Environment, cfg.LogFile)

	admin, err := cfg.Admin()
	if err != nil {
		logger.Error("invalid admin address", slog.Any("error", err))
		os.Exit(1)
	}

	dbPath := filepath.Join(cfg.DataDir, "escrow")
	db, err := storage.NewLevelDB(dbPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("path", dbPath), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db, admin)
	node.SetEmitter(observability.NewEventLogger(logger))

	if err := node.SeedOrderTimeout(cfg.OrderTimeout); err != nil {
		logger.Error("failed to seed order timeout", slog.Any("error", err))
		os.Exit(1)
	}

	timeout, err := node.OrderTimeout()
	if err != nil {
		logger.Error("failed to read order timeout", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("escrow node ready",
		slog.String("network", cfg.NetworkName),
		slog.String("dataDir", cfg.DataDir),
		slog.Int64("orderTimeoutSeconds", timeout),
	)

	server := rpc.NewServer(node, cfg.AuthToken(), logger)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("JSON-RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
