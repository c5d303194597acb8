package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"predictchain/config"
	"predictchain/core/state"
	"predictchain/crypto"
	"predictchain/native/market"
	"predictchain/observability/logging"
	"predictchain/rpc"
	"predictchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PREDICT_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("predictd", env, cfg.LogFile)

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("Invalid program owner address", slog.Any("error", err))
		os.Exit(1)
	}
	treasury, err := cfg.TreasuryAddress()
	if err != nil {
		logger.Error("Invalid protocol treasury address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	nodeKey, err := crypto.LoadOrCreateKey(filepath.Join(cfg.DataDir, "node.key"))
	if err != nil {
		logger.Error("Failed to load node key", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Node identity loaded", slog.String("address", nodeKey.PubKey().Address().String()))

	manager := state.NewManager(db)

	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetProgramOwner(owner)
	engine.SetProtocolTreasury(treasury)
	engine.SetCustodyReserve(cfg.CustodyReserve)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()

	logger.Info("Starting market daemon",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("metrics", cfg.MetricsAddress),
	)

	server := rpc.NewServer(engine, manager)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
