// Command cryptoexporter serves cryptocurrency exchange rates and account
// balances as Prometheus metrics. It polls one provider per process, either
// a trading exchange (Binance, Bybit, Hyperliquid) or a blockchain explorer
// (Etherscan, Blockscout, Ethplorer, Blockchain.info, Ripple, Stellar).
//
// Usage:
//
//	cryptoexporter --config config.yaml
//	cryptoexporter (uses environment variables)
//	cryptoexporter --setup (interactive configuration wizard)
//
// Required environment variables without a config file:
//
//	EXCHANGE selects the provider; the provider decides which of
//	API_KEY, API_SECRET, PRIVATE_KEY and ADDRESSES are mandatory.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/internal"
	"github.com/mkrutov/cryptoexporter/internal/exporter"
	"github.com/mkrutov/cryptoexporter/internal/setup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	runSetup := flag.Bool("setup", false, "run the interactive configuration wizard")
	flag.Parse()

	if *runSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		*configPath = "config.gen.yaml"
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	settings, err := config.Get(*configPath)
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	conn, err := internal.NewConnector(settings, logger)
	if err != nil {
		logger.Fatal("failed to create connector", zap.Error(err))
	}
	logger.Info("connector ready", zap.String("exchange", conn.Name()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(exporter.NewCollector(conn, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := exporter.NewServer(settings.Port, registry, logger).Start(ctx); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
