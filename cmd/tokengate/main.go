package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/halverson/tokengate/internal/logging"
	"github.com/halverson/tokengate/internal/metrics"
	"github.com/halverson/tokengate/internal/server"
	"github.com/halverson/tokengate/pkg/config"
	"github.com/halverson/tokengate/pkg/entitlement"
	"github.com/halverson/tokengate/pkg/gatekeeper"
	"github.com/halverson/tokengate/pkg/holdings"
	"github.com/halverson/tokengate/pkg/payout"
	"github.com/halverson/tokengate/pkg/transferwatch"
	"github.com/halverson/tokengate/pkg/treasury"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	ethRPC := flag.String("eth-rpc", "", "Ethereum RPC endpoint (overrides config)")
	ethWS := flag.String("eth-ws", "", "Ethereum WebSocket endpoint for transfer watching (overrides config)")
	flag.Parse()

	// Secrets may live in a local .env file during development.
	godotenv.Load()

	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *ethRPC != "" {
		cfg.EthereumRPC = *ethRPC
	}
	if *ethWS != "" {
		cfg.EthereumWS = *ethWS
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	metrics.Register()

	oracle, err := holdings.New(cfg.EthereumRPC)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Ethereum RPC")
	}
	defer oracle.Close()

	var sender treasury.Sender
	if cfg.PayoutKey != "" {
		chainSender, err := payout.New(cfg.EthereumRPC, cfg.PayoutKey, cfg.ChainID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure payout sender")
		}
		defer chainSender.Close()
		sender = chainSender
		logger.Info().Str("from", chainSender.From().Hex()).Msg("treasury payouts enabled")
	} else {
		logger.Warn().Msg("no payout key configured, withdrawals will fail")
	}

	adminAddr := common.HexToAddress(cfg.AdminAddress)

	gate := gatekeeper.New(oracle, sender, logger)
	gate.SetCacheTTL(cfg.CacheTTL)
	if cfg.OracleFailurePolicy == "resilient" {
		gate.SetFailurePolicy(entitlement.PolicyResilient)
		gate.SetFailureHandler(func(entitlement.RuleFailure) {
			metrics.OracleFailures.Inc()
		})
	}
	if err := gate.Initialize(adminAddr); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize gatekeeper")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.EthereumWS != "" {
		watcher, err := transferwatch.NewWatcher(cfg.EthereumWS, gate.WatchedContracts, gate, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect transfer watcher")
		}
		go watcher.Start(ctx)
		defer watcher.Stop()
	}

	srv := server.New(gate, adminAddr, cfg.AdminToken, logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("tokengate listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
