// cmd/indexer runs the Deposit Indexer (spec.md §4.8) as its own
// process: it connects to Postgres and to a Starknet DNA stream scoped
// to the cashier account, and applies every Remittance event and reorg
// invalidation to mint-quote state until its context is cancelled.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/paynet-mint/node/internal/config"
	"github.com/paynet-mint/node/internal/indexer"
	"github.com/paynet-mint/node/internal/liquidity"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/starknet"
	"github.com/paynet-mint/node/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("INDEXER_CONFIG_PATH"), "path to the node's TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("LOG") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := obs.Wrap(obs.NewLogger(os.Stdout, logLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigCh
		logger.Infof("shutdown signal received, draining current batch")
		cancel()
	}()

	store, err := postgres.Open(ctx, cfg.Indexer.PgURL, logger)
	if err != nil {
		log.Fatalf("opening storage: %v", err)
	}
	defer store.Close()

	src, conn, err := indexer.DialApibara(ctx, cfg.Indexer.DnaURI, cfg.Indexer.ApibaraToken,
		cfg.Starknet.CashierAddress, cfg.Indexer.StartingBlock)
	if err != nil {
		log.Fatalf("connecting to DNA stream: %v", err)
	}
	defer conn.Close()

	tokenAddr, err := starknet.FeltFromHex(cfg.Starknet.TokenAddress)
	if err != nil {
		log.Fatalf("invalid starknet.token_address: %v", err)
	}
	cashierAddr, err := starknet.FeltFromHex(cfg.Starknet.CashierAddress)
	if err != nil {
		log.Fatalf("invalid starknet.cashier_address: %v", err)
	}
	// The indexer only ever converts on-chain amounts; it never
	// withdraws, so it needs no Cashier.
	liqSrc := liquidity.NewStarknet(liquidity.StarknetConfig{TokenAddress: tokenAddr, CashierAddress: cashierAddr}, nil)
	ix := indexer.New(store, liqSrc, logger)

	if err := ix.Run(ctx, src); err != nil {
		log.Fatalf("indexer stopped: %v", err)
	}
}
