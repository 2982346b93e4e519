// cmd/signer runs the remote signing oracle (spec.md §4.1) as its own
// process: one shared root private key derived from a fixed seed,
// served over internal/signer/rpc.go's hand-built gRPC service. Kept
// as a separate binary from cmd/mint the way the teacher keeps LND
// itself out of process — the root key never has to live in the same
// address space as the wallet-facing Request API.
package main

import (
	"encoding/hex"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/paynet-mint/node/internal/config"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/rpcutil"
	"github.com/paynet-mint/node/internal/signer"
)

func main() {
	configPath := flag.String("config", os.Getenv("SIGNER_CONFIG_PATH"), "path to the node's TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Signer.SeedHex == "" {
		log.Fatal("signer.seed_hex (or SIGNER_SEED) must be set")
	}

	logLevel := slog.LevelInfo
	if os.Getenv("LOG") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := obs.Wrap(obs.NewLogger(os.Stdout, logLevel))

	seed, err := hex.DecodeString(cfg.Signer.SeedHex)
	if err != nil {
		log.Fatalf("decoding signer.seed_hex: %v", err)
	}
	root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		log.Fatalf("deriving root key: %v", err)
	}

	sgnr := signer.New(root, logger)
	srv := signer.NewServer(sgnr)

	grpcSrv, _ := rpcutil.NewServer(logger)
	grpcSrv.RegisterService(&signer.ServiceDesc, srv)

	port := cfg.Signer.GRPCPort
	if port == 0 {
		port = 50051
	}
	lis, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		log.Fatalf("listening on grpc port: %v", err)
	}

	logger.Infof("signer listening on %s", lis.Addr())
	if err := grpcSrv.Serve(lis); err != nil {
		log.Fatalf("signer RPC: %v", err)
	}
}
