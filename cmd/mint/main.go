// cmd/mint is the mint node's main entrypoint: it wires Postgres, a
// signer RPC client, the Keyset Cache/Registry, the proof Ledger, the
// swap/mint-quote/melt-quote engines and the Prometheus gauges into an
// internal/mint.Mint, then serves it over both the wallet-facing
// Request API (HTTP+JSON) and the admin RPC (gRPC) — the same
// multi-server, signal-driven shutdown shape as the teacher's
// cmd/mint/mint.go, generalized from godotenv+os.Getenv to this
// module's TOML-plus-env internal/config.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/paynet-mint/node/api/mintapi"
	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/config"
	"github.com/paynet-mint/node/internal/keysetcache"
	"github.com/paynet-mint/node/internal/keysetregistry"
	"github.com/paynet-mint/node/internal/ledger"
	"github.com/paynet-mint/node/internal/liquidity"
	"github.com/paynet-mint/node/internal/meltquote"
	"github.com/paynet-mint/node/internal/metrics"
	"github.com/paynet-mint/node/internal/mint"
	"github.com/paynet-mint/node/internal/mintquote"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/rpcutil"
	"github.com/paynet-mint/node/internal/signer"
	"github.com/paynet-mint/node/internal/starknet"
	"github.com/paynet-mint/node/internal/storage/postgres"
	"github.com/paynet-mint/node/internal/swap"
)

const defaultQuoteTTL = time.Hour

func main() {
	configPath := flag.String("config", os.Getenv("MINT_CONFIG_PATH"), "path to the node's TOML config file")
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

	store, err := postgres.Open(ctx, cfg.Mint.PgURL, logger)
	if err != nil {
		log.Fatalf("opening storage: %v", err)
	}
	defer store.Close()

	conn, err := grpc.NewClient(cfg.Mint.SignerURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dialing signer at %s: %v", cfg.Mint.SignerURL, err)
	}
	defer conn.Close()
	signerClient := signer.NewClient(conn)

	cache := keysetcache.New(store, signerClient, logger)
	registry := keysetregistry.New(store, signerClient, cache, logger)

	units := make([]cashu.Unit, 0, len(cfg.Mint.Methods))
	for _, m := range cfg.Mint.Methods {
		unit, err := cashu.ParseUnit(m.Unit)
		if err != nil {
			log.Fatalf("configured method %q has unsupported unit %q: %v", m.Method, m.Unit, err)
		}
		units = append(units, unit)
	}
	if err := registry.Bootstrap(ctx, units); err != nil {
		log.Fatalf("bootstrapping keysets: %v", err)
	}
	if cfg.Mint.RotateOnBoot {
		if _, err := registry.RotateKeysets(ctx); err != nil {
			log.Fatalf("rotating keysets on boot: %v", err)
		}
	}
	if err := cache.Warm(ctx); err != nil {
		log.Fatalf("warming keyset cache: %v", err)
	}

	ldg := ledger.New(cache, signerClient)
	swapEng := swap.New(store, ldg, logger)

	tokenAddr, err := starknet.FeltFromHex(cfg.Starknet.TokenAddress)
	if err != nil {
		log.Fatalf("invalid starknet.token_address: %v", err)
	}
	cashierAddr, err := starknet.FeltFromHex(cfg.Starknet.CashierAddress)
	if err != nil {
		log.Fatalf("invalid starknet.cashier_address: %v", err)
	}
	cashier := liquidity.NewHttpCashier(cfg.Starknet.CashierURL, cfg.Starknet.CashierAPIKey)
	liqSrc := liquidity.NewStarknet(liquidity.StarknetConfig{TokenAddress: tokenAddr, CashierAddress: cashierAddr}, cashier)

	payeeAddr, err := starknet.FeltFromHex(cfg.Starknet.AccountAddress)
	if err != nil {
		log.Fatalf("invalid starknet.account_address: %v", err)
	}

	if len(cfg.Mint.Methods) != 1 {
		log.Fatalf("mint.methods must configure exactly one (method, unit) pair, got %d", len(cfg.Mint.Methods))
	}
	methodCfg := cfg.Mint.Methods[0]
	methodUnit, _ := cashu.ParseUnit(methodCfg.Unit)
	methodInfos := []mint.MethodInfo{{
		Method: methodCfg.Method, Unit: methodUnit,
		MintMinAmount: methodCfg.MintMinAmount, MintMaxAmount: methodCfg.MintMaxAmount,
		MeltMinAmount: methodCfg.MeltMinAmount, MeltMaxAmount: methodCfg.MeltMaxAmount,
	}}
	mintEng := mintquote.New(store, ldg, liqSrc, logger, methodUnit,
		mintquote.Limits{Min: methodCfg.MintMinAmount, Max: methodCfg.MintMaxAmount}, payeeAddr, defaultQuoteTTL)
	meltEng := meltquote.New(store, ldg, liqSrc, logger, methodUnit,
		meltquote.Limits{Min: methodCfg.MeltMinAmount, Max: methodCfg.MeltMaxAmount, Fee: methodCfg.MeltFee}, defaultQuoteTTL)

	gauges := metrics.New(store, logger)
	reg := prometheus.NewRegistry()
	if err := gauges.Register(reg); err != nil {
		log.Fatalf("registering metrics: %v", err)
	}

	m := mint.New(store, cache, registry, ldg, swapEng, mintEng, meltEng, gauges, logger, mint.Config{
		ResponseCacheSize: 1024,
		ResponseCacheTTL:  5 * time.Minute,
		Info: mint.Info{
			Name:        cfg.Mint.Name,
			Description: cfg.Mint.Description,
			Methods:     methodInfos,
		},
	})

	var wg sync.WaitGroup
	httpSrv := &http.Server{Addr: portAddr(cfg.Mint.HTTPPort), Handler: withMetrics(mintapi.NewServer(m, logger).Router(), reg)}
	grpcSrv, _ := rpcutil.NewServer(logger)
	grpcSrv.RegisterService(&mint.AdminServiceDesc, mint.NewAdminServer(m))

	lis, err := net.Listen("tcp", portAddr(cfg.Mint.GRPCPort))
	if err != nil {
		log.Fatalf("listening on grpc port: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigCh
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
	}()

	go refreshGaugesForever(ctx, gauges, logger)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("mint request API: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("mint admin RPC: %v", err)
		}
	}()
	wg.Wait()
}

func refreshGaugesForever(ctx context.Context, gauges *metrics.Gauges, logger obs.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := gauges.Refresh(ctx); err != nil {
				logger.Warnf("refreshing metrics gauges: %v", err)
			}
		}
	}
}

func withMetrics(h http.Handler, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", h)
	return mux
}

func portAddr(port int) string {
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort("", strconv.Itoa(port))
}
