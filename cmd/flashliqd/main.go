package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flashliq/config"
	"flashliq/native/amm"
	"flashliq/native/flash"
	"flashliq/native/sim"
	"flashliq/observability/logging"
	"flashliq/observability/metrics"
	"flashliq/services/flashliqd/server"
	"flashliq/state"
	"flashliq/storage"
)

const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "./flashliqd.toml", "path to the daemon configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "flashliqd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Setup("flashliqd", cfg.Environment)
	audit := logging.Audit(cfg.AuditLogPath)

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv, err := buildServer(cfg, db, logger, audit)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("flashliqd listening", slog.String("address", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// warmMetrics pre-registers the known outcome series so dashboards see zeros
// instead of gaps, and publishes the seeded reserve ratio.
func warmMetrics(pair *amm.Pair) {
	flashMetrics := metrics.Flash()
	flashMetrics.InitOutcome("committed", "none")
	for _, reason := range []string{
		"insufficient_profit",
		"unauthorized_caller",
		"unexpected_asset",
		"malformed_payload",
		"unknown_issuer",
		"repayment_failed",
		"profit_transfer_failed",
		"internal",
	} {
		flashMetrics.InitOutcome("aborted", reason)
	}
	if base, quote, err := pair.Reserves(); err == nil && quote.Sign() != 0 {
		ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(base), new(big.Float).SetInt(quote)).Float64()
		flashMetrics.SetReserveRatio(pair.Address().Hex(), ratio)
	}
}

func openDatabase(dataDir string) (storage.Database, error) {
	if dataDir == "" {
		return storage.NewMemDB(), nil
	}
	return storage.NewLevelDB(filepath.Join(dataDir, "settlements"))
}

// buildServer wires the rehearsal substrate: one shared token state hosting
// the pool, issuer, ledger, and the settlement engine they drive.
func buildServer(cfg *config.Config, db storage.Database, logger, audit *slog.Logger) (*server.Server, error) {
	st := state.NewManager()

	executor := config.Address(cfg.ExecutorAddress)
	admin := config.Address(cfg.AdminAddress)
	custody := config.Address(cfg.Ledger.CustodyAddress)
	baseToken := config.Address(cfg.Pool.BaseToken)
	quoteToken := config.Address(cfg.Pool.QuoteToken)
	proxyToken := config.Address(cfg.Issuer.ProxyToken)

	pair := amm.NewPair(config.Address(cfg.Pool.Address), baseToken, quoteToken)

	issuer := sim.NewIssuer(st, proxyToken, quoteToken, executor)
	issuer.SetMintFeeBps(cfg.Issuer.MintFeeBps)
	issuers := sim.NewIssuerSet()
	issuers.Register(issuer)

	ledger := sim.NewLedger(st, custody, executor,
		big.NewInt(cfg.Ledger.CollateralRateNum),
		big.NewInt(cfg.Ledger.CollateralRateDen),
	)

	engine := flash.NewEngine(executor, admin)
	engine.SetState(st)
	engine.SetIssuerRegistry(issuers)
	if err := engine.Configure(admin, pair, ledger); err != nil {
		return nil, fmt.Errorf("configure engine: %w", err)
	}

	pool := sim.NewPool(st, pair, engine)
	if err := pool.Seed(config.Amount(cfg.Pool.BaseReserve), config.Amount(cfg.Pool.QuoteReserve)); err != nil {
		return nil, fmt.Errorf("seed pool: %w", err)
	}
	if err := st.Mint(baseToken, custody, config.Amount(cfg.Ledger.CustodyCollateral)); err != nil {
		return nil, fmt.Errorf("fund custody: %w", err)
	}
	warmMetrics(pair)

	var auth *server.Authenticator
	if token := cfg.ResolveAPIToken(); token != "" {
		constructed, err := server.NewAuthenticator(token)
		if err != nil {
			return nil, err
		}
		auth = constructed
	} else {
		logger.Warn("no API token configured; the API is unauthenticated")
	}

	return server.New(server.Config{
		Lender:   pool,
		Registry: engine,
		Ledger:   ledger,
		Archive:  flash.NewArchive(db),
		Admin:    admin,
		Auth:     auth,
		NewPair: func(address, baseTok, quoteTok common.Address, baseReserve, quoteReserve *big.Int) (flash.ReservePair, error) {
			p := amm.NewPair(address, baseTok, quoteTok)
			if err := p.SetReserves(baseReserve, quoteReserve); err != nil {
				return nil, err
			}
			return p, nil
		},
		Log:   logger,
		Audit: audit,
	}), nil
}
