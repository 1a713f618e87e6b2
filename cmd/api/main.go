package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"fundsflow.org/internal/cache"
	"fundsflow.org/internal/config"
	"fundsflow.org/internal/feed"
	"fundsflow.org/internal/fixtures"
	"fundsflow.org/internal/httpapi"
	"fundsflow.org/internal/jobs"
	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/obs"
	"fundsflow.org/internal/store/pg"
	"fundsflow.org/internal/wallet"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config_load_failed")
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("unknown_log_level")
	}
	obs.Init()
	engine := ledger.NewEngine(cfg.Chart)
	chart := engine.Chart()
	obs.InitBuildInfo(obs.NewBuild(version, commit, chart.FeeAccount, chart.OVA, chart.ProviderFeeAccount))

	var (
		txs      ledger.TransactionRepository
		balances ledger.BalanceSource
		wallets  wallet.Repository
		probe    httpapi.ReadyProbe
		store    *pg.Store
		memTxs   *ledger.InMemory
	)
	if cfg.PostgresDSN != "" {
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open_db_failed")
		}
		txs, balances, wallets = store, store, store
		probe.DB = store.DB()
	} else {
		// no database: serve seeded fixtures from memory
		memTxs = ledger.NewInMemory()
		memWallets := wallet.NewInMemory()
		gen := fixtures.New(cfg.FixtureSeed, time.Now())
		if err := fixtures.Seed(context.Background(), gen, cfg.FixtureCount, memTxs, memWallets); err != nil {
			log.Fatal().Err(err).Msg("seed_fixtures_failed")
		}
		txs, balances, wallets = memTxs, memWallets, memWallets
		log.Info().Int("transactions", cfg.FixtureCount).Int64("seed", cfg.FixtureSeed).Msg("fixtures_loaded")
	}

	var detailCache cache.DetailCache = cache.Nop{}
	if cfg.RedisAddr != "" && cfg.CacheTTL > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.Dial(ctx, cfg.RedisAddr, cfg.CacheTTL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis_dial_failed")
		}
		defer rc.Close()
		detailCache = rc
		probe.Cache = rc
	}

	stream := feed.New()
	if cfg.DemoInterval > 0 {
		if memTxs == nil {
			log.Warn().Msg("demo_feed_requires_in_memory_store")
		} else {
			stopDemo := stream.StartDemo(cfg.DemoInterval, fixtures.New(cfg.FixtureSeed+1, time.Now()), memTxs, time.Now)
			defer stopDemo()
		}
	}

	reconciler, err := jobs.NewReconciler(cfg.ReconcileSchedule, wallets, time.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("reconciler_init_failed")
	}
	reconciler.Start()
	defer reconciler.Stop()

	api := httpapi.New(probe, version, httpapi.Deps{
		Transactions: txs,
		Balances:     balances,
		Wallets:      wallets,
		Engine:       engine,
		Cache:        detailCache,
		Stream:       stream,
		Reconciler:   reconciler,
		Commit:       commit,
	}, httpapi.Limits{
		RatePerSec:   cfg.RateLimitRPS,
		RateBurst:    cfg.RateLimitBurst,
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  httpapi.ParseOrigins(cfg.CORSOrigins),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// WriteTimeout stays unset: /v1/stream holds connections open
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// request contexts end with the process so open streams close on shutdown
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }
	srv.RegisterOnShutdown(cancelRequests)

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("grpc_listen_failed")
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewGRPCServer(probe)
		health.Register(grpcSrv)
		go health.Watch(ctx, 10*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error().Err(err).Msg("grpc_serve_failed")
			}
		}()
		log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc_listening")
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http_listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http_listen_failed")
		}
	}()
	obs.SetReady(true)

	<-ctx.Done()
	log.Info().Msg("shutting_down")
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http_shutdown_failed")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if store != nil {
		_ = store.Close()
	}
	log.Info().Msg("stopped")
}
