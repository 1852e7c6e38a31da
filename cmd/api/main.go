package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/config"
	"github.com/you/paygate/internal/dispatch"
	"github.com/you/paygate/internal/gateway"
	"github.com/you/paygate/internal/lnurl"
	"github.com/you/paygate/internal/offerings"
	"github.com/you/paygate/internal/pricing"
	"github.com/you/paygate/internal/server"
	"github.com/you/paygate/internal/storage"
)

func main() {
	cfg := config.Load()

	log, _ := zap.NewProduction()
	if cfg.AppEnv == "dev" {
		log, _ = zap.NewDevelopment()
	}
	defer log.Sync()

	ctx := context.Background()

	migrate(cfg.PostgresDSN, log)

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	if err := db.Ping(ctx); err != nil {
		log.Fatal("postgres ping", zap.Error(err))
	}

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})

	store := storage.NewPG(db)
	rates := pricing.NewCachedRateSource(pricing.NewHTTPRateSource(cfg.BTCRateURL), rdb, log)
	reg := buildRegistry(cfg, log)

	gw := gateway.New(store, lnurl.New(), rates, reg, gateway.Config{
		LightningAddress: cfg.LightningAddress,
		Endpoint:         cfg.Endpoint,
		ProfitMarginPct:  cfg.ProfitMarginPct,
		InvoiceExpiry:    time.Duration(cfg.InvoiceExpirySec) * time.Second,
		DispatchTimeout:  time.Duration(cfg.DispatchTimeoutSec) * time.Second,
	}, log)

	if cfg.NostrSK != "" && cfg.NostrRelay != "" {
		pub := offerings.New(cfg.NostrSK, cfg.NostrRelay, cfg.Endpoint,
			cfg.ProfitMarginPct, reg, rates, log)
		go pub.Run(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      server.New(gw, log),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Info("gateway listening", zap.String("addr", cfg.APIAddr))
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func buildRegistry(cfg config.Config, log *zap.Logger) *dispatch.Registry {
	return dispatch.NewRegistry(
		&dispatch.Entry{
			Service:      "GPT",
			Description:  "Chat completions, paid per request over Lightning.",
			PriceUSD:     cfg.GPTUSD,
			Schema:       dispatch.ChatSchema,
			ResultSchema: dispatch.ChatResultSchema,
			Dispatcher:   dispatch.NewHTTPDispatcher("GPT", cfg.GPTAPIURL, cfg.GPTAPIKey, log),
		},
		&dispatch.Entry{
			Service:      "SD",
			Description:  "Image generation, paid per request over Lightning.",
			PriceUSD:     cfg.SDUSD,
			Schema:       dispatch.ImageSchema,
			ResultSchema: dispatch.ImageResultSchema,
			Dispatcher:   dispatch.NewPollDispatcher("SD", cfg.SDSubmitURL, cfg.SDFetchURL, cfg.SDAPIKey, log),
		},
	)
}

func migrate(dsn string, log *zap.Logger) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("open migration db", zap.Error(err))
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("set goose dialect", zap.Error(err))
	}
	if err := goose.Up(db, "migrations"); err != nil {
		log.Fatal("run migrations", zap.Error(err))
	}
}
