// Command dftools runs a federation instance: the instance and baton HTTP
// APIs backed by PostgreSQL and Redis.
//
// Configuration is taken from the environment, prefixed DFTOOLS_:
//
//	DFTOOLS_DATABASE_URL  PostgreSQL connection string (required)
//	DFTOOLS_REDIS_URL     Redis connection URL (required)
//	DFTOOLS_DOMAIN        Public domain of this instance (required)
//	DFTOOLS_JWT_SECRET    HMAC secret for server tokens (required)
//	DFTOOLS_SIGNING_KEY   base64 Ed25519 private key (generated if empty)
//	DFTOOLS_LISTEN_ADDR   API listen address, default :8080
//	DFTOOLS_METRICS_ADDR  prometheus listen address, disabled if empty
//	DFTOOLS_DEBUG         allow loopback game servers and plain-HTTP peers
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/DynamicCake/dftools/api"
	"github.com/DynamicCake/dftools/api/httpserver"
	"github.com/DynamicCake/dftools/auth"
	"github.com/DynamicCake/dftools/cmd/common"
	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/federation"
	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/store"
)

type config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" required:"true"`
	Domain      string `envconfig:"DOMAIN" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	SigningKey  string `envconfig:"SIGNING_KEY"`

	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	Debug    bool `envconfig:"DEBUG"`
	LogJSON  bool `envconfig:"LOG_JSON" default:"true"`
	LogDebug bool `envconfig:"LOG_DEBUG"`
	Pprof    bool `envconfig:"PPROF"`

	DrainSeconds            int `envconfig:"DRAIN_SECONDS" default:"15"`
	GracefulShutdownSeconds int `envconfig:"GRACEFUL_SHUTDOWN_SECONDS" default:"10"`
}

func main() {
	var cfg config
	if err := envconfig.Process("dftools", &cfg); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log := common.SetupLogger(cfg.LogJSON, cfg.LogDebug)

	domain, err := plot.ParseInstanceDomain(cfg.Domain)
	if err != nil {
		log.Error("invalid instance domain", "domain", cfg.Domain, "err", err)
		os.Exit(1)
	}

	signingKey, err := common.LoadOrGenerateSigningKey(cfg.SigningKey)
	if err != nil {
		log.Error("loading signing key", "err", err)
		os.Exit(1)
	}
	publicKey, err := signingKey.PublicKey()
	if err != nil {
		log.Error("deriving public key", "err", err)
		os.Exit(1)
	}
	log.Info("instance identity", "domain", domain, "publicKey", publicKey)

	db, err := store.NewPostgresQuerier(cfg.DatabaseURL)
	if err != nil {
		log.Error("connecting to postgres", "err", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid redis url", "err", err)
		os.Exit(1)
	}
	cache := redis.NewClient(redisOpts)
	if err := cache.Ping(context.Background()).Err(); err != nil {
		log.Error("connecting to redis", "err", err)
		os.Exit(1)
	}

	st := store.New(store.Config{
		Log:       log,
		Querier:   db,
		Cache:     cache,
		Resolver:  &store.MojangResolver{},
		PublicKey: publicKey,
	})
	defer st.Close()

	tokens := federation.NewTokens([]byte(cfg.JWTSecret), domain, federation.DefaultTokenTTL)
	handshake := federation.New(federation.Config{
		Log:        log,
		Store:      st,
		Tokens:     tokens,
		Domain:     domain,
		SigningKey: signingKey,
		Insecure:   cfg.Debug,
	})

	allowedIPs := auth.GameServerIPs
	if cfg.Debug {
		allowedIPs = auth.DebugGameServerIPs
	}
	plotAuth := &auth.PlotAuth{Log: log, Store: st, AllowedIPs: allowedIPs}
	either := &auth.Either{
		Key:  &auth.KeyAuth{Store: st},
		Plot: plotAuth,
	}

	selfCheckKey, err := crypto.NewSelfCheckKey()
	if err != nil {
		log.Error("generating self-check key", "err", err)
		os.Exit(1)
	}
	log.Info("self-check key issued", "key", selfCheckKey)

	instance := &api.InstanceHandler{
		Log:            log,
		Store:          st,
		Handshake:      handshake,
		Auth:           either,
		PlotAuth:       plotAuth,
		UnregisteredOK: plotAuth,
		Domain:         domain,
		SelfCheckKey:   selfCheckKey,
	}
	baton := &api.BatonHandler{
		Log:        log,
		Store:      st,
		Auth:       either,
		ServerAuth: &auth.ServerAuth{Tokens: tokens},
	}

	srv, err := httpserver.New(&httpserver.Config{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.Pprof,
		Log:                      log,
		DrainDuration:            time.Duration(cfg.DrainSeconds) * time.Second,
		GracefulShutdownDuration: time.Duration(cfg.GracefulShutdownSeconds) * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, instance, baton)
	if err != nil {
		log.Error("creating http server", "err", err)
		os.Exit(1)
	}

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	srv.Shutdown()
}
