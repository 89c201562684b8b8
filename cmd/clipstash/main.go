package main

import (
	"clipstash/cfg"
	"clipstash/pkg/secrets"
	"clipstash/svc/api"
	"clipstash/svc/auth"
	"clipstash/svc/cache"
	"clipstash/svc/db"
	"clipstash/svc/lim"
	"clipstash/svc/svc"
	"clipstash/svc/util"
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	health := flag.Bool("health", false, "query /health on the local port and exit")
	flag.Parse()
	_ = godotenv.Load()
	if *health {
		os.Exit(checkHealth())
	}

	util.InitLog(os.Getenv("LOG_LEVEL"), false)
	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Str("environment", c.Environment).Msg("starting clipstash")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.DurablePasswordSecret != "" {
		resolver, err := secrets.NewResolver(ctx)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize secret resolver")
		}
		pw, err := resolver.GetSecret(ctx, c.DurablePasswordSecret)
		if err != nil {
			util.Fatal().Err(err).Str("secret", c.DurablePasswordSecret).Msg("failed to resolve durable tier password")
		}
		c.DurablePassword = cfg.NewSecret(pw)
	}

	durable, err := db.Open(ctx, c)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to open durable tier")
	}
	util.Info().Str("tier", durable.Name()).Bool("connected", durable.Connected()).Msg("durable tier initialized")

	fast, err := cache.NewLRU(c.FastTierSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create fast tier")
	}
	hasher, err := auth.NewHasher(c.PasswordDigest)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize password digest")
	}
	store := svc.NewStore(fast, durable, svc.Options{
		SweepInterval: c.SweepInterval,
		Hasher:        hasher,
	})
	util.Info().
		Int("fast_tier_size", c.FastTierSize).
		Dur("sweep_interval", c.SweepInterval).
		Str("digest", hasher.Algo()).
		Msg("clip store initialized")

	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.TrustedProxies)
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(c, store, durable, limiter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		util.Info().Msg("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		util.Error().Err(err).Msg("server stopped with error")
	}

	if err := store.Close(); err != nil {
		util.Error().Err(err).Msg("durable tier close error")
	}
	limiter.Stop()
	util.Info().Msg("shutdown complete")
}

func checkHealth() int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://127.0.0.1:" + port + "/health")
	if err != nil {
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
