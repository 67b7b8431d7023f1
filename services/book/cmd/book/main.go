package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"bookportal/internal/admintoken"
	"bookportal/internal/ratelimit"
	"bookportal/internal/util"
	"bookportal/services/book/internal/app"
	"bookportal/services/book/internal/config"
	"bookportal/services/book/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(os.Stdout, cfg.LogLevel)
	_, _, rateWindow, shutdownGrace := cfg.Durations()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCore, err := app.New(ctx, app.ConfigFromFile(cfg, logger))
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	verifier, err := admintoken.NewVerifier(cfg.AdminTokenSecret)
	if err != nil {
		log.Fatalf("failed to init admin token verifier: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	srvCfg := server.Config{App: appCore, Verifier: verifier, TrustedProxies: trusted}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		downloads, err := ratelimit.NewFixedWindowLimiter(client, "", cfg.DownloadRateLimit, rateWindow)
		if err != nil {
			log.Fatalf("failed to init download limiter: %v", err)
		}
		admin, err := ratelimit.NewFixedWindowLimiter(client, "", cfg.AdminRateLimit, rateWindow)
		if err != nil {
			log.Fatalf("failed to init admin limiter: %v", err)
		}
		srvCfg.DownloadLimiter = downloads
		srvCfg.AdminLimiter = admin
	} else {
		logger.Warn("redisAddr not set, rate limiting disabled")
	}

	httpServer, err := server.New(srvCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("book server listening",
		"addr", addr,
		"catalog", cfg.CatalogBackend,
		"storage", cfg.StorageBackend,
		"strict_resolve", cfg.StrictResolve,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
