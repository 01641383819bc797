package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/presence-backend/internal/config"
	"github.com/marketpulse/presence-backend/internal/httpapi"
	"github.com/marketpulse/presence-backend/internal/hub"
	"github.com/marketpulse/presence-backend/internal/marketdata"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, hub.Options{
		ReapTimeout:   cfg.ReapTimeout,
		SweepInterval: cfg.SweepInterval,
		Logger:        log,
	})

	crypto := marketdata.NewCryptoService(marketdata.CryptoOptions{
		CoinGeckoURL: cfg.CoinGeckoURL,
		BinanceURL:   cfg.BinanceURL,
		SoftTTL:      cfg.CacheSoftTTL,
		HardTTL:      cfg.CacheHardTTL,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, crypto, log),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		h.Inbox() <- hub.Shutdown{}
	}()

	log.Info("listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}
