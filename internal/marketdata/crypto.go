package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Xhofe/go-cache"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// CryptoService wraps the CoinGecko and Binance market-data APIs with
// an in-memory TTL cache and stale-while-revalidate: entries older
// than SoftTTL are served as-is while a background refresh runs, and
// HardTTL bounds how stale a served entry can get.
type CryptoService struct {
	gecko   *resty.Client
	binance *resty.Client
	store   cache.ICache[entry]
	softTTL time.Duration
	hardTTL time.Duration
	log     *zap.Logger

	refreshing sync.Map // key -> struct{}, dedupes background refreshes
}

type entry struct {
	data    []byte
	fetched time.Time
}

type CryptoOptions struct {
	CoinGeckoURL string
	BinanceURL   string
	SoftTTL      time.Duration
	HardTTL      time.Duration
	Logger       *zap.Logger
}

func NewCryptoService(opts CryptoOptions) *CryptoService {
	if opts.CoinGeckoURL == "" {
		opts.CoinGeckoURL = "https://api.coingecko.com/api/v3"
	}
	if opts.BinanceURL == "" {
		opts.BinanceURL = "https://api.binance.com"
	}
	if opts.SoftTTL <= 0 {
		opts.SoftTTL = time.Minute
	}
	if opts.HardTTL <= 0 {
		opts.HardTTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &CryptoService{
		gecko:   resty.New().SetBaseURL(opts.CoinGeckoURL).SetTimeout(10 * time.Second),
		binance: resty.New().SetBaseURL(opts.BinanceURL).SetTimeout(10 * time.Second),
		store:   cache.NewMemCache(cache.WithShards[entry](16)),
		softTTL: opts.SoftTTL,
		hardTTL: opts.HardTTL,
		log:     opts.Logger.Named("marketdata"),
	}
}

// Markets returns the CoinGecko coins/markets listing for a currency,
// optionally filtered to a comma-separated id list.
func (s *CryptoService) Markets(ctx context.Context, vsCurrency, ids string) ([]byte, error) {
	key := fmt.Sprintf("markets:%s:%s", vsCurrency, ids)
	return s.cached(ctx, key, func(ctx context.Context) ([]byte, error) {
		req := s.gecko.R().SetContext(ctx).
			SetQueryParam("vs_currency", vsCurrency).
			SetQueryParam("order", "market_cap_desc").
			SetQueryParam("sparkline", "false")
		if ids != "" {
			req.SetQueryParam("ids", ids)
		}
		resp, err := req.Get("/coins/markets")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("coingecko: status %d", resp.StatusCode())
		}
		return resp.Body(), nil
	})
}

// Ticker returns the Binance 24hr ticker for one symbol, e.g. BTCUSDT.
func (s *CryptoService) Ticker(ctx context.Context, symbol string) ([]byte, error) {
	key := "ticker:" + symbol
	return s.cached(ctx, key, func(ctx context.Context) ([]byte, error) {
		resp, err := s.binance.R().SetContext(ctx).
			SetQueryParam("symbol", symbol).
			Get("/api/v3/ticker/24hr")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("binance: status %d", resp.StatusCode())
		}
		return resp.Body(), nil
	})
}

func (s *CryptoService) cached(ctx context.Context, key string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if e, ok := s.store.Get(key); ok {
		if time.Since(e.fetched) >= s.softTTL {
			s.refresh(key, fetch)
		}
		return e.data, nil
	}

	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, entry{data: data, fetched: time.Now()}, cache.WithEx[entry](s.hardTTL))
	return data, nil
}

// refresh re-fetches a stale key in the background, at most once at
// a time per key. Failures keep the stale entry until HardTTL evicts it.
func (s *CryptoService) refresh(key string, fetch func(context.Context) ([]byte, error)) {
	if _, loaded := s.refreshing.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	go func() {
		defer s.refreshing.Delete(key)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		data, err := fetch(ctx)
		if err != nil {
			s.log.Warn("background refresh failed", zap.String("key", key), zap.Error(err))
			return
		}
		s.store.Set(key, entry{data: data, fetched: time.Now()}, cache.WithEx[entry](s.hardTTL))
	}()
}
