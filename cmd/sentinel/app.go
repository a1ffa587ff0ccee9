package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"PriceSentinel/internal/collector"
	"PriceSentinel/internal/config"
	"PriceSentinel/internal/logger"
	"PriceSentinel/internal/metrics"
	"PriceSentinel/internal/notifier"
	"PriceSentinel/internal/refresher"
	"PriceSentinel/internal/store"
)

// app holds the components shared by every subcommand. Components are built
// lazily so that commands only open what they use.
type app struct {
	cfgPath string
	cfg     *config.Config
	log     zerolog.Logger

	store    store.Store
	nse      *collector.NSEFetcher
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	telegram *notifier.TelegramNotifier
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	a.cfg = cfg
	a.log = logger.New("price-sentinel", cfg.Log.Level, cfg.Log.Format)
	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	return nil
}

func (a *app) close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func (a *app) openStore() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	var (
		s   store.Store
		err error
	)
	switch a.cfg.Database.Driver {
	case "postgres":
		s, err = store.NewPostgresStore(a.cfg.Database.URL, a.log)
	case "memory":
		a.log.Warn().Msg("using in-memory store, positions are lost on exit")
		s = store.NewMemoryStore()
	default:
		s, err = store.NewSQLiteStore(a.cfg.Database.SQLitePath, a.log)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Database.Driver, err)
	}
	a.log.Info().Str("driver", a.cfg.Database.Driver).Msg("position store ready")
	a.store = s
	return s, nil
}

func (a *app) nseFetcher() *collector.NSEFetcher {
	if a.nse == nil {
		a.nse = collector.NewNSEFetcher(a.cfg.Quote.BaseURL, a.cfg.Quote.Cookie, a.cfg.Proxy, a.cfg.QuoteTimeout())
	}
	return a.nse
}

// fetcher builds the configured quote source behind the quote cache.
func (a *app) fetcher(ctx context.Context) collector.Fetcher {
	var src collector.Fetcher
	switch a.cfg.Quote.Provider {
	case "yahoo":
		src = collector.NewYahooFetcher("", a.cfg.Proxy, a.cfg.QuoteTimeout())
	case "mock":
		src = collector.NewMockFetcher(nil)
	default:
		src = a.nseFetcher()
	}
	return collector.NewCachingFetcher(src, a.quoteCache(ctx))
}

func (a *app) quoteCache(ctx context.Context) collector.QuoteCache {
	ttl := a.cfg.QuoteTTL()
	if a.cfg.Cache.RedisAddr == "" {
		return collector.NewMemoryQuoteCache(ttl)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Cache.RedisAddr,
		Password: a.cfg.Cache.RedisPassword,
		DB:       a.cfg.Cache.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.log.Warn().Err(err).Str("addr", a.cfg.Cache.RedisAddr).Msg("redis unavailable, using in-memory quote cache")
		client.Close()
		return collector.NewMemoryQuoteCache(ttl)
	}
	a.redis = client
	a.log.Info().Str("addr", a.cfg.Cache.RedisAddr).Dur("ttl", ttl).Msg("using redis quote cache")
	return collector.NewRedisQuoteCache(client, ttl, a.log)
}

func (a *app) notifier() *notifier.TelegramNotifier {
	if a.telegram == nil && a.cfg.TelegramEnabled() {
		a.telegram = notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Proxy, a.log)
	}
	return a.telegram
}

func (a *app) refresher(ctx context.Context) (*refresher.Refresher, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	opts := refresher.Options{
		Delay:        a.cfg.RefreshDelay(),
		PromoteAfter: a.cfg.PromoteAfter(),
		Metrics:      a.metrics,
	}
	// a nil *TelegramNotifier must not end up in the interface
	if tn := a.notifier(); tn != nil {
		opts.Alerter = tn
	}
	return refresher.New(s, a.fetcher(ctx), a.log, opts), nil
}
