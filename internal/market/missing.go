package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/config"
)

// MissingProvider stands in when no provider is configured so lookups fall
// through to the cache.
type MissingProvider struct {
	name string
}

func NewMissingProvider(name string) MissingProvider {
	return MissingProvider{name: name}
}

func (p MissingProvider) Name() string {
	return p.name
}

func (p MissingProvider) FetchPrices(ctx context.Context, assetIDs []string) ([]Quote, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	return nil, fmt.Errorf("%s provider not configured", p.name)
}

func (p MissingProvider) FetchTopAssets(ctx context.Context, limit int) ([]Asset, error) {
	return nil, fmt.Errorf("%s provider not configured", p.name)
}

func NewProviderFromConfig(cfg config.Config) Provider {
	name := strings.TrimSpace(strings.ToLower(cfg.CryptoProviderName))

	switch name {
	case "mobula":
		return NewMobulaProvider(cfg.CryptoProviderBaseURL, cfg.CryptoProviderAPIKey)
	case "coingecko":
		baseURL := cfg.CryptoProviderBaseURL
		if baseURL == "" {
			baseURL = CoinGeckoDefaultBaseURL("public")
		}
		return NewCoinGeckoProvider(baseURL, cfg.CryptoProviderAPIKey)
	case "coingecko-pro":
		baseURL := cfg.CryptoProviderBaseURL
		if baseURL == "" {
			baseURL = CoinGeckoDefaultBaseURL("pro")
		}
		return NewCoinGeckoProvider(baseURL, cfg.CryptoProviderAPIKey)
	default:
		return NewMissingProvider("crypto")
	}
}

// NewCacheFromConfig prefers Redis so the API and the worker share cached
// prices, and falls back to a process-local cache when Redis is not
// configured or not reachable. The returned func releases the cache.
func NewCacheFromConfig(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (Cache, func()) {
	if cfg.RedisURL != "" {
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			return NewRedisCache(client), func() { _ = client.Close() }
		}
		log.WithError(err).Warn("redis unavailable; using in-process price cache")
	}
	cache := NewMemoryCache(cfg.PriceCacheSize)
	return cache, cache.Stop
}
