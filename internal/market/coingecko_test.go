package market

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/config"
)

func TestCoinGeckoFetchPrices(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50000.12},"ethereum":{"eur":2800}}`))
	}))
	defer ts.Close()

	quotes, err := NewCoinGeckoProvider(ts.URL, "demo-key").FetchPrices(context.Background(), []string{" Bitcoin", "ethereum", "bitcoin"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "bitcoin", quotes[0].AssetID)
	assert.Equal(t, "50000.12", quotes[0].Price.String())
	assert.Equal(t, "coingecko", quotes[0].Provider)
}

func TestCoinGeckoFetchTopAssets(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "market_cap_desc", r.URL.Query().Get("order"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","image":"https://img/btc.png","current_price":50000,"market_cap":980000000000,"total_volume":25000000000,"price_change_percentage_24h":2.5},
			{"id":"ethereum","symbol":"eth","name":"Ethereum","image":"https://img/eth.png","current_price":3000.5,"market_cap":null,"total_volume":12000000000,"price_change_percentage_24h":-1.2}
		]`))
	}))
	defer ts.Close()

	assets, err := NewCoinGeckoProvider(ts.URL, "demo-key").FetchTopAssets(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "BTC", assets[0].Symbol)
	assert.Equal(t, "https://img/btc.png", assets[0].ImageURL)
	assert.Equal(t, "2.5", assets[0].Change24h.String())
	assert.Equal(t, "3000.5", assets[1].Price.String())
	assert.True(t, assets[1].MarketCap.IsZero())
}

func TestCoinGeckoErrors(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := NewCoinGeckoProvider(ts.URL, "demo-key").FetchPrices(context.Background(), []string{"bitcoin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")

	_, err = NewCoinGeckoProvider(ts.URL, "").FetchTopAssets(context.Background(), 5)
	assert.ErrorContains(t, err, "api key is not set")
}

func TestCoinGeckoProHeader(t *testing.T) {
	t.Parallel()

	p := NewCoinGeckoProvider(CoinGeckoDefaultBaseURL("pro"), "pro-key")
	assert.Equal(t, "x-cg-pro-api-key", p.apiKeyHeader)
	assert.Equal(t, coinGeckoProBaseURL, p.baseURL)
}

func TestNewProviderFromConfig(t *testing.T) {
	t.Parallel()

	_, ok := NewProviderFromConfig(config.Config{CryptoProviderName: "CoinGecko", CryptoProviderAPIKey: "k"}).(*CoinGeckoProvider)
	assert.True(t, ok)

	pro, ok := NewProviderFromConfig(config.Config{CryptoProviderName: "coingecko-pro"}).(*CoinGeckoProvider)
	require.True(t, ok)
	assert.Equal(t, coinGeckoProBaseURL, pro.baseURL)

	_, ok = NewProviderFromConfig(config.Config{CryptoProviderName: "mobula"}).(*MobulaProvider)
	assert.True(t, ok)

	missing := NewProviderFromConfig(config.Config{})
	_, err := missing.FetchPrices(context.Background(), []string{"bitcoin"})
	assert.ErrorContains(t, err, "provider not configured")
}

func TestNewCacheFromConfigFallsBackToMemory(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cache, release := NewCacheFromConfig(context.Background(), config.Config{PriceCacheSize: 10}, log)
	defer release()
	_, ok := cache.(*MemoryCache)
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	cache, release2 := NewCacheFromConfig(ctx, config.Config{RedisURL: "not a url", PriceCacheSize: 10}, log)
	defer release2()
	_, ok = cache.(*MemoryCache)
	assert.True(t, ok, "unparseable redis url falls back to memory")
}
