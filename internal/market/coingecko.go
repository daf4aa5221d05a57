package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	coinGeckoPublicBaseURL = "https://api.coingecko.com/api/v3"
	coinGeckoProBaseURL    = "https://pro-api.coingecko.com/api/v3"
)

type CoinGeckoProvider struct {
	baseURL      string
	apiKey       string
	apiKeyHeader string
	client       *http.Client
	vsCurrency   string
}

type coinGeckoMarket struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	Image                    string          `json:"image"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
}

func NewCoinGeckoProvider(baseURL, apiKey string) *CoinGeckoProvider {
	resolvedBaseURL := strings.TrimRight(baseURL, "/")
	if resolvedBaseURL == "" {
		resolvedBaseURL = coinGeckoPublicBaseURL
	}

	header := "x-cg-demo-api-key"
	if strings.Contains(resolvedBaseURL, "pro-api.coingecko.com") {
		header = "x-cg-pro-api-key"
	}

	return &CoinGeckoProvider{
		baseURL:      resolvedBaseURL,
		apiKey:       apiKey,
		apiKeyHeader: header,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		vsCurrency: "usd",
	}
}

func (p *CoinGeckoProvider) Name() string {
	return "coingecko"
}

func (p *CoinGeckoProvider) FetchPrices(ctx context.Context, assetIDs []string) ([]Quote, error) {
	ids := normalizeIDs(assetIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", p.vsCurrency)

	var payload map[string]map[string]decimal.Decimal
	if err := p.get(ctx, "/simple/price", query, &payload); err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(payload))
	for _, id := range ids {
		price, ok := payload[id][p.vsCurrency]
		if !ok || !price.IsPositive() {
			continue
		}
		quotes = append(quotes, Quote{AssetID: id, Price: price, Provider: p.Name()})
	}
	return quotes, nil
}

func (p *CoinGeckoProvider) FetchTopAssets(ctx context.Context, limit int) ([]Asset, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("vs_currency", p.vsCurrency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(limit))
	query.Set("page", "1")
	query.Set("price_change_percentage", "24h")

	var payload []coinGeckoMarket
	if err := p.get(ctx, "/coins/markets", query, &payload); err != nil {
		return nil, err
	}

	assets := make([]Asset, 0, len(payload))
	for _, row := range payload {
		if row.ID == "" {
			continue
		}
		assets = append(assets, Asset{
			ID:        row.ID,
			Symbol:    strings.ToUpper(row.Symbol),
			Name:      row.Name,
			ImageURL:  row.Image,
			Price:     row.CurrentPrice,
			Change24h: row.PriceChangePercentage24h,
			MarketCap: row.MarketCap,
			Volume24h: row.TotalVolume,
		})
	}
	return assets, nil
}

func (p *CoinGeckoProvider) get(ctx context.Context, path string, query url.Values, dst any) error {
	if p.apiKey == "" {
		return fmt.Errorf("coingecko api key is not set")
	}

	endpoint, err := url.Parse(p.baseURL + path)
	if err != nil {
		return err
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(p.apiKeyHeader, p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("coingecko error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("coingecko decode %s: %w", path, err)
	}
	return nil
}

func CoinGeckoDefaultBaseURL(plan string) string {
	if strings.EqualFold(plan, "pro") {
		return coinGeckoProBaseURL
	}
	return coinGeckoPublicBaseURL
}
