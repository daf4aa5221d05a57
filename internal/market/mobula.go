package market

import (
	"bytes"
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

const mobulaDefaultBaseURL = "https://api.mobula.io"

type MobulaProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type mobulaResponse struct {
	Data      json.RawMessage   `json:"data"`
	DataArray []mobulaAssetData `json:"dataArray"`
}

type mobulaAssetData struct {
	Key            string          `json:"key"`
	ID             json.RawMessage `json:"id"`
	Name           string          `json:"name"`
	Symbol         string          `json:"symbol"`
	Logo           string          `json:"logo"`
	Price          decimal.Decimal `json:"price"`
	PriceChange24h decimal.Decimal `json:"price_change_24h"`
	MarketCap      decimal.Decimal `json:"market_cap"`
	Volume         decimal.Decimal `json:"volume"`
}

func NewMobulaProvider(baseURL, apiKey string) *MobulaProvider {
	resolvedBaseURL := strings.TrimRight(baseURL, "/")
	if resolvedBaseURL == "" {
		resolvedBaseURL = mobulaDefaultBaseURL
	}

	return &MobulaProvider{
		baseURL: resolvedBaseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *MobulaProvider) Name() string {
	return "mobula"
}

// FetchPrices sends numeric Mobula ids as "ids" and asset names as "assets".
func (p *MobulaProvider) FetchPrices(ctx context.Context, assetIDs []string) ([]Quote, error) {
	ids := normalizeIDs(assetIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	var numeric, named []string
	for _, id := range ids {
		if _, err := strconv.ParseInt(id, 10, 64); err == nil {
			numeric = append(numeric, id)
		} else {
			named = append(named, id)
		}
	}

	query := url.Values{}
	if len(numeric) > 0 {
		query.Set("ids", strings.Join(numeric, ","))
	}
	if len(named) > 0 {
		query.Set("assets", strings.Join(named, ","))
	}

	rows, err := p.fetchRows(ctx, "/api/1/market/multi-data", query)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}

	quotes := make([]Quote, 0, len(rows))
	for _, row := range rows {
		key := strings.ToLower(row.lookupKey())
		if _, ok := requested[key]; !ok || !row.Price.IsPositive() {
			continue
		}
		quotes = append(quotes, Quote{AssetID: key, Price: row.Price, Provider: p.Name()})
	}
	return quotes, nil
}

func (p *MobulaProvider) FetchTopAssets(ctx context.Context, limit int) ([]Asset, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("sortBy", "market_cap")
	query.Set("sortOrder", "desc")
	query.Set("limit", strconv.Itoa(limit))

	rows, err := p.fetchRows(ctx, "/api/1/market/query", query)
	if err != nil {
		return nil, err
	}

	assets := make([]Asset, 0, len(rows))
	for _, row := range rows {
		id := strings.ToLower(row.lookupKey())
		if id == "" {
			id = strings.ToLower(row.Name)
		}
		if id == "" {
			continue
		}
		assets = append(assets, Asset{
			ID:        id,
			Symbol:    strings.ToUpper(row.Symbol),
			Name:      row.Name,
			ImageURL:  row.Logo,
			Price:     row.Price,
			Change24h: row.PriceChange24h,
			MarketCap: row.MarketCap,
			Volume24h: row.Volume,
		})
		if len(assets) == limit {
			break
		}
	}
	return assets, nil
}

func (p *MobulaProvider) fetchRows(ctx context.Context, path string, query url.Values) ([]mobulaAssetData, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("mobula api key is not set")
	}

	endpoint, err := url.Parse(p.baseURL + path)
	if err != nil {
		return nil, err
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("mobula error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseMobulaRows(body)
}

// parseMobulaRows accepts the shapes Mobula returns across endpoints: a bare
// array, {"dataArray": [...]}, {"data": [...]}, {"data": {...single row...}}
// and {"data": {"<asset>": {...} | <price>}}.
func parseMobulaRows(body []byte) ([]mobulaAssetData, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var rows []mobulaAssetData
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var payload mobulaResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if len(payload.DataArray) > 0 {
		return payload.DataArray, nil
	}

	data := bytes.TrimSpace(payload.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var rows []mobulaAssetData
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if _, single := fields["price"]; single {
		var row mobulaAssetData
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, err
		}
		return []mobulaAssetData{row}, nil
	}

	rows := make([]mobulaAssetData, 0, len(fields))
	for key, raw := range fields {
		var row mobulaAssetData
		if err := json.Unmarshal(raw, &row); err != nil {
			var price decimal.Decimal
			if err := json.Unmarshal(raw, &price); err != nil {
				continue
			}
			row = mobulaAssetData{Price: price}
		}
		row.Key = key
		rows = append(rows, row)
	}
	return rows, nil
}

func (r mobulaAssetData) lookupKey() string {
	if key := strings.TrimSpace(r.Key); key != "" {
		return key
	}
	id, err := parseMobulaID(r.ID)
	if err != nil {
		return ""
	}
	return id
}

func parseMobulaID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing mobula id")
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str), nil
	}

	var intID int64
	if err := json.Unmarshal(raw, &intID); err == nil {
		return strconv.FormatInt(intID, 10), nil
	}

	var floatID float64
	if err := json.Unmarshal(raw, &floatID); err == nil {
		if floatID == float64(int64(floatID)) {
			return strconv.FormatInt(int64(floatID), 10), nil
		}
		return strconv.FormatFloat(floatID, 'f', -1, 64), nil
	}

	return "", fmt.Errorf("invalid mobula id")
}
