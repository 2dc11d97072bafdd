package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"zerodte/internal/config"
	"zerodte/internal/market"
	"zerodte/internal/models"
)

// Client reads snapshots, option chains and VIX from the market data gateway.
//
//	GET /v1/snapshot/{symbol}
//	GET /v1/chain/{symbol}?expiration=YYYY-MM-DD
//	GET /v1/vix
//	GET /v1/account
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

var (
	_ market.SnapshotProvider = (*Client)(nil)
	_ market.ChainProvider    = (*Client)(nil)
	_ market.VIXProvider      = (*Client)(nil)
	_ market.AccountProvider  = (*Client)(nil)
)

func New(cfg config.GatewayConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

type snapshotResponse struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	VIX       float64   `json:"vix"`
	VWAP      float64   `json:"vwap"`
	Volume    float64   `json:"last_size"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	PrevClose float64   `json:"prev_close"`
	IVRank    *float64  `json:"iv_rank"`
	Open      bool      `json:"market_open"`
	Timestamp time.Time `json:"timestamp"`
}

type chainResponse struct {
	Symbol     string        `json:"symbol"`
	Expiration string        `json:"expiration"`
	Options    []chainOption `json:"options"`
}

type chainOption struct {
	Symbol       string  `json:"symbol"`
	Strike       float64 `json:"strike"`
	Type         string  `json:"type"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Delta        float64 `json:"delta"`
	Gamma        float64 `json:"gamma"`
	IV           float64 `json:"iv"`
	OpenInterest int64   `json:"open_interest"`
}

type vixResponse struct {
	Value float64 `json:"value"`
}

type accountResponse struct {
	BuyingPower decimal.Decimal `json:"buying_power"`
	MarginUsed  decimal.Decimal `json:"margin_used"`
}

func (c *Client) Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return models.MarketSnapshot{}, errors.New("gateway snapshot: symbol is empty")
	}
	var resp snapshotResponse
	if err := c.get(ctx, "/v1/snapshot/"+url.PathEscape(symbol), nil, &resp); err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("gateway snapshot %s: %w", symbol, err)
	}
	if resp.Price <= 0 {
		return models.MarketSnapshot{}, fmt.Errorf("gateway snapshot %s: missing price", symbol)
	}
	snap := models.MarketSnapshot{
		Symbol:          symbol,
		UnderlyingPrice: resp.Price,
		VIX:             resp.VIX,
		VWAP:            resp.VWAP,
		Volume:          resp.Volume,
		DayHigh:         resp.High,
		DayLow:          resp.Low,
		PrevClose:       resp.PrevClose,
		MarketOpen:      resp.Open,
		Source:          "gateway",
		Timestamp:       resp.Timestamp,
	}
	if resp.IVRank != nil {
		snap.IVRank = *resp.IVRank
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	return snap, nil
}

func (c *Client) Chain(ctx context.Context, symbol string, expiration string) ([]models.OptionQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	q := url.Values{}
	if exp := strings.TrimSpace(expiration); exp != "" {
		q.Set("expiration", exp)
	}
	var resp chainResponse
	if err := c.get(ctx, "/v1/chain/"+url.PathEscape(symbol), q, &resp); err != nil {
		return nil, fmt.Errorf("gateway chain %s %s: %w", symbol, expiration, err)
	}
	out := make([]models.OptionQuote, 0, len(resp.Options))
	for _, o := range resp.Options {
		right, ok := parseRight(o.Type)
		if !ok || o.Strike <= 0 {
			continue
		}
		out = append(out, models.OptionQuote{
			Symbol:       o.Symbol,
			Strike:       o.Strike,
			Right:        right,
			Bid:          o.Bid,
			Ask:          o.Ask,
			Delta:        o.Delta,
			Gamma:        o.Gamma,
			IV:           o.IV,
			OpenInterest: o.OpenInterest,
		})
	}
	return out, nil
}

func (c *Client) VIX(ctx context.Context) (float64, error) {
	var resp vixResponse
	if err := c.get(ctx, "/v1/vix", nil, &resp); err != nil {
		return 0, fmt.Errorf("gateway vix: %w", err)
	}
	if resp.Value <= 0 {
		return 0, errors.New("gateway vix: missing value")
	}
	return resp.Value, nil
}

func (c *Client) Account(ctx context.Context) (models.AccountInfo, error) {
	var resp accountResponse
	if err := c.get(ctx, "/v1/account", nil, &resp); err != nil {
		return models.AccountInfo{}, fmt.Errorf("gateway account: %w", err)
	}
	return models.AccountInfo{BuyingPower: resp.BuyingPower, MarginUsed: resp.MarginUsed}, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return errors.New("gateway base url is empty")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(c.APIKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return market.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.Unmarshal(b, out)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func parseRight(v string) (models.OptionRight, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "P", "PUT":
		return models.RightPut, true
	case "C", "CALL":
		return models.RightCall, true
	default:
		return "", false
	}
}
