// Package market is the client for the external price feed service.
// Prices served here are advisory; the session record keeps the
// authoritative snapshot.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bananatrade/internal/game"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type quoteResponse struct {
	PriceMicros   int64   `json:"price_micros"`
	VolatilityBps int64   `json:"volatility_bps"`
	HistoryMicros []int64 `json:"history_micros"`
}

func (c *Client) CurrentPrice(ctx context.Context, sessionID string) (game.PriceQuote, error) {
	var out quoteResponse
	if err := c.getJSON(ctx, "/v1/feeds/"+sessionID+"/price", &out); err != nil {
		return game.PriceQuote{}, err
	}
	if out.PriceMicros <= 0 {
		return game.PriceQuote{}, fmt.Errorf("feed returned non-positive price %d", out.PriceMicros)
	}
	return game.PriceQuote{
		PriceMicros:   out.PriceMicros,
		VolatilityBps: out.VolatilityBps,
		HistoryMicros: out.HistoryMicros,
	}, nil
}

func (c *Client) StartFeed(ctx context.Context, sessionID string, durationSeconds int64) error {
	payload := map[string]any{
		"session_id":       sessionID,
		"duration_seconds": durationSeconds,
	}
	return c.postJSON(ctx, "/v1/feeds", payload, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("market status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode quote: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("market status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
