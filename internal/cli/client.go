// Package cli is the HTTP client behind the bnt command.
package cli

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
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) CreateSession(ctx context.Context, creatorID, displayName string, maxPlayers int, durationSeconds int64, startingUSD float64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions", map[string]any{
		"creator_id":       creatorID,
		"display_name":     displayName,
		"max_players":      maxPlayers,
		"duration_seconds": durationSeconds,
		"starting_usd":     startingUSD,
	}, &out)
	return out, err
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/", nil, &out)
	return out, err
}

func (c *Client) Join(ctx context.Context, sessionID, playerID, displayName string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/join", map[string]any{
		"player_id":    playerID,
		"display_name": displayName,
	}, &out)
	return out, err
}

func (c *Client) Start(ctx context.Context, sessionID, playerID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/start", map[string]any{
		"player_id": playerID,
	}, &out)
	return out, err
}

func (c *Client) End(ctx context.Context, sessionID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/end", map[string]any{}, &out)
	return out, err
}

func (c *Client) Trade(ctx context.Context, sessionID, playerID, direction string, quantity float64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/trade", map[string]any{
		"player_id": playerID,
		"direction": direction,
		"quantity":  quantity,
	}, &out)
	return out, err
}

func (c *Client) Transactions(ctx context.Context, sessionID, actorID string, offset, limit int64) (map[string]any, error) {
	q := url.Values{}
	if actorID != "" {
		q.Set("actor_id", actorID)
	}
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.FormatInt(limit, 10))
	}
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/transactions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) TransactionStats(ctx context.Context, sessionID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/transactions/stats", nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, sessionID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/leaderboard", nil, &out)
	return out, err
}

func (c *Client) PurchaseBot(ctx context.Context, sessionID, playerID, kind, name string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/bots", map[string]any{
		"player_id": playerID,
		"kind":      kind,
		"name":      name,
	}, &out)
	return out, err
}

func (c *Client) ListBots(ctx context.Context, sessionID, playerID string) (map[string]any, error) {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/bots"
	if playerID != "" {
		path += "?player_id=" + url.QueryEscape(playerID)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) ToggleBot(ctx context.Context, sessionID, playerID, botID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/bots/"+url.PathEscape(botID)+"/toggle", map[string]any{
		"player_id": playerID,
	}, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
