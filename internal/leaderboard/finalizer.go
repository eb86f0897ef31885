package leaderboard

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

// HTTPFinalizer posts closing standings to an external results service.
type HTTPFinalizer struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPFinalizer(baseURL string, timeout time.Duration) *HTTPFinalizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFinalizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (f *HTTPFinalizer) Finalize(ctx context.Context, rec game.FinalizeRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/results", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("finalize request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("finalize status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
