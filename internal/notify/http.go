package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const sendTimeout = 10 * time.Second

// poster posts JSON bodies, throttled so bursts of market events stay under
// the chat APIs' per-channel limits.
type poster struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
}

func newPoster(name string, perSecond float64, burst int) poster {
	return poster{
		name:    name,
		client:  &http.Client{Timeout: sendTimeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (p poster) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", p.name, err)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: throttle: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", p.name, resp.StatusCode, string(respBody))
	}
	return nil
}
