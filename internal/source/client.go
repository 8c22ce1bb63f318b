package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const userAgent = "RecallGuard/1.0"

// httpClient wraps upstream requests with a per-source rate limiter and
// bounded exponential-backoff retries (base 2s, 3 retries).
type httpClient struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func newHTTPClient(timeout time.Duration, requestsPerSecond float64, logger zerolog.Logger) *httpClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if requestsPerSecond == 0 {
		requestsPerSecond = 2
	}
	return &httpClient{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	backoff := retry.WithMaxRetries(3, retry.NewExponential(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json, text/html")

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			io.Copy(io.Discard, resp.Body)
			return retry.RetryableError(fmt.Errorf("upstream returned %s", resp.Status))
		}
		if resp.StatusCode >= http.StatusBadRequest {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("upstream returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("upstream request failed after retries")
		return nil, err
	}
	return body, nil
}

func (c *httpClient) getJSON(ctx context.Context, url string, out interface{}) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
