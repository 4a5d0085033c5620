package sources

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClientConfig configures the shared feed client.
type HTTPClientConfig struct {
	Timeout   time.Duration // per attempt
	Retries   int
	RetryWait time.Duration
	UserAgent string
}

// HTTPClient is the Getter used by every adapter. Transport errors and 5xx
// responses are retried; anything outside 2xx becomes a *FetchError.
type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient creates a resty-backed client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	client := resty.New().
		SetLogger(restyLogger{}).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(4 * wait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.UserAgent != "" {
		// api.weather.gov rejects requests without one.
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &HTTPClient{client: client}
}

// Get fetches url, honouring ctx cancellation between and during attempts.
func (c *HTTPClient) Get(ctx context.Context, source, url string) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, &FetchError{Source: source, URL: url, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &FetchError{Source: source, URL: url, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}
