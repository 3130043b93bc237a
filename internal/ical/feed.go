package ical

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxFeedBytes bounds how much of a feed response is read.
const maxFeedBytes = 8 << 20

// HTTPFeed downloads a calendar feed over HTTP.
type HTTPFeed struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPFeed(url string, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{URL: url, Client: &http.Client{}, Timeout: timeout}
}

func (f *HTTPFeed) Fetch(ctx context.Context) (string, error) {
	if f.URL == "" {
		return "", fmt.Errorf("calendar feed url is not configured")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")
	req.Header.Set("Cache-Control", "no-store")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download calendar feed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("failed to download calendar feed (%d)", res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read calendar feed: %w", err)
	}
	return string(body), nil
}
