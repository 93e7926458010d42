// Package readiness decides when the external application can be used.
package readiness

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const DefaultInterval = 250 * time.Millisecond

// HTTPProbe polls a URL until any HTTP response arrives. Connection errors
// mean the server is not listening yet; any status code means it is.
type HTTPProbe struct {
	Client   *http.Client
	Interval time.Duration
}

func NewHTTPProbe() *HTTPProbe {
	return &HTTPProbe{
		Client: &http.Client{
			Timeout:   2 * time.Second,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		Interval: DefaultInterval,
	}
}

// Wait blocks until url answers or ctx ends.
func (p *HTTPProbe) Wait(ctx context.Context, url string) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if p.try(ctx, client, url) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *HTTPProbe) try(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// MatchesMarker reports whether an output line carries the readiness marker.
func MatchesMarker(line, marker string) bool {
	if strings.TrimSpace(marker) == "" {
		return false
	}
	return strings.Contains(line, marker)
}
