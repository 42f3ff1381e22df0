package stt

import (
	"context"
	"net/http"
)

// DefaultProbeURL is requested to decide whether the machine is online.
const DefaultProbeURL = "https://www.google.com"

// HTTPProbe checks connectivity with a HEAD request. Any HTTP response counts
// as online; transport errors and timeouts count as offline.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

// NewHTTPProbe creates a probe for url.
func NewHTTPProbe(url string) *HTTPProbe {
	if url == "" {
		url = DefaultProbeURL
	}
	return &HTTPProbe{URL: url, Client: &http.Client{}}
}

// Online reports whether URL answered before ctx expired.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
