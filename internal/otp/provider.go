// Package otp holds the clients for the fixed set of external OTP
// providers and the fan-out that calls each of them once per cycle.
package otp

import (
	"context"
	"net/http"
)

// Provider builds the single OTP-trigger request for one external service.
type Provider interface {
	Name() string
	Request(ctx context.Context, phoneNumber string) (*http.Request, error)
}

// baseHeaders returns the browser-like headers shared by every provider.
func baseHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:147.0) Gecko/20100101 Firefox/147.0")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	h.Set("Sec-GPC", "1")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Connection", "keep-alive")
	return h
}

func applyHeaders(req *http.Request, extra map[string]string) {
	req.Header = baseHeaders()
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}
