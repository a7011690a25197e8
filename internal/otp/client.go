package otp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"otptaskd/internal/core"
)

// Config controls the outbound OTP client.
type Config struct {
	CountryCode    string
	RequestTimeout time.Duration
	// RatePerSecond caps outbound provider calls across all tasks.
	RatePerSecond float64
}

// Client fans out one request per provider per cycle. All tasks share one
// client, so the rate limiter bounds the process-wide outbound load.
type Client struct {
	http      *http.Client
	providers []Provider
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient builds a client over the fixed provider set.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	providers := []Provider{
		Hungama{CountryCode: cfg.CountryCode},
		ShemarooMe{CountryCode: cfg.CountryCode},
		Unacademy{},
	}
	return NewClientWithProviders(cfg, providers, logger)
}

// NewClientWithProviders is the injectable constructor used by tests.
func NewClientWithProviders(cfg Config, providers []Provider, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = float64(len(providers))
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		providers: providers,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), len(providers)),
		logger:    logger,
	}
}

// Providers returns the fixed provider names, in fan-out order.
func (c *Client) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// SendCycle calls every provider exactly once for phoneNumber and returns
// one result per provider. Provider failures are recorded, never
// propagated: the cycle always completes for all providers.
func (c *Client) SendCycle(ctx context.Context, phoneNumber string) core.CycleResult {
	results := make(core.CycleResult, len(c.providers))
	var g errgroup.Group
	for i, p := range c.providers {
		g.Go(func() error {
			results[i] = c.send(ctx, p, phoneNumber)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Client) send(ctx context.Context, p Provider, phoneNumber string) core.ProviderResult {
	result := core.ProviderResult{Provider: p.Name()}
	if err := c.limiter.Wait(ctx); err != nil {
		result.Detail = fmt.Sprintf("rate limit wait: %v", err)
		return result
	}
	req, err := p.Request(ctx, phoneNumber)
	if err != nil {
		result.Detail = fmt.Sprintf("build request: %v", err)
		return result
	}
	resp, err := c.http.Do(req)
	if err != nil {
		result.Detail = fmt.Sprintf("request failed: %v", err)
		c.logger.Debug("provider request failed", "provider", p.Name(), "err", err)
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Detail = fmt.Sprintf("status %d", resp.StatusCode)
		c.logger.Debug("provider rejected request", "provider", p.Name(), "status", resp.StatusCode)
		return result
	}
	result.Success = true
	return result
}
