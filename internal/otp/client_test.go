package otp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider points the fan-out at a local test server.
type fakeProvider struct {
	name string
	url  string
}

func (p fakeProvider) Name() string { return p.name }

func (p fakeProvider) Request(ctx context.Context, phoneNumber string) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(phoneNumber))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendCycleOneResultPerProvider(t *testing.T) {
	var hits atomic.Int64
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	rejectServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer rejectServer.Close()
	deadServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadServer.Close()

	client := NewClientWithProviders(Config{RatePerSecond: 1000}, []Provider{
		fakeProvider{name: "alpha", url: okServer.URL},
		fakeProvider{name: "beta", url: rejectServer.URL},
		fakeProvider{name: "gamma", url: deadServer.URL},
	}, testLogger())

	results := client.SendCycle(context.Background(), "9876543210")
	require.Len(t, results, 3)

	byName := make(map[string]bool, 3)
	for _, r := range results {
		byName[r.Provider] = r.Success
	}
	assert.True(t, byName["alpha"])
	assert.False(t, byName["beta"])
	assert.False(t, byName["gamma"])
	assert.Equal(t, int64(1), hits.Load(), "each provider is called exactly once per cycle")

	// Results come back in provider order regardless of completion order.
	assert.Equal(t, "alpha", results[0].Provider)
	assert.Equal(t, "beta", results[1].Provider)
	assert.Equal(t, "gamma", results[2].Provider)
	assert.Equal(t, "status 403", results[1].Detail)
	assert.Contains(t, results[2].Detail, "request failed")
}

func TestSendCycleCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClientWithProviders(Config{RatePerSecond: 1000}, []Provider{
		fakeProvider{name: "alpha", url: server.URL},
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := client.SendCycle(ctx, "9876543210")
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestProvidersFixedOrder(t *testing.T) {
	client := NewClient(Config{CountryCode: "+91"}, testLogger())
	assert.Equal(t, []string{"Hungama", "ShemarooMe", "Unacademy"}, client.Providers())
}

func TestHungamaRequest(t *testing.T) {
	req, err := Hungama{CountryCode: "+91"}.Request(context.Background(), "9876543210")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "chcommunication.api.hungama.com", req.URL.Host)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "https://www.hungama.com", req.Header.Get("Origin"))
	assert.NotEmpty(t, req.Header.Get("User-Agent"))

	var payload map[string]any
	require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
	assert.Equal(t, "9876543210", payload["mobileNo"])
	assert.Equal(t, "+91", payload["countryCode"])
	assert.Equal(t, "un", payload["appCode"])
}

func TestShemarooMeRequest(t *testing.T) {
	req, err := ShemarooMe{CountryCode: "+91"}.Request(context.Background(), "9876543210")
	require.NoError(t, err)

	assert.Equal(t, "www.shemaroome.com", req.URL.Host)
	assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", req.Header.Get("Content-Type"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	form, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", form.Get("mobile_no"))
	assert.Equal(t, "organic", form.Get("registration_source"))
}

func TestUnacademyRequest(t *testing.T) {
	req, err := Unacademy{}.Request(context.Background(), "9876543210")
	require.NoError(t, err)

	assert.Equal(t, "unacademy.com", req.URL.Host)
	assert.Equal(t, "true", req.URL.Query().Get("enable-email"))

	var payload map[string]any
	require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
	assert.Equal(t, "9876543210", payload["phone"])
	assert.Equal(t, "IN", payload["country_code"])
	assert.Equal(t, true, payload["send_otp"])
}

func TestRateLimiterBoundsCycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	providers := []Provider{
		fakeProvider{name: "a", url: server.URL},
		fakeProvider{name: "b", url: server.URL},
	}
	// Burst covers the first cycle; the second must wait for tokens.
	client := NewClientWithProviders(Config{RatePerSecond: 10}, providers, testLogger())

	start := time.Now()
	client.SendCycle(context.Background(), "9876543210")
	client.SendCycle(context.Background(), "9876543210")
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "second cycle should wait on the limiter")
}
