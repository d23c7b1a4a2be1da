package research_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatimedev/polymarket-trader/internal/adapters/research"
	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newHTTPProvider(url string) *research.HTTPProvider {
	p := research.NewHTTPProvider(url, "tok", time.Second)
	p.SetRetryPolicy(retry.Policy{MaxAttempts: 3}.WithSleep(noSleep))
	return p
}

func TestHTTPProvider_Estimate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req["marketId"])
		assert.Equal(t, "Will it rain?", req["topic"])

		w.Write([]byte(`{"probability":0.55,"confidence":0.8,"evidence":["a","b"],"timestamp":"2026-10-16T09:00:00Z"}`))
	}))
	defer srv.Close()

	est, err := newHTTPProvider(srv.URL).Estimate(context.Background(), "0xabc", "Will it rain?")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", est.MarketID)
	assert.InDelta(t, 0.55, est.Probability, 1e-9)
	assert.InDelta(t, 0.8, est.Confidence, 1e-9)
	assert.Equal(t, 2, est.SourceCount)
	assert.Equal(t, []string{"a", "b"}, est.Evidence)
	assert.Equal(t, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), est.Timestamp.UTC())
}

func TestHTTPProvider_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"probability":0.3,"confidence":0.9}`))
	}))
	defer srv.Close()

	est, err := newHTTPProvider(srv.URL).Estimate(context.Background(), "m", "t")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.InDelta(t, 0.3, est.Probability, 1e-9)
	assert.False(t, est.Timestamp.IsZero())
}

func TestHTTPProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusBadGateway, ``, domain.ErrProviderUnavailable},
		{"unknown market", http.StatusNotFound, ``, domain.ErrNotFound},
		{"bad request", http.StatusBadRequest, `{"error":"bad"}`, domain.ErrValidation},
		{"missing probability", http.StatusOK, `{"confidence":0.8}`, domain.ErrValidation},
		{"bad timestamp", http.StatusOK, `{"probability":0.5,"confidence":0.8,"timestamp":"yesterday"}`, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newHTTPProvider(srv.URL).Estimate(context.Background(), "m", "t")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "estimates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileProvider_Estimate(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
estimates:
  - market_id: "0xabc"
    probability: 0.55
    confidence: 0.8
    evidence: ["poll", "model"]
    timestamp: 2026-10-16T09:00:00Z
  - market_id: "0xdef"
    probability: 0.2
    confidence: 0.95
    source_count: 7
`)
	p, err := research.NewFileProvider(path)
	require.NoError(t, err)

	est, err := p.Estimate(context.Background(), "0xabc", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.55, est.Probability, 1e-9)
	assert.Equal(t, 2, est.SourceCount)
	assert.Equal(t, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), est.Timestamp.UTC())

	est, err = p.Estimate(context.Background(), "0xdef", "")
	require.NoError(t, err)
	assert.Equal(t, 7, est.SourceCount)

	_, err = p.Estimate(context.Background(), "0x999", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFileProvider_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "estimates:\n  - market_id: m\n    probability: 0.4\n    confidence: 0.9\n")
	p, err := research.NewFileProvider(path)
	require.NoError(t, err)

	writeFile(t, dir, "estimates:\n  - market_id: m\n    probability: 0.6\n    confidence: 0.9\n")
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	est, err := p.Estimate(context.Background(), "m", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, est.Probability, 1e-9)
}

func TestFileProvider_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := research.NewFileProvider(writeFile(t, dir, "estimates:\n  - probability: 0.4\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = research.NewFileProvider(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
