// Package research adapts external probability sources to ports.ProbabilityProvider.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
	"github.com/teatimedev/polymarket-trader/internal/retry"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultRatePerSec  = 2
)

// HTTPProvider asks a research service for an estimate:
//
//	POST {url} {"topic": "...", "marketId": "..."}
//	→ {"probability": 0.55, "confidence": 0.8, "evidence": ["..."], "sourceCount": 3, "timestamp": "..."}
type HTTPProvider struct {
	http    *http.Client
	url     string
	token   string
	limiter *rate.Limiter
	retry   retry.Policy
	now     func() time.Time
}

var _ ports.ProbabilityProvider = (*HTTPProvider)(nil)

// NewHTTPProvider builds a provider for the given endpoint. token, when set, is sent
// as a bearer token. A zero timeout keeps the default.
func NewHTTPProvider(url, token string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPProvider{
		http:    &http.Client{Timeout: timeout},
		url:     url,
		token:   token,
		limiter: rate.NewLimiter(defaultRatePerSec, 2),
		retry:   retry.Default(),
		now:     time.Now,
	}
}

// SetRetryPolicy replaces the retry policy.
func (p *HTTPProvider) SetRetryPolicy(r retry.Policy) {
	p.retry = r
}

type estimateRequest struct {
	Topic    string `json:"topic"`
	MarketID string `json:"marketId"`
}

type estimateResponse struct {
	Probability *float64 `json:"probability"`
	Confidence  *float64 `json:"confidence"`
	Evidence    []string `json:"evidence"`
	SourceCount int      `json:"sourceCount"`
	Timestamp   string   `json:"timestamp"`
}

// Estimate implements ports.ProbabilityProvider.
func (p *HTTPProvider) Estimate(ctx context.Context, marketID, topic string) (domain.ProbabilityEstimate, error) {
	body, err := json.Marshal(estimateRequest{Topic: topic, MarketID: marketID})
	if err != nil {
		return domain.ProbabilityEstimate{}, fmt.Errorf("research.Estimate: marshal: %w", err)
	}

	var resp estimateResponse
	err = p.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := p.once(ctx, body, &resp)
		if err != nil && retry.IsTransient(err) {
			slog.Debug("research request failed, retrying", "market", marketID, "attempt", attempt+1, "err", err)
		}
		return err
	})
	if err != nil {
		return domain.ProbabilityEstimate{}, fmt.Errorf("research.Estimate %s: %w", marketID, err)
	}

	if resp.Probability == nil || resp.Confidence == nil {
		return domain.ProbabilityEstimate{}, fmt.Errorf("research.Estimate %s: probability and confidence are required: %w", marketID, domain.ErrValidation)
	}

	ts := p.now()
	if resp.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, resp.Timestamp)
		if err != nil {
			return domain.ProbabilityEstimate{}, fmt.Errorf("research.Estimate %s: timestamp %q: %w", marketID, resp.Timestamp, domain.ErrValidation)
		}
		ts = parsed
	}

	sources := resp.SourceCount
	if sources == 0 {
		sources = len(resp.Evidence)
	}
	return domain.ProbabilityEstimate{
		MarketID:    marketID,
		Probability: *resp.Probability,
		Confidence:  *resp.Confidence,
		SourceCount: sources,
		Evidence:    resp.Evidence,
		Timestamp:   ts,
	}, nil
}

func (p *HTTPProvider) once(ctx context.Context, body []byte, out *estimateResponse) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("POST %s: %v: %w", p.url, err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("POST %s: status %d: %w", p.url, resp.StatusCode, domain.ErrProviderUnavailable)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("POST %s: no estimate: %w", p.url, domain.ErrNotFound)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: status %d: %s: %w", p.url, resp.StatusCode, msg, domain.ErrValidation)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %v: %w", err, domain.ErrValidation)
	}
	return nil
}
