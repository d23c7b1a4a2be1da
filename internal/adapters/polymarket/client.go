package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/retry"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"
	defaultDataBase  = "https://data-api.polymarket.com"

	// Limits at 60% of the documented ones.
	// Gamma /markets and /events: 300/10s → 18/s
	gammaRatePerSec = 18
	// CLOB general: 9000/10s → 540/s
	clobRatePerSec = 540
	// Data API: 200/10s → 12/s
	dataRatePerSec = 12

	defaultTimeout = 15 * time.Second
	maxErrorBody   = 512
)

// Endpoints overrides the production base URLs. Empty fields keep the defaults.
type Endpoints struct {
	CLOB  string
	Gamma string
	Data  string
}

// Client is the Polymarket HTTP client with per-API rate limiting and retries.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	dataBase     string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	dataLimiter  *rate.Limiter
	retry        retry.Policy
}

// NewClient creates a Client for the given endpoints.
func NewClient(ep Endpoints) *Client {
	if ep.CLOB == "" {
		ep.CLOB = defaultCLOBBase
	}
	if ep.Gamma == "" {
		ep.Gamma = defaultGammaBase
	}
	if ep.Data == "" {
		ep.Data = defaultDataBase
	}
	return &Client{
		http:         &http.Client{Timeout: defaultTimeout},
		clobBase:     ep.CLOB,
		gammaBase:    ep.Gamma,
		dataBase:     ep.Data,
		clobLimiter:  rate.NewLimiter(clobRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		dataLimiter:  rate.NewLimiter(dataRatePerSec, 5),
		retry:        retry.Default(),
	}
}

// SetRetryPolicy replaces the retry policy. Tests use it to drop real sleeps.
func (c *Client) SetRetryPolicy(p retry.Policy) {
	c.retry = p
}

// SetTimeout sets the per-request HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.http.Timeout = d
	}
}

// request describes one HTTP call. headers is evaluated on every attempt so
// signed timestamps stay fresh.
type request struct {
	method  string
	url     string
	body    []byte
	headers func() (map[string]string, error)
}

// get does a rate-limited GET with retries and decodes JSON into out.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.do(ctx, limiter, request{method: http.MethodGet, url: url}, out)
}

// post does a rate-limited JSON POST with retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.do(ctx, limiter, request{method: http.MethodPost, url: url, body: b}, out)
}

// do runs req under the retry policy. Only ErrProviderUnavailable is retried.
func (c *Client) do(ctx context.Context, limiter *rate.Limiter, req request, out any) error {
	return c.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := c.once(ctx, limiter, req, out)
		if err != nil && retry.IsTransient(err) {
			slog.Debug("polymarket request failed, retrying",
				"method", req.method,
				"url", req.url,
				"attempt", attempt+1,
				"err", err,
			)
		}
		return err
	})
}

// once performs a single attempt and maps the outcome onto domain sentinels.
func (c *Client) once(ctx context.Context, limiter *rate.Limiter, req request, out any) error {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.headers != nil {
		headers, err := req.headers()
		if err != nil {
			return err
		}
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %v: %w", req.method, req.url, err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %v: %w", err, domain.ErrProviderUnavailable)
	}

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %v: %w", err, domain.ErrValidation)
	}
	return nil
}

// StatusError is a non-2xx response from a Polymarket API.
type StatusError struct {
	Code int
	Body string
	kind error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Unwrap exposes the mapped domain sentinel.
func (e *StatusError) Unwrap() error {
	return e.kind
}

// statusError maps an HTTP status onto the domain error taxonomy.
func statusError(code int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	e := &StatusError{Code: code, Body: string(bytes.TrimSpace(body))}
	switch {
	case code == http.StatusTooManyRequests || code >= 500:
		e.kind = domain.ErrProviderUnavailable
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.kind = domain.ErrSigningFailure
	case code == http.StatusNotFound:
		e.kind = domain.ErrNotFound
	default:
		e.kind = domain.ErrValidation
	}
	return e
}

// asVenueRejection turns a validation failure on an order post into a venue rejection.
func asVenueRejection(err error) error {
	var se *StatusError
	if errors.As(err, &se) && errors.Is(se.kind, domain.ErrValidation) {
		return fmt.Errorf("%s: %w", se.Error(), domain.ErrOrderRejectedByVenue)
	}
	return err
}
