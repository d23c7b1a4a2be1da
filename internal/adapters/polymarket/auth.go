package polymarket

// Two-level CLOB authentication:
//   L1: EIP-712 ClobAuth signature by the wallet → derive API credentials
//   L2: HMAC-SHA256 over timestamp+method+path+body on every private call

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/domain"
)

// AuthClient wraps Client with L1/L2 authentication for the private CLOB endpoints.
type AuthClient struct {
	*Client
	signer *Signer

	mu    sync.Mutex
	creds *apiCredentials
	now   func() time.Time
}

// NewAuthClient creates an authenticated client for the signer's wallet.
func NewAuthClient(c *Client, signer *Signer) *AuthClient {
	return &AuthClient{Client: c, signer: signer, now: time.Now}
}

// EnsureCreds derives the API credentials through L1 auth once and caches them.
func (ac *AuthClient) EnsureCreds(ctx context.Context) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.creds != nil {
		return nil
	}

	ts := strconv.FormatInt(ac.now().Unix(), 10)
	sig, err := ac.signer.signClobAuth(ts, 0)
	if err != nil {
		return fmt.Errorf("auth.EnsureCreds: %w", err)
	}

	headers := map[string]string{
		"POLY_ADDRESS":   ac.signer.Address(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": ts,
		"POLY_NONCE":     "0",
	}
	var creds apiCredentials
	err = ac.do(ctx, ac.clobLimiter, request{
		method:  http.MethodGet,
		url:     ac.clobBase + "/auth/derive-api-key",
		headers: func() (map[string]string, error) { return headers, nil },
	}, &creds)
	if err != nil {
		return fmt.Errorf("auth.EnsureCreds: derive-api-key: %w", err)
	}
	if creds.APIKey == "" || creds.Secret == "" {
		return fmt.Errorf("auth.EnsureCreds: empty credentials: %w", domain.ErrSigningFailure)
	}
	ac.creds = &creds
	return nil
}

func (ac *AuthClient) apiKey() string {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.creds == nil {
		return ""
	}
	return ac.creds.APIKey
}

// l2Headers returns the authenticated headers for one L2 request.
func (ac *AuthClient) l2Headers(method, path, body string) (map[string]string, error) {
	ac.mu.Lock()
	creds := ac.creds
	ac.mu.Unlock()
	if creds == nil {
		return nil, fmt.Errorf("auth: credentials not derived: %w", domain.ErrSigningFailure)
	}

	ts := strconv.FormatInt(ac.now().Unix(), 10)
	sig, err := hmacSignature(creds.Secret, ts+strings.ToUpper(method)+path+body)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"POLY_ADDRESS":    ac.signer.Address(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    creds.APIKey,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// hmacSignature signs msg with the base64url API secret.
func hmacSignature(secret, msg string) (string, error) {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: decode secret: %v: %w", err, domain.ErrSigningFailure)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// doL2 executes an authenticated request under the client retry policy.
// Headers are rebuilt on every attempt so the timestamp stays fresh while the
// body stays byte-identical.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, reqBody, out any) error {
	req, err := ac.l2Request(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	return ac.do(ctx, ac.clobLimiter, req, out)
}

// doL2Once executes an authenticated request exactly once. Order posts use it;
// their caller owns the retry policy.
func (ac *AuthClient) doL2Once(ctx context.Context, method, path string, reqBody, out any) error {
	req, err := ac.l2Request(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	return ac.once(ctx, ac.clobLimiter, req, out)
}

func (ac *AuthClient) l2Request(ctx context.Context, method, path string, reqBody any) (request, error) {
	if err := ac.EnsureCreds(ctx); err != nil {
		return request{}, err
	}

	var body []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return request{}, fmt.Errorf("marshal: %w", err)
		}
		body = b
	}

	return request{
		method: method,
		url:    ac.clobBase + path,
		body:   body,
		headers: func() (map[string]string, error) {
			return ac.l2Headers(method, path, string(body))
		},
	}, nil
}
