package polymarket_test

import (
	"context"
	"net/http/httptest"
	"time"

	"github.com/teatimedev/polymarket-trader/internal/adapters/polymarket"
	"github.com/teatimedev/polymarket-trader/internal/retry"
)

// hardhat account #0, never funded on Polygon
const (
	testKey    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testWallet = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testFunder = "0x1111111111111111111111111111111111111111"
)

func newTestClient(srv *httptest.Server) *polymarket.Client {
	c := polymarket.NewClient(polymarket.Endpoints{CLOB: srv.URL, Gamma: srv.URL, Data: srv.URL})
	c.SetRetryPolicy(retry.Policy{MaxAttempts: 3}.WithSleep(func(context.Context, time.Duration) error { return nil }))
	return c
}
