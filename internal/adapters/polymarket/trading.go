package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

const usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// ContractCaller is the slice of ethclient used for balance reads.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TradingClient submits and manages orders on the CLOB. It implements ports.TradingVenue.
type TradingClient struct {
	auth *AuthClient
	rpc  ContractCaller
}

var _ ports.TradingVenue = (*TradingClient)(nil)

// NewTradingClient creates a TradingClient. rpcURL is used for on-chain balance checks;
// when empty, Balance reports the provider as unavailable.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	tc := &TradingClient{auth: auth}
	if rpcURL == "" {
		return tc, nil
	}
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	tc.rpc = rpc
	return tc, nil
}

// SetContractCaller replaces the RPC backend used by Balance.
func (tc *TradingClient) SetContractCaller(c ContractCaller) {
	tc.rpc = c
}

// PostOrder submits a signed order once. LIMIT orders rest as GTC, MARKET orders are FOK.
func (tc *TradingClient) PostOrder(ctx context.Context, signed domain.SignedOrder, kind domain.OrderKind) (domain.VenueOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.VenueOrder{}, fmt.Errorf("trading.PostOrder: creds: %w", err)
	}

	orderType := "GTC"
	if kind == domain.OrderMarket {
		orderType = "FOK"
	}
	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Salt),
			Maker:         signed.Maker,
			Signer:        signed.Signer,
			Taker:         signed.Taker,
			TokenID:       signed.TokenID,
			MakerAmount:   signed.MakerAmount,
			TakerAmount:   signed.TakerAmount,
			Expiration:    signed.Expiration,
			Nonce:         signed.Nonce,
			FeeRateBps:    signed.FeeRateBps,
			Side:          string(signed.Side),
			SignatureType: int(signed.SignatureType),
			Signature:     signed.Signature,
		},
		Owner:     tc.auth.apiKey(),
		OrderType: orderType,
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2Once(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.VenueOrder{}, fmt.Errorf("trading.PostOrder: %w", asVenueRejection(err))
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.VenueOrder{}, fmt.Errorf("trading.PostOrder: %s: %w", resp.ErrorMsg, domain.ErrOrderRejectedByVenue)
	}

	return postedOrder(signed, resp), nil
}

// postedOrder builds the venue view of a just-accepted order. The limit comes
// from the signed amounts; fills come from the matched amounts in the response,
// which are decimal USDC and shares (maker gives, taker receives).
func postedOrder(signed domain.SignedOrder, resp clobOrderResponse) domain.VenueOrder {
	maker, taker := parseUSDC(signed.MakerAmount), parseUSDC(signed.TakerAmount)
	usdc, shares := maker, taker
	matchedUSDC, matchedShares := parseFloat(resp.MakingAmount), parseFloat(resp.TakingAmount)
	if signed.Side == domain.ActionSell {
		usdc, shares = taker, maker
		matchedUSDC, matchedShares = matchedShares, matchedUSDC
	}
	price := 0.0
	if shares > 0 {
		price = usdc / shares
	}
	avg := 0.0
	if matchedShares > 0 && matchedUSDC > 0 {
		avg = matchedUSDC / matchedShares
	}

	return domain.VenueOrder{
		VenueOrderID:    resp.OrderID,
		TokenID:         signed.TokenID,
		Action:          signed.Side,
		PriceUSD:        price,
		SizeShares:      shares,
		FilledShares:    matchedShares,
		AvgFillPriceUSD: avg,
		Status:          mapOrderStatus(resp.Status, shares, matchedShares),
	}
}

// GetOrder returns the CLOB view of one order. When shares matched, their
// average price is read from the order's trades.
func (tc *TradingClient) GetOrder(ctx context.Context, venueOrderID string) (domain.VenueOrder, error) {
	var o clobOrder
	if err := tc.auth.doL2(ctx, http.MethodGet, "/data/order/"+url.PathEscape(venueOrderID), nil, &o); err != nil {
		return domain.VenueOrder{}, fmt.Errorf("trading.GetOrder %s: %w", venueOrderID, err)
	}
	if o.ID == "" {
		return domain.VenueOrder{}, fmt.Errorf("trading.GetOrder %s: %w", venueOrderID, domain.ErrNotFound)
	}

	v := mapClobOrder(o)
	if v.FilledShares > 0 {
		avg, err := tc.fillPrice(ctx, o)
		if err != nil {
			return domain.VenueOrder{}, fmt.Errorf("trading.GetOrder %s: trades: %w", venueOrderID, err)
		}
		v.AvgFillPriceUSD = avg
	}
	return v, nil
}

// fillPrice is the share-weighted price of the order's legs in its trades.
// It is zero when the venue lists no trade for the order yet.
func (tc *TradingClient) fillPrice(ctx context.Context, o clobOrder) (float64, error) {
	var notional, shares float64
	for _, id := range o.AssociateTrades {
		var resp clobTradesResponse
		if err := tc.auth.doL2(ctx, http.MethodGet, "/data/trades?id="+url.QueryEscape(id), nil, &resp); err != nil {
			return 0, err
		}
		for _, tr := range resp.Data {
			size, price := orderLeg(tr, o.ID)
			notional += size * price
			shares += size
		}
	}
	if shares <= 0 {
		return 0, nil
	}
	return notional / shares, nil
}

// orderLeg returns the size and price orderID traded in tr: the whole trade
// when it was the taker, its maker entry otherwise.
func orderLeg(tr clobTrade, orderID string) (size, price float64) {
	if strings.EqualFold(tr.TakerOrderID, orderID) {
		return parseFloat(tr.Size), parseFloat(tr.Price)
	}
	for _, m := range tr.MakerOrders {
		if strings.EqualFold(m.OrderID, orderID) {
			return parseFloat(m.MatchedAmount), parseFloat(m.Price)
		}
	}
	return 0, 0
}

// OpenOrders returns every live order of the account, following the cursor.
func (tc *TradingClient) OpenOrders(ctx context.Context) ([]domain.VenueOrder, error) {
	const endCursor = "LTE="

	var orders []domain.VenueOrder
	cursor := ""
	for page := 0; page < 50; page++ {
		path := "/data/orders"
		if cursor != "" {
			path += "?next_cursor=" + url.QueryEscape(cursor)
		}
		var resp clobOrdersResponse
		if err := tc.auth.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("trading.OpenOrders: %w", err)
		}
		for _, o := range resp.Data {
			orders = append(orders, mapClobOrder(o))
		}
		if resp.NextCursor == "" || resp.NextCursor == endCursor || len(resp.Data) == 0 {
			break
		}
		cursor = resp.NextCursor
	}
	return orders, nil
}

// CancelOrder cancels one order.
func (tc *TradingClient) CancelOrder(ctx context.Context, venueOrderID string) error {
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/order", clobCancelRequest{OrderID: venueOrderID}, nil); err != nil {
		return fmt.Errorf("trading.CancelOrder %s: %w", venueOrderID, err)
	}
	return nil
}

// CancelAll cancels every open order of the account.
func (tc *TradingClient) CancelAll(ctx context.Context) error {
	if err := tc.auth.doL2(ctx, http.MethodDelete, "/cancel-all", nil, nil); err != nil {
		return fmt.Errorf("trading.CancelAll: %w", err)
	}
	return nil
}

// Balance returns the on-chain USDC.e balance of the funder address.
func (tc *TradingClient) Balance(ctx context.Context) (float64, error) {
	if tc.rpc == nil {
		return 0, fmt.Errorf("trading.Balance: no rpc configured: %w", domain.ErrProviderUnavailable)
	}

	callData, err := balanceOfABI.Pack("balanceOf", common.HexToAddress(tc.auth.signer.Funder()))
	if err != nil {
		return 0, fmt.Errorf("trading.Balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return 0, fmt.Errorf("trading.Balance: rpc call: %v: %w", err, domain.ErrProviderUnavailable)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("trading.Balance: unpack: %w", errors.Join(err, domain.ErrValidation))
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("trading.Balance: unexpected %T: %w", vals[0], domain.ErrValidation)
	}

	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return bal, nil
}
