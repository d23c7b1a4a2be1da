package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Raw DTOs of the Polymarket APIs. They never leave this package;
// mapping.go converts them into domain entities.

// --- Gamma API ---

// gammaMarket is a listing from GET /markets or an entry of gammaEvent.Markets.
// Gamma is inconsistent about types: numbers arrive as JSON numbers or strings,
// and the outcome arrays arrive either as arrays or as JSON-encoded strings.
type gammaMarket struct {
	ID            string     `json:"id"`
	ConditionID   string     `json:"conditionId"`
	Question      string     `json:"question"`
	Slug          string     `json:"slug"`
	EndDate       string     `json:"endDate"`
	EndDateISO    string     `json:"endDateIso"`
	Volume        flexFloat  `json:"volume"`
	VolumeNum     flexFloat  `json:"volumeNum"`
	Volume24h     flexFloat  `json:"volume24hr"`
	Liquidity     flexFloat  `json:"liquidity"`
	LiquidityNum  flexFloat  `json:"liquidityNum"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	ClobTokenIDs  stringList `json:"clobTokenIds"`
	Active        bool       `json:"active"`
	Closed        bool       `json:"closed"`
	NegRisk       bool       `json:"negRisk"`
}

// gammaEvent groups the markets of one event, as returned by GET /events.
type gammaEvent struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Slug    string        `json:"slug"`
	EndDate string        `json:"endDate"`
	Volume  flexFloat     `json:"volume"`
	Active  bool          `json:"active"`
	Closed  bool          `json:"closed"`
	NegRisk bool          `json:"negRisk"`
	Markets []gammaMarket `json:"markets"`
}

// flexFloat decodes a number sent either as a JSON number or a JSON string.
// set is false when the field was absent, null or empty.
type flexFloat struct {
	value float64
	set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flexFloat: %q: %w", s, err)
	}
	f.value, f.set = v, true
	return nil
}

// stringList decodes ["a","b"], [0.5,0.5] or the JSON-encoded string "[\"a\",\"b\"]".
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*l = nil
			return nil
		}
		data = []byte(inner)
	}

	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("stringList: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			return fmt.Errorf("stringList: unexpected element %T", it)
		}
	}
	*l = out
	return nil
}

// --- CLOB API ---

type midpointResponse struct {
	Mid string `json:"mid"`
}

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// clobOrder is an order as returned by GET /data/order/{id} and GET /data/orders.
type clobOrder struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	AssetID         string   `json:"asset_id"`
	Market          string   `json:"market"`
	Side            string   `json:"side"`
	OriginalSize    string   `json:"original_size"`
	SizeMatched     string   `json:"size_matched"`
	Price           string   `json:"price"`
	Outcome         string   `json:"outcome"`
	CreatedAt       any      `json:"created_at"`
	AssociateTrades []string `json:"associate_trades"`
}

type clobOrdersResponse struct {
	Data       []clobOrder `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

// clobTrade is a match as returned by GET /data/trades.
type clobTrade struct {
	ID           string          `json:"id"`
	TakerOrderID string          `json:"taker_order_id"`
	Size         string          `json:"size"`
	Price        string          `json:"price"`
	MakerOrders  []clobMakerFill `json:"maker_orders"`
}

type clobMakerFill struct {
	OrderID       string `json:"order_id"`
	MatchedAmount string `json:"matched_amount"`
	Price         string `json:"price"`
}

type clobTradesResponse struct {
	Data       []clobTrade `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

type clobCancelRequest struct {
	OrderID string `json:"orderID"`
}

// apiCredentials are the L2 credentials derived from the wallet.
type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// --- Data API ---

type dataPosition struct {
	Asset       string    `json:"asset"`
	ConditionID string    `json:"conditionId"`
	Title       string    `json:"title"`
	Outcome     string    `json:"outcome"`
	Size        flexFloat `json:"size"`
	AvgPrice    flexFloat `json:"avgPrice"`
	CurPrice    flexFloat `json:"curPrice"`
	EndDate     string    `json:"endDate"`
}

type dataTrade struct {
	TransactionHash string      `json:"transactionHash"`
	ConditionID     string      `json:"conditionId"`
	Asset           string      `json:"asset"`
	Title           string      `json:"title"`
	Outcome         string      `json:"outcome"`
	Side            string      `json:"side"`
	Price           flexFloat   `json:"price"`
	Size            flexFloat   `json:"size"`
	Timestamp       json.Number `json:"timestamp"`
}
