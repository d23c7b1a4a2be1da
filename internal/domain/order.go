package domain

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderOpen            OrderStatus = "OPEN"
	OrderFilled          OrderStatus = "FILLED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRejected        OrderStatus = "REJECTED"
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// OrderKind selects limit or market execution.
type OrderKind string

const (
	OrderLimit  OrderKind = "LIMIT"
	OrderMarket OrderKind = "MARKET"
)

// OrderAction is the direction of the trade on the chosen token.
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// SignatureType is the on-chain authorization scheme of the trading account.
// Values match the venue wire format.
type SignatureType int

const (
	SignatureEOA        SignatureType = 0
	SignaturePolyProxy  SignatureType = 1
	SignatureGnosisSafe SignatureType = 2
)

func (t SignatureType) String() string {
	switch t {
	case SignatureEOA:
		return "EOA"
	case SignaturePolyProxy:
		return "POLY_PROXY"
	case SignatureGnosisSafe:
		return "GNOSIS_SAFE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether t is one of the supported schemes.
func (t SignatureType) Valid() bool {
	return t >= SignatureEOA && t <= SignatureGnosisSafe
}

// Order is an order owned by the engine until it reaches a terminal status.
type Order struct {
	ID            string // local uuid
	VenueOrderID  string
	MarketID      string
	Question      string
	TokenID       string
	Side          Side
	Action        OrderAction
	Kind          OrderKind
	PriceUSD      float64 // limit price; the worst acceptable price for MARKET
	SizeUSD       float64
	FilledUSD     float64 // notional at the matched prices
	FilledShares  float64
	SignatureType SignatureType
	NegRisk       bool
	Status        OrderStatus
	ReservationID string
	Reason        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ResolvesAt    time.Time
}

// RemainingUSD is the part of the order that has not filled yet.
func (o Order) RemainingUSD() float64 {
	r := o.SizeUSD - o.FilledUSD
	if r < 0 {
		return 0
	}
	return r
}

// SignedOrder is the venue payload produced by a wallet signer.
type SignedOrder struct {
	Salt          string
	Maker         string
	Signer        string
	Taker         string
	TokenID       string
	MakerAmount   string
	TakerAmount   string
	Expiration    string
	Nonce         string
	FeeRateBps    string
	Side          OrderAction
	SignatureType SignatureType
	Signature     string
}

// VenueOrder is the venue's view of an order, used for submission results and reconciliation.
type VenueOrder struct {
	VenueOrderID string
	TokenID      string
	MarketID     string
	Side         Side
	Action       OrderAction
	PriceUSD     float64 // limit price
	SizeShares   float64
	FilledShares float64
	// AvgFillPriceUSD is the share-weighted price the matched shares traded at.
	// Zero when nothing matched.
	AvgFillPriceUSD float64
	Status          OrderStatus
	CreatedAt       time.Time
}

// FilledUSD is the notional matched so far.
func (v VenueOrder) FilledUSD() float64 {
	return v.FilledShares * v.AvgFillPriceUSD
}
