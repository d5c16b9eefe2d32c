package domain

import (
	"math"
	"time"
)

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderKind distinguishes market from limit orders.
type OrderKind int

const (
	Market OrderKind = iota
	Limit
)

func (k OrderKind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	default:
		return "unknown"
	}
}

// OrderStatus is the lifecycle state of a submitted order. Pending is the
// only non-terminal status.
type OrderStatus int

const (
	Pending OrderStatus = iota
	Filled
	Rejected
	Cancelled
	TimedOut
)

func (st OrderStatus) String() string {
	switch st {
	case Pending:
		return "pending"
	case Filled:
		return "filled"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the order's lifecycle.
func (st OrderStatus) Terminal() bool {
	return st != Pending
}

// ContractType is call or put.
type ContractType int

const (
	Call ContractType = iota
	Put
)

func (ct ContractType) String() string {
	switch ct {
	case Call:
		return "call"
	case Put:
		return "put"
	default:
		return "unknown"
	}
}

// Direction is the directional signal driving contract selection.
type Direction int

const (
	Bullish Direction = iota
	Bearish
)

func (d Direction) String() string {
	switch d {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "unknown"
	}
}

// Greeks holds the option sensitivities tracked by the risk checks.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
}

// Position is an open holding. Quantity is signed: positive long, negative
// short. PeakPrice and PeakPnLRatio record the most favorable mark seen
// since entry and feed the trailing-stop check; they only ratchet upward.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      int64     `json:"quantity"`
	CostBasis     float64   `json:"cost_basis"` // per-unit entry price
	Mark          float64   `json:"mark"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	EntryTime     time.Time `json:"entry_time"`
	Greeks        Greeks    `json:"greeks"`
	PeakPrice     float64   `json:"peak_price"`
	PeakPnLRatio  float64   `json:"peak_pnl_ratio"`
}

// PnLRatio returns the unrealized return relative to cost basis, signed so
// that favorable moves are positive for both long and short positions.
func (p *Position) PnLRatio() float64 {
	if p.CostBasis == 0 {
		return 0
	}
	r := p.Mark/p.CostBasis - 1.0
	if p.Quantity < 0 {
		r = -r
	}
	return r
}

// UpdateMark refreshes the mark, unrealized P&L, and the favorable peaks.
// Must be called before any risk evaluation that depends on the peak.
func (p *Position) UpdateMark(mark float64) {
	p.Mark = mark
	qty := float64(p.Quantity)
	p.UnrealizedPnL = (mark - p.CostBasis) * qty
	if r := p.PnLRatio(); r > p.PeakPnLRatio {
		p.PeakPnLRatio = r
	}
	favorable := (p.Quantity >= 0 && mark > p.PeakPrice) ||
		(p.Quantity < 0 && (p.PeakPrice == 0 || mark < p.PeakPrice))
	if favorable {
		p.PeakPrice = mark
	}
}

// AbsQuantity returns the unsigned position size.
func (p *Position) AbsQuantity() int64 {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

// Order is a single submission attempt against the broker. Terminal once a
// status other than Pending is observed.
type Order struct {
	ID          string      `json:"id"`        // broker-assigned, empty until accepted
	ClientID    string      `json:"client_id"` // caller-assigned idempotency key
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Quantity    int64       `json:"quantity"`
	Kind        OrderKind   `json:"kind"`
	LimitPrice  float64     `json:"limit_price,omitempty"` // zero for market orders
	Reason      string      `json:"reason"`
	Status      OrderStatus `json:"status"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// TradeRecord is an immutable snapshot of a completed fill.
type TradeRecord struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"`
	Notional float64   `json:"notional"`
	Reason   string    `json:"reason"`
	OrderID  string    `json:"order_id"`
}

// OptionContract is one leg of a derivatives chain, read-only within the
// core. Supplied by the chain provider.
type OptionContract struct {
	Symbol       string       `json:"symbol"`
	Underlying   string       `json:"underlying"`
	Type         ContractType `json:"type"`
	Strike       float64      `json:"strike"`
	Expiry       time.Time    `json:"expiry"`
	Volume       int64        `json:"volume"`
	OpenInterest int64        `json:"open_interest"`
	ImpliedVol   float64      `json:"implied_vol"`
	Greeks       Greeks       `json:"greeks"`
}

// DaysToExpiry returns the fractional days remaining until expiry.
func (c OptionContract) DaysToExpiry(now time.Time) float64 {
	return c.Expiry.Sub(now).Hours() / 24.0
}

// Moneyness is (strike/spot - 1), sign-flipped for puts so a positive value
// always means out-of-the-money in the trade's favor.
func (c OptionContract) Moneyness(spot float64) float64 {
	if spot == 0 {
		return math.Inf(1)
	}
	m := c.Strike/spot - 1.0
	if c.Type == Put {
		m = -m
	}
	return m
}

// Quote is a per-symbol price/volume snapshot.
type Quote struct {
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Last   float64 `json:"last"`
	Volume int64   `json:"volume"`
}

// MarketSnapshot is the externally supplied per-cycle view of the market.
type MarketSnapshot struct {
	VIX       float64   `json:"vix"`
	Timestamp time.Time `json:"timestamp"`
	Quotes    []Quote   `json:"quotes"`
}

// QuoteFor returns the quote for symbol, if present.
func (s *MarketSnapshot) QuoteFor(symbol string) (Quote, bool) {
	for _, q := range s.Quotes {
		if q.Symbol == symbol {
			return q, true
		}
	}
	return Quote{}, false
}
