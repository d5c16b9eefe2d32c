package broker

import (
	"context"
	"errors"

	"github.com/sawpanic/optionrun/internal/domain"
)

// Adapter error taxonomy. Connectivity and rate-limit failures are
// transient and eligible for retry; rejection and cancellation are
// terminal order outcomes.
var (
	ErrConnectivity   = errors.New("broker connectivity failure")
	ErrRateLimited    = errors.New("broker rate limit exceeded")
	ErrOrderRejected  = errors.New("order rejected")
	ErrOrderCancelled = errors.New("order cancelled")
	ErrUnknownOrder   = errors.New("unknown order id")
)

// IsTransient reports whether err is worth retrying with the configured
// retry budget.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnectivity) || errors.Is(err, ErrRateLimited)
}

// OrderRequest is a single submission attempt.
type OrderRequest struct {
	Symbol     string
	Side       domain.Side
	Quantity   int64
	Kind       domain.OrderKind
	LimitPrice float64 // zero for market orders
	Remark     string  // caller-supplied reason, passed through to the venue
	ClientID   string  // caller-assigned idempotency key
}

// OrderDetail is the broker's view of a submitted order.
type OrderDetail struct {
	ID             string
	Status         domain.OrderStatus
	FilledQuantity int64
	AvgFillPrice   float64
}

// BrokerPosition is the venue-side holding used for reconciliation.
type BrokerPosition struct {
	Symbol   string
	Quantity int64
	AvgPrice float64
}

// Adapter is the external broker surface the core trades through. The
// transport behind it is out of scope; every call is a suspension point.
type Adapter interface {
	Quote(ctx context.Context, symbols []string) ([]domain.Quote, error)
	OptionChain(ctx context.Context, underlying string) ([]domain.OptionContract, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)
	OrderDetail(ctx context.Context, orderID string) (OrderDetail, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	Positions(ctx context.Context) ([]BrokerPosition, error)
}
