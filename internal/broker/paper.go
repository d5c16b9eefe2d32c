package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sawpanic/optionrun/internal/domain"
)

// Paper is an in-memory adapter for dry runs and tests. Market orders fill
// at the seeded last price after FillAfterPolls status queries; limit
// orders are rejected (the lifecycle only submits market orders).
type Paper struct {
	mu sync.Mutex

	quotes map[string]domain.Quote
	chains map[string][]domain.OptionContract
	orders map[string]*paperOrder

	// FillAfterPolls is how many OrderDetail calls an order stays pending
	// before filling. Zero fills on the first poll.
	FillAfterPolls int

	// FailSubmits makes the next n SubmitOrder calls fail transiently,
	// for retry-path tests.
	FailSubmits int

	// RejectSymbols forces immediate rejection for the listed symbols.
	RejectSymbols map[string]bool

	// StayPending keeps orders pending forever, for timeout tests.
	StayPending bool

	// PartialFillQuantity caps the filled quantity per order when positive,
	// for partial-fill tests.
	PartialFillQuantity int64

	submitCount int
	cancelCount map[string]int
}

type paperOrder struct {
	req       OrderRequest
	status    domain.OrderStatus
	pollsLeft int
	fillPrice float64
}

// NewPaper builds an empty paper adapter.
func NewPaper() *Paper {
	return &Paper{
		quotes:      make(map[string]domain.Quote),
		chains:      make(map[string][]domain.OptionContract),
		orders:      make(map[string]*paperOrder),
		cancelCount: make(map[string]int),
	}
}

// SeedQuote installs or replaces the quote used for fills.
func (p *Paper) SeedQuote(q domain.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[q.Symbol] = q
}

// SeedChain installs the option chain returned for an underlying.
func (p *Paper) SeedChain(underlying string, chain []domain.OptionContract) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chains[underlying] = chain
}

func (p *Paper) Quote(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Quote, 0, len(symbols))
	for _, s := range symbols {
		if q, ok := p.quotes[s]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (p *Paper) OptionChain(ctx context.Context, underlying string) ([]domain.OptionContract, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chains[underlying], nil
}

func (p *Paper) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailSubmits > 0 {
		p.FailSubmits--
		return "", fmt.Errorf("%w: simulated outage", ErrConnectivity)
	}
	if req.Quantity <= 0 {
		return "", fmt.Errorf("%w: quantity %d", ErrOrderRejected, req.Quantity)
	}
	if req.Kind == domain.Limit {
		return "", fmt.Errorf("%w: paper adapter fills market orders only", ErrOrderRejected)
	}

	p.submitCount++
	id := uuid.NewString()
	status := domain.Pending
	if p.RejectSymbols[req.Symbol] {
		status = domain.Rejected
	}
	q, ok := p.quotes[req.Symbol]
	if !ok {
		return "", fmt.Errorf("%w: no quote for %s", ErrOrderRejected, req.Symbol)
	}
	p.orders[id] = &paperOrder{
		req:       req,
		status:    status,
		pollsLeft: p.FillAfterPolls,
		fillPrice: q.Last,
	}
	return id, nil
}

func (p *Paper) OrderDetail(ctx context.Context, orderID string) (OrderDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ord, ok := p.orders[orderID]
	if !ok {
		return OrderDetail{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if ord.status == domain.Pending && !p.StayPending {
		if ord.pollsLeft <= 0 {
			ord.status = domain.Filled
		} else {
			ord.pollsLeft--
		}
	}

	detail := OrderDetail{ID: orderID, Status: ord.status}
	if ord.status == domain.Filled {
		qty := ord.req.Quantity
		if p.PartialFillQuantity > 0 && p.PartialFillQuantity < qty {
			qty = p.PartialFillQuantity
		}
		detail.FilledQuantity = qty
		detail.AvgFillPrice = ord.fillPrice
	}
	return detail, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ord, ok := p.orders[orderID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	p.cancelCount[orderID]++
	if ord.status != domain.Pending {
		return false, nil
	}
	ord.status = domain.Cancelled
	return true, nil
}

func (p *Paper) Positions(ctx context.Context) ([]BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	agg := make(map[string]*BrokerPosition)
	for _, ord := range p.orders {
		if ord.status != domain.Filled {
			continue
		}
		pos, ok := agg[ord.req.Symbol]
		if !ok {
			pos = &BrokerPosition{Symbol: ord.req.Symbol}
			agg[ord.req.Symbol] = pos
		}
		qty := ord.req.Quantity
		if ord.req.Side == domain.Sell {
			qty = -qty
		}
		pos.Quantity += qty
		pos.AvgPrice = ord.fillPrice
	}

	out := make([]BrokerPosition, 0, len(agg))
	for _, pos := range agg {
		if pos.Quantity != 0 {
			out = append(out, *pos)
		}
	}
	return out, nil
}

// SubmitCount reports accepted submissions, for test assertions.
func (p *Paper) SubmitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitCount
}

// CancelCount reports cancel calls for an order id, for test assertions.
func (p *Paper) CancelCount(orderID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelCount[orderID]
}
