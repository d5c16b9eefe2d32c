package broker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/optionrun/internal/domain"
)

// flakyAdapter fails every call with the configured error.
type flakyAdapter struct {
	err   error
	calls int
}

func (f *flakyAdapter) Quote(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	f.calls++
	return nil, f.err
}

func (f *flakyAdapter) OptionChain(ctx context.Context, underlying string) ([]domain.OptionContract, error) {
	f.calls++
	return nil, f.err
}

func (f *flakyAdapter) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	f.calls++
	return "", f.err
}

func (f *flakyAdapter) OrderDetail(ctx context.Context, orderID string) (OrderDetail, error) {
	f.calls++
	return OrderDetail{}, f.err
}

func (f *flakyAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	f.calls++
	return false, f.err
}

func (f *flakyAdapter) Positions(ctx context.Context) ([]BrokerPosition, error) {
	f.calls++
	return nil, f.err
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectivity))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ErrRateLimited)))
	assert.False(t, IsTransient(ErrOrderRejected))
	assert.False(t, IsTransient(ErrOrderCancelled))
	assert.False(t, IsTransient(nil))
}

func TestGuarded_PassesThroughSuccess(t *testing.T) {
	paper := NewPaper()
	paper.SeedQuote(domain.Quote{Symbol: "SPY", Last: 580})
	g := NewGuarded(paper, DefaultGuardConfig())

	quotes, err := g.Quote(context.Background(), []string{"SPY"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 580.0, quotes[0].Last)
}

func TestGuarded_BreakerOpensOnConsecutiveTransients(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.ConsecutiveFailures = 3
	cfg.RequestsPerSecond = 1000 // keep the limiter out of the way
	cfg.Burst = 1000
	flaky := &flakyAdapter{err: ErrConnectivity}
	g := NewGuarded(flaky, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := g.Quote(ctx, []string{"SPY"})
		assert.ErrorIs(t, err, ErrConnectivity)
	}
	callsBeforeOpen := flaky.calls

	// Breaker is open: the adapter is no longer reached and the failure
	// surfaces as a transient connectivity error.
	_, err := g.Quote(ctx, []string{"SPY"})
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.Equal(t, callsBeforeOpen, flaky.calls)
}

func TestGuarded_TerminalErrorsDoNotTrip(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.ConsecutiveFailures = 2
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000
	flaky := &flakyAdapter{err: ErrOrderRejected}
	g := NewGuarded(flaky, cfg)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := g.SubmitOrder(ctx, OrderRequest{Symbol: "SPY", Quantity: 1})
		assert.ErrorIs(t, err, ErrOrderRejected)
	}
	// Every call reached the adapter: rejections never open the breaker.
	assert.Equal(t, 5, flaky.calls)
}

func TestPaper_OrderLifecycle(t *testing.T) {
	paper := NewPaper()
	paper.SeedQuote(domain.Quote{Symbol: "SPY_C590", Last: 2.5})
	paper.FillAfterPolls = 2
	ctx := context.Background()

	id, err := paper.SubmitOrder(ctx, OrderRequest{Symbol: "SPY_C590", Side: domain.Buy, Quantity: 3})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		detail, err := paper.OrderDetail(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.Pending, detail.Status)
	}

	detail, err := paper.OrderDetail(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Filled, detail.Status)
	assert.Equal(t, int64(3), detail.FilledQuantity)
	assert.Equal(t, 2.5, detail.AvgFillPrice)

	positions, err := paper.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(3), positions[0].Quantity)
}

func TestPaper_CancelPendingOrder(t *testing.T) {
	paper := NewPaper()
	paper.SeedQuote(domain.Quote{Symbol: "SPY_C590", Last: 2.5})
	paper.StayPending = true
	ctx := context.Background()

	id, err := paper.SubmitOrder(ctx, OrderRequest{Symbol: "SPY_C590", Side: domain.Buy, Quantity: 1})
	require.NoError(t, err)

	ok, err := paper.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	paper.StayPending = false
	detail, err := paper.OrderDetail(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, detail.Status)
}
