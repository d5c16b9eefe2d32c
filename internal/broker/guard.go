package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/optionrun/internal/domain"
)

// GuardConfig tunes the rate limiter and circuit breaker wrapped around an
// adapter.
type GuardConfig struct {
	RequestsPerSecond   float64       `yaml:"requests_per_second"`  // default 5
	Burst               int           `yaml:"burst"`                // default 10
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"` // trips the breaker, default 5
	OpenTimeout         time.Duration `yaml:"open_timeout"`         // default 30s
	HalfOpenRequests    uint32        `yaml:"half_open_requests"`   // default 2
}

// DefaultGuardConfig returns production guard settings.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond:   5,
		Burst:               10,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    2,
	}
}

// Guarded decorates an Adapter with a token-bucket rate limit and a
// circuit breaker. Only transient failures feed the breaker; terminal
// business outcomes (rejections, cancellations) pass through untouched.
type Guarded struct {
	inner   Adapter
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps inner with the configured guards.
func NewGuarded(inner Adapter, cfg GuardConfig) *Guarded {
	settings := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Broker circuit breaker state change")
		},
	}
	return &Guarded{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// guardedResult smuggles terminal business errors through the breaker
// without counting them as failures.
type guardedResult struct {
	value interface{}
	err   error
}

func (g *Guarded) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		value, err := fn()
		if err != nil && !IsTransient(err) {
			return guardedResult{value: value, err: err}, nil
		}
		return guardedResult{value: value}, err
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrConnectivity, err)
		}
		return nil, err
	}
	res := out.(guardedResult)
	return res.value, res.err
}

func (g *Guarded) Quote(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	out, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.Quote(ctx, symbols)
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Quote), nil
}

func (g *Guarded) OptionChain(ctx context.Context, underlying string) ([]domain.OptionContract, error) {
	out, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.OptionChain(ctx, underlying)
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.OptionContract), nil
}

func (g *Guarded) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	out, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.SubmitOrder(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (g *Guarded) OrderDetail(ctx context.Context, orderID string) (OrderDetail, error) {
	out, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.OrderDetail(ctx, orderID)
	})
	if err != nil {
		return OrderDetail{}, err
	}
	return out.(OrderDetail), nil
}

func (g *Guarded) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	out, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.CancelOrder(ctx, orderID)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (g *Guarded) Positions(ctx context.Context) ([]BrokerPosition, error) {
	out, err := g.execute(ctx, func() (interface{}, error) {
		return g.inner.Positions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]BrokerPosition), nil
}
