package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/broker"
	"github.com/sawpanic/optionrun/internal/clock"
	"github.com/sawpanic/optionrun/internal/domain"
	"github.com/sawpanic/optionrun/internal/history"
	"github.com/sawpanic/optionrun/internal/metrics"
	"github.com/sawpanic/optionrun/internal/risk"
)

// Sleeper abstracts the delays in the retry and poll loops so tests run
// without real time passing.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Config is the execution policy: bounded retry on transient submission
// errors and a bounded fill-poll loop. Fixed delays, never exponential.
type Config struct {
	RetryCount   int           `yaml:"retry_count"`   // transient submit retries, default 3
	RetryDelay   time.Duration `yaml:"retry_delay"`   // default 2s
	PollInterval time.Duration `yaml:"poll_interval"` // default 500ms
	PollAttempts int           `yaml:"poll_attempts"` // default 10
}

// DefaultConfig returns production execution settings.
func DefaultConfig() Config {
	return Config{
		RetryCount:   3,
		RetryDelay:   2 * time.Second,
		PollInterval: 500 * time.Millisecond,
		PollAttempts: 10,
	}
}

// Validate rejects unusable execution policies.
func (c Config) Validate() error {
	if c.RetryCount < 0 {
		return fmt.Errorf("retry_count must not be negative, got %d", c.RetryCount)
	}
	if c.RetryDelay <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("retry_delay and poll_interval must be positive")
	}
	if c.PollAttempts <= 0 {
		return fmt.Errorf("poll_attempts must be positive, got %d", c.PollAttempts)
	}
	return nil
}

// Result is the outcome of a lifecycle operation. Refusals and order
// failures are results, not errors.
type Result struct {
	OK     bool
	Reason string
	Order  *domain.Order       // final order state, nil if refused before submission
	Trade  *domain.TradeRecord // set when a fill was recorded
}

func refused(format string, args ...interface{}) Result {
	return Result{OK: false, Reason: fmt.Sprintf(format, args...)}
}

// Manager owns all position and order state. It is the only component that
// mutates positions, and it serializes operations per symbol: a symbol
// with a non-terminal order refuses further open/close requests outright.
type Manager struct {
	cfg     Config
	adapter broker.Adapter
	risk    *risk.Evaluator
	clk     *clock.Clock
	journal *history.Journal
	metrics *metrics.Registry
	sleeper Sleeper

	mu        sync.Mutex
	positions map[string]*domain.Position
	inflight  map[string]*domain.Order
}

// NewManager wires the lifecycle manager. All collaborators are required.
func NewManager(cfg Config, adapter broker.Adapter, riskEval *risk.Evaluator,
	clk *clock.Clock, journal *history.Journal, reg *metrics.Registry) (*Manager, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle config: %w", err)
	}
	if adapter == nil || riskEval == nil || clk == nil || journal == nil || reg == nil {
		return nil, fmt.Errorf("lifecycle manager requires adapter, risk evaluator, clock, journal, and metrics")
	}
	return &Manager{
		cfg:       cfg,
		adapter:   adapter,
		risk:      riskEval,
		clk:       clk,
		journal:   journal,
		metrics:   reg,
		sleeper:   realSleeper{},
		positions: make(map[string]*domain.Position),
		inflight:  make(map[string]*domain.Order),
	}, nil
}

// Positions returns copies of the active positions.
func (m *Manager) Positions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Position returns a copy of one position, if open.
func (m *Manager) Position(symbol string) (*domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// ActiveOrder returns a copy of the non-terminal order for symbol, if any.
func (m *Manager) ActiveOrder(symbol string) (*domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.inflight[symbol]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

// reserve claims the per-symbol order slot. It fails when another order is
// non-terminal for the symbol; requests are refused, never queued.
func (m *Manager) reserve(symbol string, order *domain.Order) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[symbol]; busy {
		return false
	}
	m.inflight[symbol] = order
	return true
}

// release returns the symbol to the idle state.
func (m *Manager) release(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, symbol)
}

func (m *Manager) recordViolation(v risk.Violation) {
	m.metrics.RiskViolations.WithLabelValues(v.String()).Inc()
}

func (m *Manager) updateOpenPositionsGauge() {
	m.metrics.OpenPositions.Set(float64(len(m.positions)))
}

// EvaluateAndEnforceRisk refreshes the position's mark and trailing peak
// from the snapshot, runs the per-position risk check, and fully closes the
// position when a limit is breached. The close reason names the rule.
func (m *Manager) EvaluateAndEnforceRisk(ctx context.Context, snap *domain.MarketSnapshot, symbol string) Result {
	m.mu.Lock()
	pos, ok := m.positions[symbol]
	if !ok {
		m.mu.Unlock()
		return Result{OK: true, Reason: "no open position"}
	}
	if q, found := snap.QuoteFor(symbol); found {
		pos.UpdateMark(q.Last)
	}
	snapshot := *pos
	m.mu.Unlock()

	res := m.risk.PositionRiskOK(&snapshot, snap.Timestamp)
	if res.OK {
		return Result{OK: true, Reason: "within limits"}
	}

	m.recordViolation(res.Violation)
	log.Warn().Str("symbol", symbol).Str("violation", res.Violation.String()).
		Msg("Position risk breached, closing")
	return m.ClosePosition(ctx, snap, symbol, res.Reason(), 1.0)
}

// ForceCloseIfDue liquidates every active position once the force-close
// window is reached, overriding all other checks. Returns whether the
// window was due and the aggregate close outcome.
func (m *Manager) ForceCloseIfDue(ctx context.Context, snap *domain.MarketSnapshot) (bool, map[string]Result, bool) {
	if !m.clk.ShouldForceClose(snap.Timestamp) {
		return false, nil, true
	}
	m.mu.Lock()
	n := len(m.positions)
	m.mu.Unlock()
	if n == 0 {
		return true, nil, true
	}

	log.Warn().Int("positions", n).Msg("Force-close window reached, liquidating")
	results, ok := m.CloseAllPositions(ctx, snap, "force_close")
	for range results {
		m.metrics.ForcedCloses.Inc()
	}
	return true, results, ok
}

// Shutdown drains the book before exit, mirroring the forced-liquidation
// policy. Safe to call with no open positions.
func (m *Manager) Shutdown(ctx context.Context, snap *domain.MarketSnapshot) bool {
	m.mu.Lock()
	n := len(m.positions)
	m.mu.Unlock()
	if n == 0 {
		return true
	}
	log.Info().Int("positions", n).Msg("Shutdown requested, draining positions")
	_, ok := m.CloseAllPositions(ctx, snap, "shutdown")
	return ok
}
