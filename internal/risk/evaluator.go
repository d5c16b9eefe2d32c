package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/clock"
	"github.com/sawpanic/optionrun/internal/domain"
)

// Violation identifies the specific limit a check tripped, in precedence
// order within each check.
type Violation int

const (
	NoViolation Violation = iota
	VIXTooHigh
	VIXTooLow
	ForceCloseWindow
	DailyLossCap
	MaxHoldTime
	StopLoss
	TrailingStop
	TakeProfit
	DeltaCap
	ThetaFloor
	PortfolioDeltaCap
	PortfolioThetaFloor
	MaxPositionsCap
)

func (v Violation) String() string {
	switch v {
	case NoViolation:
		return "none"
	case VIXTooHigh:
		return "vix_too_high"
	case VIXTooLow:
		return "vix_too_low"
	case ForceCloseWindow:
		return "force_close_window"
	case DailyLossCap:
		return "daily_loss_cap"
	case MaxHoldTime:
		return "max_hold_time"
	case StopLoss:
		return "stop_loss"
	case TrailingStop:
		return "trailing_stop"
	case TakeProfit:
		return "take_profit"
	case DeltaCap:
		return "delta_cap"
	case ThetaFloor:
		return "theta_floor"
	case PortfolioDeltaCap:
		return "portfolio_delta_cap"
	case PortfolioThetaFloor:
		return "portfolio_theta_floor"
	case MaxPositionsCap:
		return "max_positions_cap"
	default:
		return "unknown"
	}
}

// CheckResult is the outcome of a single risk question. A failed check is a
// normal control-flow outcome, never an error.
type CheckResult struct {
	OK          bool
	Violation   Violation
	TriggeredBy string // specific trigger description
}

func pass() CheckResult {
	return CheckResult{OK: true, Violation: NoViolation}
}

func breach(v Violation, format string, args ...interface{}) CheckResult {
	res := CheckResult{OK: false, Violation: v, TriggeredBy: fmt.Sprintf(format, args...)}
	log.Warn().Str("violation", v.String()).Str("triggered_by", res.TriggeredBy).Msg("Risk limit breached")
	return res
}

// Reason renders the result as an order/close reason string.
func (r CheckResult) Reason() string {
	if r.OK {
		return "ok"
	}
	return fmt.Sprintf("%s: %s", r.Violation, r.TriggeredBy)
}

// Limits is the risk configuration, loaded once and immutable for the
// process lifetime.
type Limits struct {
	MinVIX float64 `yaml:"min_vix"` // default 10
	MaxVIX float64 `yaml:"max_vix"` // default 40

	MaxHoldMinutes int `yaml:"max_hold_minutes"` // default 240

	StopLossPct     float64 `yaml:"stop_loss_pct"`     // fraction of cost basis, default 0.30
	TakeProfitPct   float64 `yaml:"take_profit_pct"`   // default 0.50
	TrailingStop    bool    `yaml:"trailing_stop"`     // measure stop from peak P&L
	TrailingStopPct float64 `yaml:"trailing_stop_pct"` // drawdown from peak, default 0.07

	MaxPositionDelta float64 `yaml:"max_position_delta"` // |delta| cap per position, default 0.90
	MinPositionTheta float64 `yaml:"min_position_theta"` // decay floor, default -0.50

	MaxPortfolioDelta float64 `yaml:"max_portfolio_delta"` // |sum delta| cap, default 2.0
	MinPortfolioTheta float64 `yaml:"min_portfolio_theta"` // sum theta floor, default -1.5
	MaxOpenPositions  int     `yaml:"max_open_positions"`  // default 3

	MaxDailyLossUSD float64 `yaml:"max_daily_loss_usd"` // realized, default 1000
	MaxTradeLossUSD float64 `yaml:"max_trade_loss_usd"` // sizing guidance, default 300
}

// DefaultLimits returns a conservative production configuration.
func DefaultLimits() Limits {
	return Limits{
		MinVIX:            10.0,
		MaxVIX:            40.0,
		MaxHoldMinutes:    240,
		StopLossPct:       0.30,
		TakeProfitPct:     0.50,
		TrailingStop:      true,
		TrailingStopPct:   0.07,
		MaxPositionDelta:  0.90,
		MinPositionTheta:  -0.50,
		MaxPortfolioDelta: 2.0,
		MinPortfolioTheta: -1.5,
		MaxOpenPositions:  3,
		MaxDailyLossUSD:   1000.0,
		MaxTradeLossUSD:   300.0,
	}
}

// Validate rejects malformed limit configurations. These are the only
// conditions under which the evaluator errors.
func (l Limits) Validate() error {
	if l.MinVIX < 0 || l.MaxVIX <= l.MinVIX {
		return fmt.Errorf("vix band [%.1f, %.1f] is invalid", l.MinVIX, l.MaxVIX)
	}
	if l.MaxHoldMinutes <= 0 {
		return fmt.Errorf("max_hold_minutes must be positive, got %d", l.MaxHoldMinutes)
	}
	if l.StopLossPct <= 0 || l.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in (0, 1), got %.2f", l.StopLossPct)
	}
	if l.TakeProfitPct <= 0 {
		return fmt.Errorf("take_profit_pct must be positive, got %.2f", l.TakeProfitPct)
	}
	if l.TrailingStop && (l.TrailingStopPct <= 0 || l.TrailingStopPct >= 1) {
		return fmt.Errorf("trailing_stop_pct must be in (0, 1), got %.2f", l.TrailingStopPct)
	}
	if l.MaxPositionDelta <= 0 || l.MaxPortfolioDelta <= 0 {
		return fmt.Errorf("delta caps must be positive")
	}
	if l.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive, got %d", l.MaxOpenPositions)
	}
	if l.MaxDailyLossUSD <= 0 || l.MaxTradeLossUSD <= 0 {
		return fmt.Errorf("loss caps must be positive")
	}
	return nil
}

// Evaluator answers the three risk questions. It is pure with respect to
// market and position state; the only state it accumulates is realized P&L
// for the current session day, which feeds the daily loss cap.
type Evaluator struct {
	limits Limits
	clock  *clock.Clock

	mu            sync.Mutex
	realizedDay   string
	realizedToday float64
}

// NewEvaluator validates the limits and builds an evaluator.
func NewEvaluator(limits Limits, clk *clock.Clock) (*Evaluator, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("risk limits: %w", err)
	}
	if clk == nil {
		return nil, fmt.Errorf("risk evaluator requires a trading clock")
	}
	return &Evaluator{limits: limits, clock: clk}, nil
}

// Limits returns the active configuration.
func (e *Evaluator) Limits() Limits {
	return e.limits
}

// MarketConditionOK gates new entries on the VIX band, the force-close
// window, and the per-day realized loss cap.
func (e *Evaluator) MarketConditionOK(vix float64, now time.Time) CheckResult {
	if vix > e.limits.MaxVIX {
		return breach(VIXTooHigh, "VIX %.1f above band max %.1f", vix, e.limits.MaxVIX)
	}
	if vix < e.limits.MinVIX {
		return breach(VIXTooLow, "VIX %.1f below band min %.1f", vix, e.limits.MinVIX)
	}
	if e.clock.ShouldForceClose(now) {
		return breach(ForceCloseWindow, "force-close window reached at %s", now.In(e.clock.Location()).Format("15:04:05"))
	}
	if loss := e.realizedLoss(now); loss >= e.limits.MaxDailyLossUSD {
		return breach(DailyLossCap, "realized loss %.2f >= daily cap %.2f", loss, e.limits.MaxDailyLossUSD)
	}
	return pass()
}

// PositionRiskOK evaluates a single position against the holding-time,
// stop-loss/take-profit, and Greek limits, first breach wins. The caller
// must refresh the position's mark and peak before invoking.
func (e *Evaluator) PositionRiskOK(pos *domain.Position, now time.Time) CheckResult {
	held := now.Sub(pos.EntryTime)
	if maxHold := time.Duration(e.limits.MaxHoldMinutes) * time.Minute; held >= maxHold {
		return breach(MaxHoldTime, "%s held %.0fm >= limit %dm", pos.Symbol, held.Minutes(), e.limits.MaxHoldMinutes)
	}

	pnl := pos.PnLRatio()
	if e.limits.TrailingStop && pos.PeakPnLRatio > 0 {
		drawdown := (pnl - pos.PeakPnLRatio) / pos.PeakPnLRatio
		if drawdown <= -e.limits.TrailingStopPct {
			return breach(TrailingStop, "%s drawdown %.1f%% from peak %.1f%% exceeds %.1f%%",
				pos.Symbol, drawdown*100, pos.PeakPnLRatio*100, e.limits.TrailingStopPct*100)
		}
	} else if pnl <= -e.limits.StopLossPct {
		return breach(StopLoss, "%s pnl %.1f%% below stop %.1f%%", pos.Symbol, pnl*100, -e.limits.StopLossPct*100)
	}

	if pnl >= e.limits.TakeProfitPct {
		return breach(TakeProfit, "%s pnl %.1f%% reached target %.1f%%", pos.Symbol, pnl*100, e.limits.TakeProfitPct*100)
	}

	if d := abs(pos.Greeks.Delta); d > e.limits.MaxPositionDelta {
		return breach(DeltaCap, "%s |delta| %.2f exceeds cap %.2f", pos.Symbol, d, e.limits.MaxPositionDelta)
	}
	if pos.Greeks.Theta < e.limits.MinPositionTheta {
		return breach(ThetaFloor, "%s theta %.2f below floor %.2f", pos.Symbol, pos.Greeks.Theta, e.limits.MinPositionTheta)
	}
	return pass()
}

// PortfolioRiskOK evaluates aggregate exposure across all open positions.
func (e *Evaluator) PortfolioRiskOK(positions []*domain.Position) CheckResult {
	if len(positions) >= e.limits.MaxOpenPositions {
		return breach(MaxPositionsCap, "%d open positions at cap %d", len(positions), e.limits.MaxOpenPositions)
	}

	var sumDelta, sumTheta float64
	for _, p := range positions {
		sumDelta += p.Greeks.Delta * float64(p.Quantity)
		sumTheta += p.Greeks.Theta * float64(p.AbsQuantity())
	}
	if abs(sumDelta) > e.limits.MaxPortfolioDelta {
		return breach(PortfolioDeltaCap, "portfolio |delta| %.2f exceeds cap %.2f", abs(sumDelta), e.limits.MaxPortfolioDelta)
	}
	if sumTheta < e.limits.MinPortfolioTheta {
		return breach(PortfolioThetaFloor, "portfolio theta %.2f below floor %.2f", sumTheta, e.limits.MinPortfolioTheta)
	}
	return pass()
}

// RecordRealized accumulates realized P&L for the daily loss cap. The
// accumulator resets when the session day changes.
func (e *Evaluator) RecordRealized(now time.Time, pnl float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	day := now.In(e.clock.Location()).Format("2006-01-02")
	if day != e.realizedDay {
		e.realizedDay = day
		e.realizedToday = 0
	}
	e.realizedToday += pnl
}

// realizedLoss returns today's realized loss as a positive number, zero if
// the day is net profitable.
func (e *Evaluator) realizedLoss(now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	day := now.In(e.clock.Location()).Format("2006-01-02")
	if day != e.realizedDay || e.realizedToday >= 0 {
		return 0
	}
	return -e.realizedToday
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
