package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/broker"
	"github.com/sawpanic/optionrun/internal/clock"
	"github.com/sawpanic/optionrun/internal/datafeed"
	"github.com/sawpanic/optionrun/internal/domain"
	"github.com/sawpanic/optionrun/internal/lifecycle"
	"github.com/sawpanic/optionrun/internal/selector"
)

// Signal is a ready-made directional reading for one underlying, supplied
// by the external indicator pipeline.
type Signal struct {
	Direction   domain.Direction
	Strength    float64 // 0..1
	RealizedVol float64 // annualized realized-volatility estimate
}

// SignalSource is the indicator collaborator. ok=false means no reading
// for this underlying this cycle, which is not an error.
type SignalSource interface {
	Evaluate(ctx context.Context, snap *domain.MarketSnapshot, underlying string) (Signal, bool, error)
}

// Runner drives the trading cycle: snapshot, forced liquidation, risk
// enforcement, then signal-driven entries.
type Runner struct {
	cfg     Config
	clk     *clock.Clock
	mgr     *lifecycle.Manager
	adapter broker.Adapter
	source  datafeed.Source
	signals SignalSource
	scorer  *selector.Scorer

	lastSnap *domain.MarketSnapshot
}

// NewRunner wires the cycle loop. All collaborators are required.
func NewRunner(cfg Config, clk *clock.Clock, mgr *lifecycle.Manager, adapter broker.Adapter,
	source datafeed.Source, signals SignalSource, scorer *selector.Scorer) (*Runner, error) {

	if clk == nil || mgr == nil || adapter == nil || source == nil || signals == nil || scorer == nil {
		return nil, fmt.Errorf("runner requires clock, manager, adapter, source, signals, and scorer")
	}
	return &Runner{
		cfg:     cfg,
		clk:     clk,
		mgr:     mgr,
		adapter: adapter,
		source:  source,
		signals: signals,
		scorer:  scorer,
	}, nil
}

// Run executes cycles at the configured interval until ctx is cancelled,
// then drains all open positions before returning.
func (r *Runner) Run(ctx context.Context) error {
	log.Info().Dur("interval", r.cfg.Trading.CycleInterval).
		Strs("underlyings", r.cfg.Trading.Underlyings).Msg("Trading loop started")

	ticker := time.NewTicker(r.cfg.Trading.CycleInterval)
	defer ticker.Stop()

	r.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return r.drain()
		case <-ticker.C:
			r.Cycle(ctx)
		}
	}
}

// Cycle runs one pass. Exported so the paper command can drive single
// iterations.
func (r *Runner) Cycle(ctx context.Context) {
	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("No market snapshot this cycle")
		return
	}
	r.lastSnap = snap

	if due, _, ok := r.mgr.ForceCloseIfDue(ctx, snap); due {
		if !ok {
			log.Error().Msg("Forced liquidation left positions open")
		}
		return
	}

	for _, pos := range r.mgr.Positions() {
		r.mgr.EvaluateAndEnforceRisk(ctx, snap, pos.Symbol)
	}

	if !r.clk.IsTradingTime(snap.Timestamp) {
		return
	}
	for _, underlying := range r.cfg.Trading.Underlyings {
		r.tryEnter(ctx, snap, underlying)
	}
}

// tryEnter evaluates the signal for one underlying and opens the selected
// contract when everything lines up.
func (r *Runner) tryEnter(ctx context.Context, snap *domain.MarketSnapshot, underlying string) {
	sig, ok, err := r.signals.Evaluate(ctx, snap, underlying)
	if err != nil {
		log.Warn().Err(err).Str("underlying", underlying).Msg("Signal evaluation failed")
		return
	}
	if !ok {
		return
	}

	quote, found := snap.QuoteFor(underlying)
	if !found {
		log.Warn().Str("underlying", underlying).Msg("No spot quote in snapshot")
		return
	}

	chain, err := r.adapter.OptionChain(ctx, underlying)
	if err != nil {
		log.Warn().Err(err).Str("underlying", underlying).Msg("Option chain fetch failed")
		return
	}

	sel, found := r.scorer.Select(sig.Direction, sig.Strength, sig.RealizedVol, quote.Last, chain, snap.Timestamp)
	if !found {
		return
	}

	reason := fmt.Sprintf("%s signal %.2f, %s regime", sig.Direction, sig.Strength, sel.Regime)
	res := r.mgr.OpenPosition(ctx, snap, sel.Contract.Symbol, r.cfg.Trading.OrderQuantity, sel.Contract.Greeks, reason)
	if !res.OK {
		log.Info().Str("symbol", sel.Contract.Symbol).Str("reason", res.Reason).Msg("Entry refused")
	}
}

// drain mirrors the forced-liquidation policy on shutdown. It uses a fresh
// context because the loop's context is already cancelled.
func (r *Runner) drain() error {
	if r.lastSnap == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if !r.mgr.Shutdown(ctx, r.lastSnap) {
		return fmt.Errorf("shutdown drain left positions open")
	}
	return nil
}
