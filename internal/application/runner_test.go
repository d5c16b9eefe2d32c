package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/optionrun/internal/broker"
	"github.com/sawpanic/optionrun/internal/clock"
	"github.com/sawpanic/optionrun/internal/datafeed"
	"github.com/sawpanic/optionrun/internal/domain"
	"github.com/sawpanic/optionrun/internal/history"
	"github.com/sawpanic/optionrun/internal/lifecycle"
	"github.com/sawpanic/optionrun/internal/metrics"
	"github.com/sawpanic/optionrun/internal/risk"
	"github.com/sawpanic/optionrun/internal/selector"
)

type stubSignals struct {
	sig Signal
	ok  bool
}

func (s stubSignals) Evaluate(ctx context.Context, snap *domain.MarketSnapshot, underlying string) (Signal, bool, error) {
	return s.sig, s.ok, nil
}

func testRunner(t *testing.T, paper *broker.Paper, snap *domain.MarketSnapshot, signals SignalSource) (*Runner, *lifecycle.Manager) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Trading.Underlyings = []string{"SPY"}
	cfg.Trading.OrderQuantity = 1

	clk, err := clock.New(cfg.Session)
	require.NoError(t, err)
	ev, err := risk.NewEvaluator(cfg.Risk, clk)
	require.NoError(t, err)
	mgr, err := lifecycle.NewManager(cfg.Execution, paper, ev, clk, history.NewJournal(nil), metrics.NewRegistry())
	require.NoError(t, err)

	source := datafeed.SourceFunc(func(ctx context.Context) (*domain.MarketSnapshot, error) {
		return snap, nil
	})

	r, err := NewRunner(cfg, clk, mgr, paper, source, signals, selector.NewScorer(cfg.Selector))
	require.NoError(t, err)
	return r, mgr
}

func sessionSnapshot(t *testing.T, hms string, vix float64, quotes ...domain.Quote) *domain.MarketSnapshot {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", "2025-03-10 "+hms, loc)
	require.NoError(t, err)
	return &domain.MarketSnapshot{VIX: vix, Timestamp: ts, Quotes: quotes}
}

func seededChain(expiry time.Time) []domain.OptionContract {
	return []domain.OptionContract{
		{
			Symbol: "SPY250324C00590000", Underlying: "SPY", Type: domain.Call,
			Strike: 590, Expiry: expiry, Volume: 1000, OpenInterest: 2000, ImpliedVol: 0.20,
		},
	}
}

func TestCycle_OpensPositionOnSignal(t *testing.T) {
	snap := sessionSnapshot(t, "10:00:00", 20, domain.Quote{Symbol: "SPY", Last: 580})
	paper := broker.NewPaper()
	paper.SeedChain("SPY", seededChain(snap.Timestamp.AddDate(0, 0, 14)))
	paper.SeedQuote(domain.Quote{Symbol: "SPY250324C00590000", Last: 2.5})

	r, mgr := testRunner(t, paper, snap, stubSignals{
		sig: Signal{Direction: domain.Bullish, Strength: 0.8, RealizedVol: 0.30},
		ok:  true,
	})

	r.Cycle(context.Background())

	positions := mgr.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, "SPY250324C00590000", positions[0].Symbol)
}

func TestCycle_NoSignalNoEntry(t *testing.T) {
	snap := sessionSnapshot(t, "10:00:00", 20, domain.Quote{Symbol: "SPY", Last: 580})
	paper := broker.NewPaper()
	paper.SeedChain("SPY", seededChain(snap.Timestamp.AddDate(0, 0, 14)))

	r, mgr := testRunner(t, paper, snap, stubSignals{ok: false})
	r.Cycle(context.Background())
	assert.Empty(t, mgr.Positions())
}

func TestCycle_ForceCloseWindowLiquidates(t *testing.T) {
	openSnap := sessionSnapshot(t, "10:00:00", 20, domain.Quote{Symbol: "SPY", Last: 580})
	paper := broker.NewPaper()
	paper.SeedChain("SPY", seededChain(openSnap.Timestamp.AddDate(0, 0, 14)))
	paper.SeedQuote(domain.Quote{Symbol: "SPY250324C00590000", Last: 2.5})

	r, mgr := testRunner(t, paper, openSnap, stubSignals{
		sig: Signal{Direction: domain.Bullish, Strength: 0.8, RealizedVol: 0.30},
		ok:  true,
	})
	r.Cycle(context.Background())
	require.Len(t, mgr.Positions(), 1)

	// Next cycle lands inside the force-close window.
	r.source = datafeed.SourceFunc(func(ctx context.Context) (*domain.MarketSnapshot, error) {
		return sessionSnapshot(t, "15:45:00", 20, domain.Quote{Symbol: "SPY", Last: 580}), nil
	})
	r.Cycle(context.Background())
	assert.Empty(t, mgr.Positions())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Trading.Underlyings = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Risk.MaxVIX = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Session.ForceClose = "17:00:00"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Trading.OrderQuantity = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/optionrun.yaml")
	assert.Error(t, err)
}
