package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/application"
	"github.com/sawpanic/optionrun/internal/broker"
	"github.com/sawpanic/optionrun/internal/clock"
	"github.com/sawpanic/optionrun/internal/datafeed"
	"github.com/sawpanic/optionrun/internal/domain"
	"github.com/sawpanic/optionrun/internal/history"
	httpiface "github.com/sawpanic/optionrun/internal/interfaces/http"
	"github.com/sawpanic/optionrun/internal/lifecycle"
	"github.com/sawpanic/optionrun/internal/metrics"
	"github.com/sawpanic/optionrun/internal/risk"
	"github.com/sawpanic/optionrun/internal/selector"
)

// healthView adapts the lifecycle manager to the health endpoint.
type healthView struct {
	mgr *lifecycle.Manager
}

func (h healthView) OpenPositionCount() int {
	return len(h.mgr.Positions())
}

// runTrading assembles the full stack and runs the loop until interrupted.
// Fatal configuration errors abort here, before any order activity.
func runTrading(ctx context.Context, configPath string, paperMode bool) error {
	cfg, err := application.Load(configPath)
	if err != nil {
		return err
	}

	clk, err := clock.New(cfg.Session)
	if err != nil {
		return err
	}
	evaluator, err := risk.NewEvaluator(cfg.Risk, clk)
	if err != nil {
		return err
	}

	var sink history.Sink
	if cfg.History.PostgresDSN != "" {
		store, err := history.NewPGStore(cfg.History.PostgresDSN)
		if err != nil {
			return fmt.Errorf("trade history store: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = store
	}
	journal := history.NewJournal(sink)

	reg := metrics.NewRegistry()

	adapter, source, cleanup, err := buildAdapters(ctx, cfg, paperMode)
	if err != nil {
		return err
	}
	defer cleanup()

	mgr, err := lifecycle.NewManager(cfg.Execution, adapter, evaluator, clk, journal, reg)
	if err != nil {
		return err
	}

	runner, err := application.NewRunner(cfg, clk, mgr, adapter, source, snapshotSignals{}, selector.NewScorer(cfg.Selector))
	if err != nil {
		return err
	}

	srv := httpiface.NewServer(cfg.HTTP.Addr, reg, healthView{mgr: mgr})
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("Observability server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(shutdownCtx)
	}()

	log.Info().Bool("paper", paperMode).Msg("OptionRun starting")
	return runner.Run(ctx)
}

// buildAdapters wires the execution adapter and the snapshot source. Live
// brokers plug in through the broker.Adapter interface; execution runs on
// the paper adapter until one is attached.
func buildAdapters(ctx context.Context, cfg application.Config, paperMode bool) (broker.Adapter, datafeed.Source, func(), error) {
	paper := seedPaper(cfg)
	adapter := broker.Adapter(broker.NewGuarded(paper, cfg.Guard))
	cleanup := func() {}

	if paperMode || cfg.Feed.StreamURL == "" {
		// Synthetic feed derived from the paper book.
		return adapter, paperSource{paper: paper, underlyings: cfg.Trading.Underlyings}, cleanup, nil
	}

	stream := datafeed.NewStreamClient(cfg.Feed.StreamURL, cfg.Trading.Underlyings)
	if err := stream.Connect(ctx); err != nil {
		return nil, nil, cleanup, err
	}
	cleanup = func() { stream.Close() }
	go pumpStream(ctx, stream, cfg.Feed.PollTimeout)

	var source datafeed.Source = stream
	if cfg.Feed.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Feed.RedisAddr})
		cache := datafeed.NewSnapshotCache(client, cfg.Feed.CacheTTL)
		source = datafeed.NewCachedSource(stream, cache)
		prev := cleanup
		cleanup = func() { prev(); client.Close() }
	}
	return adapter, source, cleanup, nil
}

// pumpStream keeps reading the feed so Snapshot always serves fresh data.
func pumpStream(ctx context.Context, stream *datafeed.StreamClient, timeout time.Duration) {
	for ctx.Err() == nil {
		if _, err := stream.Poll(ctx, timeout); err != nil {
			log.Warn().Err(err).Msg("Feed poll failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// seedPaper populates the paper adapter with a synthetic chain per
// underlying so dry runs exercise the full selection path.
func seedPaper(cfg application.Config) *broker.Paper {
	paper := broker.NewPaper()
	now := time.Now()
	for _, underlying := range cfg.Trading.Underlyings {
		spot := 100.0
		paper.SeedQuote(domain.Quote{Symbol: underlying, Open: spot * 0.995, High: spot * 1.01, Low: spot * 0.99, Last: spot, Volume: 1_000_000})

		var chain []domain.OptionContract
		for _, dte := range []int{7, 14, 21} {
			expiry := now.AddDate(0, 0, dte)
			for _, pct := range []float64{0.01, 0.02, 0.04} {
				callStrike := math.Round(spot * (1 + pct))
				putStrike := math.Round(spot * (1 - pct))
				call := domain.OptionContract{
					Symbol:     fmt.Sprintf("%s%sC%05.0f", underlying, expiry.Format("060102"), callStrike),
					Underlying: underlying, Type: domain.Call, Strike: callStrike, Expiry: expiry,
					Volume: 800, OpenInterest: 1500, ImpliedVol: 0.22,
					Greeks: domain.Greeks{Delta: 0.35, Gamma: 0.05, Theta: -0.08},
				}
				put := domain.OptionContract{
					Symbol:     fmt.Sprintf("%s%sP%05.0f", underlying, expiry.Format("060102"), putStrike),
					Underlying: underlying, Type: domain.Put, Strike: putStrike, Expiry: expiry,
					Volume: 800, OpenInterest: 1500, ImpliedVol: 0.22,
					Greeks: domain.Greeks{Delta: -0.35, Gamma: 0.05, Theta: -0.08},
				}
				paper.SeedQuote(domain.Quote{Symbol: call.Symbol, Last: 2.0})
				paper.SeedQuote(domain.Quote{Symbol: put.Symbol, Last: 2.0})
				chain = append(chain, call, put)
			}
		}
		paper.SeedChain(underlying, chain)
	}
	return paper
}

// paperSource synthesizes snapshots from the paper book for dry runs.
type paperSource struct {
	paper       *broker.Paper
	underlyings []string
}

func (p paperSource) Snapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	quotes, err := p.paper.Quote(ctx, p.underlyings)
	if err != nil {
		return nil, err
	}
	return &domain.MarketSnapshot{VIX: 20.0, Timestamp: time.Now(), Quotes: quotes}, nil
}

// snapshotSignals derives a directional reading from the snapshot's own
// quotes. It stands in for the external indicator pipeline, which plugs in
// through application.SignalSource.
type snapshotSignals struct{}

func (snapshotSignals) Evaluate(ctx context.Context, snap *domain.MarketSnapshot, underlying string) (application.Signal, bool, error) {
	q, ok := snap.QuoteFor(underlying)
	if !ok || q.Open == 0 {
		return application.Signal{}, false, nil
	}

	change := q.Last/q.Open - 1.0
	direction := domain.Bullish
	if change < 0 {
		direction = domain.Bearish
	}
	strength := math.Min(math.Abs(change)*100, 1.0)

	// Crude annualized range-based volatility proxy.
	rv := 0.15
	if q.Low > 0 {
		rv = (q.High - q.Low) / q.Low * math.Sqrt(252)
	}
	return application.Signal{Direction: direction, Strength: strength, RealizedVol: rv}, true, nil
}
