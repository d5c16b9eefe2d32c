package selector

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionrun/internal/domain"
)

// liquidityHeadroom is the multiple of the regime minimums at which the
// liquidity sub-score saturates.
const liquidityHeadroom = 3.0

// Config tunes the scorer. Regime parameter overrides replace the built-in
// table entry wholesale for that regime.
type Config struct {
	MinSignalStrength float64                 `yaml:"min_signal_strength"` // default 0.3
	RegimeOverrides   map[string]RegimeParams `yaml:"regime_overrides"`    // keyed by regime name
}

// DefaultConfig returns production scorer settings.
func DefaultConfig() Config {
	return Config{MinSignalStrength: 0.3}
}

// Breakdown carries the normalized sub-scores for explainability logging.
type Breakdown struct {
	Liquidity float64 `json:"liquidity"`
	TimeValue float64 `json:"time_value"`
	Moneyness float64 `json:"moneyness"`
	VolEdge   float64 `json:"vol_edge"`
	Total     float64 `json:"total"` // weighted sum x signal strength
}

// Selection is the chosen contract with its score.
type Selection struct {
	Contract  domain.OptionContract `json:"contract"`
	Regime    VolRegime             `json:"regime"`
	Score     float64               `json:"score"`
	Breakdown Breakdown             `json:"breakdown"`
}

// Scorer ranks an option chain against a directional signal. Stateless:
// identical inputs always yield the identical selection.
type Scorer struct {
	cfg    Config
	params map[VolRegime]RegimeParams
}

// NewScorer builds a scorer, applying any regime overrides from config.
func NewScorer(cfg Config) *Scorer {
	if cfg.MinSignalStrength <= 0 {
		cfg.MinSignalStrength = DefaultConfig().MinSignalStrength
	}
	params := make(map[VolRegime]RegimeParams, len(defaultRegimeParams))
	for regime, p := range defaultRegimeParams {
		params[regime] = p
	}
	for name, override := range cfg.RegimeOverrides {
		for regime := LowVol; regime <= HighVol; regime++ {
			if regime.String() == name {
				params[regime] = override
			}
		}
	}
	return &Scorer{cfg: cfg, params: params}
}

// Select returns the highest-scoring contract for the signal, or ok=false
// when the signal is below the actionable threshold or nothing in the
// chain survives the regime filters. Neither outcome is an error.
func (s *Scorer) Select(direction domain.Direction, strength, realizedVol, spot float64,
	chain []domain.OptionContract, now time.Time) (Selection, bool) {

	if strength < s.cfg.MinSignalStrength {
		log.Debug().Float64("strength", strength).Float64("min", s.cfg.MinSignalStrength).
			Msg("Signal below actionable threshold")
		return Selection{}, false
	}

	regime := ClassifyVolatility(realizedVol)
	params := s.params[regime]

	wantType := domain.Call
	if direction == domain.Bearish {
		wantType = domain.Put
	}

	survivors := make([]domain.OptionContract, 0, len(chain))
	for _, c := range chain {
		if c.Type != wantType {
			continue
		}
		dte := c.DaysToExpiry(now)
		if dte < params.MinDTE || dte > params.MaxDTE {
			continue
		}
		m := c.Moneyness(spot)
		if m < params.MinMoneyness || m > params.MaxMoneyness {
			continue
		}
		if c.Volume < params.MinVolume || c.OpenInterest < params.MinOpenInterest {
			continue
		}
		survivors = append(survivors, c)
	}
	if len(survivors) == 0 {
		log.Debug().Str("regime", regime.String()).Str("direction", direction.String()).
			Int("chain_size", len(chain)).Msg("No contract survived regime filters")
		return Selection{}, false
	}

	// Deterministic tie-break: stable order by symbol before argmax.
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Symbol < survivors[j].Symbol })

	best := Selection{Score: -1}
	for _, c := range survivors {
		bd := s.score(c, params, strength, realizedVol, spot, now)
		if bd.Total > best.Score {
			best = Selection{Contract: c, Regime: regime, Score: bd.Total, Breakdown: bd}
		}
	}

	log.Info().Str("symbol", best.Contract.Symbol).Str("regime", regime.String()).
		Float64("score", best.Score).Float64("strength", strength).
		Msg("Contract selected")
	return best, true
}

// score computes the weighted sum of the four normalized sub-scores,
// multiplied by signal strength so a weak signal can never rank high.
func (s *Scorer) score(c domain.OptionContract, p RegimeParams,
	strength, realizedVol, spot float64, now time.Time) Breakdown {

	bd := Breakdown{
		Liquidity: liquidityScore(c, p),
		TimeValue: timeValueScore(c.DaysToExpiry(now), p),
		Moneyness: moneynessScore(c.Moneyness(spot), p),
		VolEdge:   volEdgeScore(c.ImpliedVol, realizedVol),
	}
	weighted := p.Weights.Liquidity*bd.Liquidity +
		p.Weights.TimeValue*bd.TimeValue +
		p.Weights.Moneyness*bd.Moneyness +
		p.Weights.VolEdge*bd.VolEdge
	bd.Total = weighted * strength
	return bd
}

// liquidityScore averages volume and open-interest ratios against
// liquidityHeadroom times the regime minimums, capped at 1.
func liquidityScore(c domain.OptionContract, p RegimeParams) float64 {
	volRatio := float64(c.Volume) / (liquidityHeadroom * float64(p.MinVolume))
	oiRatio := float64(c.OpenInterest) / (liquidityHeadroom * float64(p.MinOpenInterest))
	return clamp01((volRatio + oiRatio) / 2.0)
}

// timeValueScore is the linear position within the allowed DTE window,
// earlier expiry scoring higher.
func timeValueScore(dte float64, p RegimeParams) float64 {
	span := p.MaxDTE - p.MinDTE
	if span <= 0 {
		return 1.0
	}
	return clamp01(1.0 - (dte-p.MinDTE)/span)
}

// moneynessScore rewards closeness to the lower edge of the admissible
// moneyness window.
func moneynessScore(m float64, p RegimeParams) float64 {
	span := p.MaxMoneyness - p.MinMoneyness
	if span <= 0 {
		return 1.0
	}
	return clamp01(1.0 - (m-p.MinMoneyness)/span)
}

// volEdgeScore rewards implied volatility that is cheap relative to the
// realized estimate: parity scores 0.5, half of realized scores 1.
func volEdgeScore(iv, realizedVol float64) float64 {
	if realizedVol <= 0 || iv <= 0 {
		return 0
	}
	return clamp01(1.5 - iv/realizedVol)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
