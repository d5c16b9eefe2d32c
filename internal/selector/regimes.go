package selector

// VolRegime classifies the realized-volatility environment. Each regime
// carries its own contract filters and scoring weights.
type VolRegime int

const (
	LowVol VolRegime = iota
	MediumVol
	HighVol
)

func (r VolRegime) String() string {
	switch r {
	case LowVol:
		return "low_vol"
	case MediumVol:
		return "medium_vol"
	case HighVol:
		return "high_vol"
	default:
		return "unknown"
	}
}

// ClassifyVolatility maps a realized-volatility estimate into a regime:
// high above 0.40, medium above 0.25, low otherwise.
func ClassifyVolatility(realizedVol float64) VolRegime {
	switch {
	case realizedVol > 0.40:
		return HighVol
	case realizedVol > 0.25:
		return MediumVol
	default:
		return LowVol
	}
}

// Weights are the four scoring weights applied to the normalized
// sub-scores. They should sum to 1.0 per regime.
type Weights struct {
	Liquidity float64 `yaml:"liquidity"`
	TimeValue float64 `yaml:"time_value"`
	Moneyness float64 `yaml:"moneyness"`
	VolEdge   float64 `yaml:"vol_edge"`
}

// RegimeParams is the parameter set a regime supplies: the admissible
// contract window and the scoring weights.
type RegimeParams struct {
	MinDTE          float64 `yaml:"min_dte"` // days to expiry
	MaxDTE          float64 `yaml:"max_dte"`
	MinMoneyness    float64 `yaml:"min_moneyness"` // favorable-OTM distance
	MaxMoneyness    float64 `yaml:"max_moneyness"`
	MinVolume       int64   `yaml:"min_volume"`
	MinOpenInterest int64   `yaml:"min_open_interest"`
	Weights         Weights `yaml:"weights"`
}

// defaultRegimeParams mirrors the regime-keyed weight tables used across
// the scan pipelines: high-vol trades shorter-dated, further out of the
// money, and demands more liquidity.
var defaultRegimeParams = map[VolRegime]RegimeParams{
	HighVol: {
		MinDTE:          5,
		MaxDTE:          15,
		MinMoneyness:    0.02,
		MaxMoneyness:    0.10,
		MinVolume:       500,
		MinOpenInterest: 1000,
		Weights:         Weights{Liquidity: 0.35, TimeValue: 0.15, Moneyness: 0.25, VolEdge: 0.25},
	},
	MediumVol: {
		MinDTE:          7,
		MaxDTE:          21,
		MinMoneyness:    0.01,
		MaxMoneyness:    0.06,
		MinVolume:       300,
		MinOpenInterest: 500,
		Weights:         Weights{Liquidity: 0.30, TimeValue: 0.25, Moneyness: 0.25, VolEdge: 0.20},
	},
	LowVol: {
		MinDTE:          10,
		MaxDTE:          30,
		MinMoneyness:    0.0,
		MaxMoneyness:    0.04,
		MinVolume:       200,
		MinOpenInterest: 300,
		Weights:         Weights{Liquidity: 0.30, TimeValue: 0.30, Moneyness: 0.25, VolEdge: 0.15},
	},
}

// ParamsFor returns the parameter set for a regime.
func ParamsFor(regime VolRegime) RegimeParams {
	return defaultRegimeParams[regime]
}
