package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/optionrun/internal/domain"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func contract(symbol string, typ domain.ContractType, strike float64, dte int, vol, oi int64, iv float64) domain.OptionContract {
	return domain.OptionContract{
		Symbol:       symbol,
		Underlying:   "SPY",
		Type:         typ,
		Strike:       strike,
		Expiry:       testNow.AddDate(0, 0, dte),
		Volume:       vol,
		OpenInterest: oi,
		ImpliedVol:   iv,
	}
}

// testChain is sized for the medium regime: DTE [7,21], moneyness
// [0.01,0.06] of spot 580, min volume 300, min OI 500.
func testChain() []domain.OptionContract {
	return []domain.OptionContract{
		contract("SPY_C590_14", domain.Call, 590, 14, 1200, 3000, 0.18), // in window, liquid, cheap IV
		contract("SPY_C600_14", domain.Call, 600, 14, 900, 2000, 0.22),  // moneyness 0.034
		contract("SPY_C640_14", domain.Call, 640, 14, 800, 1500, 0.20),  // moneyness 0.103, filtered
		contract("SPY_C590_40", domain.Call, 590, 40, 2000, 5000, 0.18), // DTE out of window
		contract("SPY_C590_14_thin", domain.Call, 591, 14, 50, 100, 0.18), // illiquid
		contract("SPY_P570_14", domain.Put, 570, 14, 1500, 4000, 0.19),  // wrong type for bullish
	}
}

func TestClassifyVolatility(t *testing.T) {
	assert.Equal(t, HighVol, ClassifyVolatility(0.45))
	assert.Equal(t, MediumVol, ClassifyVolatility(0.30))
	assert.Equal(t, MediumVol, ClassifyVolatility(0.26))
	assert.Equal(t, LowVol, ClassifyVolatility(0.25))
	assert.Equal(t, LowVol, ClassifyVolatility(0.10))
}

func TestSelect_FiltersAndScores(t *testing.T) {
	s := NewScorer(DefaultConfig())

	sel, ok := s.Select(domain.Bullish, 0.8, 0.30, 580.0, testChain(), testNow)
	require.True(t, ok)

	// The near-the-edge, liquid, cheap-IV call wins.
	assert.Equal(t, "SPY_C590_14", sel.Contract.Symbol)
	assert.Equal(t, MediumVol, sel.Regime)
	assert.Greater(t, sel.Score, 0.0)
	assert.LessOrEqual(t, sel.Score, 1.0)
	assert.Greater(t, sel.Breakdown.Liquidity, 0.9, "deep liquidity should saturate")
}

func TestSelect_BearishWantsPuts(t *testing.T) {
	s := NewScorer(DefaultConfig())

	sel, ok := s.Select(domain.Bearish, 0.8, 0.30, 580.0, testChain(), testNow)
	require.True(t, ok)
	assert.Equal(t, domain.Put, sel.Contract.Type)
	assert.Equal(t, "SPY_P570_14", sel.Contract.Symbol)
}

func TestSelect_WeakSignalNotActionable(t *testing.T) {
	s := NewScorer(DefaultConfig())

	_, ok := s.Select(domain.Bullish, 0.1, 0.30, 580.0, testChain(), testNow)
	assert.False(t, ok)
}

func TestSelect_EmptySurvivors(t *testing.T) {
	s := NewScorer(DefaultConfig())

	// Only far-dated contracts: nothing fits the medium DTE window.
	chain := []domain.OptionContract{
		contract("SPY_C590_60", domain.Call, 590, 60, 1000, 2000, 0.18),
	}
	_, ok := s.Select(domain.Bullish, 0.8, 0.30, 580.0, chain, testNow)
	assert.False(t, ok)

	_, ok = s.Select(domain.Bullish, 0.8, 0.30, 580.0, nil, testNow)
	assert.False(t, ok)
}

func TestSelect_Deterministic(t *testing.T) {
	s := NewScorer(DefaultConfig())

	first, ok := s.Select(domain.Bullish, 0.7, 0.30, 580.0, testChain(), testNow)
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		sel, ok := s.Select(domain.Bullish, 0.7, 0.30, 580.0, testChain(), testNow)
		require.True(t, ok)
		assert.Equal(t, first.Contract.Symbol, sel.Contract.Symbol)
		assert.Equal(t, first.Score, sel.Score)
	}
}

func TestSelect_StrengthScalesScore(t *testing.T) {
	s := NewScorer(DefaultConfig())

	strong, ok := s.Select(domain.Bullish, 1.0, 0.30, 580.0, testChain(), testNow)
	require.True(t, ok)
	weak, ok := s.Select(domain.Bullish, 0.5, 0.30, 580.0, testChain(), testNow)
	require.True(t, ok)

	assert.Equal(t, strong.Contract.Symbol, weak.Contract.Symbol)
	assert.InDelta(t, strong.Score*0.5, weak.Score, 1e-9,
		"score must scale linearly with signal strength")
}

func TestSelect_RegimeOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegimeOverrides = map[string]RegimeParams{
		"medium_vol": {
			MinDTE: 7, MaxDTE: 21,
			MinMoneyness: 0.01, MaxMoneyness: 0.20, // widened: admits the 640 strike
			MinVolume: 300, MinOpenInterest: 500,
			Weights: Weights{Liquidity: 0.25, TimeValue: 0.25, Moneyness: 0.25, VolEdge: 0.25},
		},
	}
	s := NewScorer(cfg)

	sel, ok := s.Select(domain.Bullish, 0.8, 0.30, 580.0, testChain(), testNow)
	require.True(t, ok)
	// Still scored, just against the widened window.
	assert.NotEmpty(t, sel.Contract.Symbol)
}

func TestMoneyness_SignFlippedForPuts(t *testing.T) {
	call := contract("C", domain.Call, 600, 14, 0, 0, 0)
	put := contract("P", domain.Put, 560, 14, 0, 0, 0)

	assert.InDelta(t, 0.0345, call.Moneyness(580), 0.001)
	assert.InDelta(t, 0.0345, put.Moneyness(580), 0.001)
}
