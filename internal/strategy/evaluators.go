package strategy

import (
	"fmt"
	"math"

	"tradeloop/internal/indicator"
	"tradeloop/internal/market"
)

type MomentumParams struct {
	Lookback      int     `json:"lookback"`
	BreakoutRatio float64 `json:"breakout_ratio"`
	VolumeRatio   float64 `json:"volume_ratio"`
}

type MeanReversionParams struct {
	Lookback           int     `json:"lookback"`
	DeviationThreshold float64 `json:"deviation_threshold"`
	StrengthScale      float64 `json:"strength_scale"`
}

type RSIParams struct {
	Period          int     `json:"period"`
	Oversold        float64 `json:"oversold"`
	StrengthDivisor float64 `json:"strength_divisor"`
}

type VWAPParams struct {
	Window         int     `json:"window"`
	ProximityRatio float64 `json:"proximity_ratio"`
	StrengthScale  float64 `json:"strength_scale"`
	MinStrength    float64 `json:"min_strength"`
}

type MACrossoverParams struct {
	Fast          int     `json:"fast"`
	Slow          int     `json:"slow"`
	StrengthScale float64 `json:"strength_scale"`
}

// Params carries the tunables of every strategy.
type Params struct {
	Momentum      MomentumParams      `json:"momentum"`
	MeanReversion MeanReversionParams `json:"mean_reversion"`
	RSI           RSIParams           `json:"rsi"`
	VWAP          VWAPParams          `json:"vwap"`
	MACrossover   MACrossoverParams   `json:"ma_crossover"`
}

func DefaultParams() Params {
	return Params{
		Momentum:      MomentumParams{Lookback: 20, BreakoutRatio: 0.98, VolumeRatio: 1.1},
		MeanReversion: MeanReversionParams{Lookback: 20, DeviationThreshold: 0.015, StrengthScale: 100},
		RSI:           RSIParams{Period: 14, Oversold: 40, StrengthDivisor: 10},
		VWAP:          VWAPParams{Window: 20, ProximityRatio: 1.02, StrengthScale: 100, MinStrength: 0.5},
		MACrossover:   MACrossoverParams{Fast: 10, Slow: 30, StrengthScale: 100},
	}
}

// Momentum fires on a close near the prior N-bar high with above-average volume.
type Momentum struct{ p MomentumParams }

func NewMomentum(p MomentumParams) *Momentum { return &Momentum{p: p} }

func (m *Momentum) Tag() Tag { return TagMomentum }

// MinBars covers the lookback window plus the current bar.
func (m *Momentum) MinBars() int { return m.p.Lookback + 1 }

func (m *Momentum) Evaluate(symbol string, bars []market.Bar) (Opportunity, bool) {
	if m.p.Lookback <= 0 || len(bars) < m.MinBars() {
		return Opportunity{}, false
	}
	cur := market.Last(bars)
	prior := bars[:len(bars)-1]
	high, ok := indicator.MaxOf(market.Closes(prior), m.p.Lookback)
	if !ok || high <= 0 {
		return Opportunity{}, false
	}
	avgVol, ok := indicator.Mean(market.Volumes(prior), m.p.Lookback)
	if !ok || avgVol <= 0 {
		return Opportunity{}, false
	}
	if cur.Close < high*m.p.BreakoutRatio || cur.Volume <= avgVol*m.p.VolumeRatio {
		return Opportunity{}, false
	}
	volRatio := cur.Volume / avgVol
	priceRatio := cur.Close / high
	return Opportunity{
		Symbol:         symbol,
		Side:           market.SideBuy,
		ReferencePrice: cur.Close,
		Tag:            TagMomentum,
		Strength:       volRatio * priceRatio,
		Reason:         fmt.Sprintf("close %.4f at %.1f%% of %d-bar high, volume %.2fx avg", cur.Close, priceRatio*100, m.p.Lookback, volRatio),
	}, true
}

// MeanReversion fires when the close sits far enough below its SMA.
type MeanReversion struct{ p MeanReversionParams }

func NewMeanReversion(p MeanReversionParams) *MeanReversion { return &MeanReversion{p: p} }

func (m *MeanReversion) Tag() Tag { return TagMeanReversion }

func (m *MeanReversion) MinBars() int { return m.p.Lookback }

func (m *MeanReversion) Evaluate(symbol string, bars []market.Bar) (Opportunity, bool) {
	sma, ok := indicator.SMA(market.Closes(bars), m.p.Lookback)
	if !ok || sma <= 0 {
		return Opportunity{}, false
	}
	cur := market.Last(bars)
	deviation := (cur.Close - sma) / sma
	if deviation >= -m.p.DeviationThreshold {
		return Opportunity{}, false
	}
	return Opportunity{
		Symbol:         symbol,
		Side:           market.SideBuy,
		ReferencePrice: cur.Close,
		Tag:            TagMeanReversion,
		Strength:       math.Abs(deviation) * m.p.StrengthScale,
		Reason:         fmt.Sprintf("close %.2f%% below %d-bar SMA %.4f", -deviation*100, m.p.Lookback, sma),
	}, true
}

// RSIOversold fires when Wilder's RSI drops under the oversold level.
type RSIOversold struct{ p RSIParams }

func NewRSI(p RSIParams) *RSIOversold { return &RSIOversold{p: p} }

func (r *RSIOversold) Tag() Tag { return TagRSI }

func (r *RSIOversold) MinBars() int { return r.p.Period + 1 }

func (r *RSIOversold) Evaluate(symbol string, bars []market.Bar) (Opportunity, bool) {
	rsi, ok := indicator.RSI(market.Closes(bars), r.p.Period)
	if !ok || rsi >= r.p.Oversold {
		return Opportunity{}, false
	}
	div := r.p.StrengthDivisor
	if div <= 0 {
		div = 10
	}
	cur := market.Last(bars)
	return Opportunity{
		Symbol:         symbol,
		Side:           market.SideBuy,
		ReferencePrice: cur.Close,
		Tag:            TagRSI,
		Strength:       (r.p.Oversold - rsi) / div,
		Reason:         fmt.Sprintf("RSI(%d) %.1f below %.0f", r.p.Period, rsi, r.p.Oversold),
	}, true
}

// VWAPBounce fires when the close trades at or near the rolling VWAP.
type VWAPBounce struct{ p VWAPParams }

func NewVWAP(p VWAPParams) *VWAPBounce { return &VWAPBounce{p: p} }

func (v *VWAPBounce) Tag() Tag { return TagVWAP }

func (v *VWAPBounce) MinBars() int { return v.p.Window }

func (v *VWAPBounce) Evaluate(symbol string, bars []market.Bar) (Opportunity, bool) {
	vwap, ok := indicator.VWAP(bars, v.p.Window)
	if !ok || vwap <= 0 {
		return Opportunity{}, false
	}
	cur := market.Last(bars)
	if cur.Close > vwap*v.p.ProximityRatio {
		return Opportunity{}, false
	}
	discount := (vwap - cur.Close) / vwap
	strength := math.Max(discount*v.p.StrengthScale, v.p.MinStrength)
	return Opportunity{
		Symbol:         symbol,
		Side:           market.SideBuy,
		ReferencePrice: cur.Close,
		Tag:            TagVWAP,
		Strength:       strength,
		Reason:         fmt.Sprintf("close %.4f vs VWAP(%d) %.4f", cur.Close, v.p.Window, vwap),
	}, true
}

// MACrossover fires on a golden cross: the fast SMA moves from at or below
// the slow SMA on the previous bar to above it on the current one.
type MACrossover struct{ p MACrossoverParams }

func NewMACrossover(p MACrossoverParams) *MACrossover { return &MACrossover{p: p} }

func (m *MACrossover) Tag() Tag { return TagMACrossover }

// MinBars covers the slow window on the previous bar as well.
func (m *MACrossover) MinBars() int { return m.p.Slow + 1 }

func (m *MACrossover) Evaluate(symbol string, bars []market.Bar) (Opportunity, bool) {
	if m.p.Fast <= 0 || m.p.Fast >= m.p.Slow || len(bars) < m.MinBars() {
		return Opportunity{}, false
	}
	closes := market.Closes(bars)
	prev := closes[:len(closes)-1]
	fast, _ := indicator.SMA(closes, m.p.Fast)
	slow, _ := indicator.SMA(closes, m.p.Slow)
	prevFast, _ := indicator.SMA(prev, m.p.Fast)
	prevSlow, _ := indicator.SMA(prev, m.p.Slow)
	if slow <= 0 || prevFast > prevSlow || fast <= slow {
		return Opportunity{}, false
	}
	spread := (fast - slow) / slow
	cur := market.Last(bars)
	return Opportunity{
		Symbol:         symbol,
		Side:           market.SideBuy,
		ReferencePrice: cur.Close,
		Tag:            TagMACrossover,
		Strength:       spread * m.p.StrengthScale,
		Reason:         fmt.Sprintf("SMA(%d) %.4f crossed above SMA(%d) %.4f", m.p.Fast, fast, m.p.Slow, slow),
	}, true
}
