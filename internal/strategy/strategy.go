package strategy

import (
	"fmt"

	"tradeloop/internal/market"
)

type Tag string

const (
	TagMomentum      Tag = "momentum"
	TagMeanReversion Tag = "mean_reversion"
	TagRSI           Tag = "rsi"
	TagVWAP          Tag = "vwap"
	TagMACrossover   Tag = "ma_crossover"
)

// Tags lists every known strategy in registry order.
var Tags = []Tag{TagMomentum, TagMeanReversion, TagRSI, TagVWAP, TagMACrossover}

// Opportunity is a candidate entry produced by one evaluator in one tick.
type Opportunity struct {
	Symbol         string      `json:"symbol"`
	Side           market.Side `json:"side"`
	ReferencePrice float64     `json:"reference_price"`
	Tag            Tag         `json:"strategy"`
	Strength       float64     `json:"strength"`
	Reason         string      `json:"reason"`
}

// Evaluator scores one symbol's bars. Implementations must be pure.
type Evaluator interface {
	Tag() Tag
	MinBars() int
	Evaluate(symbol string, bars []market.Bar) (Opportunity, bool)
}

// Registry holds the enabled evaluators keyed by tag.
type Registry struct {
	byTag map[Tag]Evaluator
	order []Tag
}

func NewRegistry() *Registry {
	return &Registry{byTag: make(map[Tag]Evaluator)}
}

func (r *Registry) Register(ev Evaluator) error {
	if ev == nil {
		return fmt.Errorf("nil evaluator")
	}
	tag := ev.Tag()
	if _, exists := r.byTag[tag]; exists {
		return fmt.Errorf("strategy %s already registered", tag)
	}
	r.byTag[tag] = ev
	r.order = append(r.order, tag)
	return nil
}

func (r *Registry) Get(tag Tag) (Evaluator, bool) {
	ev, ok := r.byTag[tag]
	return ev, ok
}

// Evaluators returns the registered evaluators in registration order.
func (r *Registry) Evaluators() []Evaluator {
	out := make([]Evaluator, 0, len(r.order))
	for _, tag := range r.order {
		out = append(out, r.byTag[tag])
	}
	return out
}

func (r *Registry) Tags() []Tag {
	return append([]Tag(nil), r.order...)
}

func (r *Registry) Len() int { return len(r.order) }

// MaxBars is the largest history any registered evaluator needs.
func (r *Registry) MaxBars() int {
	n := 0
	for _, ev := range r.byTag {
		if m := ev.MinBars(); m > n {
			n = m
		}
	}
	return n
}

// EvaluateAll runs every evaluator on the bars. A panicking evaluator is
// reported through onPanic and skipped.
func (r *Registry) EvaluateAll(symbol string, bars []market.Bar, onPanic func(Tag, any)) []Opportunity {
	var out []Opportunity
	for _, ev := range r.Evaluators() {
		opp, ok := safeEvaluate(ev, symbol, bars, onPanic)
		if ok {
			out = append(out, opp)
		}
	}
	return out
}

func safeEvaluate(ev Evaluator, symbol string, bars []market.Bar, onPanic func(Tag, any)) (opp Opportunity, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			if onPanic != nil {
				onPanic(ev.Tag(), rec)
			}
			opp, ok = Opportunity{}, false
		}
	}()
	if len(bars) < ev.MinBars() {
		return Opportunity{}, false
	}
	return ev.Evaluate(symbol, bars)
}

// BuildRegistry registers every strategy whose allocation weight is positive.
func BuildRegistry(params Params, allocations map[Tag]float64) (*Registry, error) {
	reg := NewRegistry()
	for _, tag := range Tags {
		if allocations[tag] <= 0 {
			continue
		}
		var ev Evaluator
		switch tag {
		case TagMomentum:
			ev = NewMomentum(params.Momentum)
		case TagMeanReversion:
			ev = NewMeanReversion(params.MeanReversion)
		case TagRSI:
			ev = NewRSI(params.RSI)
		case TagVWAP:
			ev = NewVWAP(params.VWAP)
		case TagMACrossover:
			ev = NewMACrossover(params.MACrossover)
		}
		if err := reg.Register(ev); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func ParseTag(s string) (Tag, error) {
	for _, t := range Tags {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}
