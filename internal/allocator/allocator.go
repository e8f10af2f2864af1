package allocator

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"tradeloop/internal/strategy"
)

// AllocationTable maps a strategy to its percentage of max position value.
type AllocationTable map[strategy.Tag]float64

func (t AllocationTable) Sum() float64 {
	sum := 0.0
	for _, v := range t {
		sum += v
	}
	return sum
}

func (t AllocationTable) Validate() error {
	for tag, v := range t {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("allocation for %s must be >= 0", tag)
		}
	}
	if sum := t.Sum(); sum > 100 {
		return fmt.Errorf("allocations sum to %.2f, must be <= 100", sum)
	}
	return nil
}

type Settings struct {
	MaxPositionValue float64
	MaxOpenPositions int
	// LotSize is the smallest tradable quantity step. Zero means whole units.
	LotSize      float64
	SizingFactor float64
	Allocations  AllocationTable
}

// Order is a sized entry ready for submission.
type Order struct {
	Opportunity   strategy.Opportunity
	Quantity      float64
	PositionValue float64
}

type DiscardReason string

const (
	DiscardHeld      DiscardReason = "already_held"
	DiscardDuplicate DiscardReason = "duplicate_symbol"
	DiscardTooSmall  DiscardReason = "quantity_below_lot"
	DiscardNoSlots   DiscardReason = "no_slots"
	DiscardBadPrice  DiscardReason = "invalid_price"
	DiscardRejected  DiscardReason = "submit_failed"
)

type Discard struct {
	Opportunity strategy.Opportunity
	Reason      DiscardReason
}

type Result struct {
	Accepted  []Order
	Discarded []Discard
}

// SubmitFunc places one order and reports whether it was accepted.
type SubmitFunc func(Order) bool

var hundred = decimal.NewFromInt(100)

type Allocator struct {
	cfg Settings
}

func New(cfg Settings) *Allocator {
	if cfg.LotSize <= 0 {
		cfg.LotSize = 1
	}
	if cfg.SizingFactor <= 0 {
		cfg.SizingFactor = 1
	}
	return &Allocator{cfg: cfg}
}

// Rank sorts by strength descending. Ties keep input order.
func Rank(opps []strategy.Opportunity) []strategy.Opportunity {
	out := append([]strategy.Opportunity(nil), opps...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})
	return out
}

// Size returns the quantity and notional for one opportunity. A zero
// quantity means the opportunity cannot be filled at one lot.
func (a *Allocator) Size(opp strategy.Opportunity) (qty float64, value float64) {
	if opp.ReferencePrice <= 0 || math.IsNaN(opp.ReferencePrice) {
		return 0, 0
	}
	maxPos := decimal.NewFromFloat(a.cfg.MaxPositionValue)
	weight := decimal.NewFromFloat(a.cfg.Allocations[opp.Tag]).Div(hundred)
	target := maxPos.Mul(weight).Mul(decimal.NewFromFloat(a.cfg.SizingFactor))
	if target.GreaterThan(maxPos) {
		target = maxPos
	}
	lot := decimal.NewFromFloat(a.cfg.LotSize)
	price := decimal.NewFromFloat(opp.ReferencePrice)
	lots := target.Div(price).Div(lot).Floor()
	q := lots.Mul(lot)
	if q.LessThan(lot) {
		return 0, 0
	}
	qty, _ = q.Float64()
	value, _ = q.Mul(price).Float64()
	return qty, value
}

// Allocate ranks opportunities and sizes them into the free slots. held
// lists symbols with an open position; openCount is the position count at
// tick start. A nil submit makes the call pure.
func (a *Allocator) Allocate(opps []strategy.Opportunity, held map[string]bool, openCount int, submit SubmitFunc) Result {
	var res Result
	slots := a.cfg.MaxOpenPositions - openCount
	taken := make(map[string]bool)
	for _, opp := range Rank(opps) {
		if held[opp.Symbol] {
			res.Discarded = append(res.Discarded, Discard{opp, DiscardHeld})
			continue
		}
		if taken[opp.Symbol] {
			res.Discarded = append(res.Discarded, Discard{opp, DiscardDuplicate})
			continue
		}
		if slots <= 0 {
			res.Discarded = append(res.Discarded, Discard{opp, DiscardNoSlots})
			continue
		}
		if opp.ReferencePrice <= 0 {
			res.Discarded = append(res.Discarded, Discard{opp, DiscardBadPrice})
			continue
		}
		qty, value := a.Size(opp)
		if qty <= 0 {
			res.Discarded = append(res.Discarded, Discard{opp, DiscardTooSmall})
			continue
		}
		order := Order{Opportunity: opp, Quantity: qty, PositionValue: value}
		if submit != nil && !submit(order) {
			res.Discarded = append(res.Discarded, Discard{opp, DiscardRejected})
			continue
		}
		taken[opp.Symbol] = true
		slots--
		res.Accepted = append(res.Accepted, order)
	}
	return res
}
