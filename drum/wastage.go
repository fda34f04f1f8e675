package drum

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodSmartSegments  Method = "smart_segments"
	MethodManualOverride Method = "manual_override"
	MethodLegacyGaps     Method = "legacy_gaps"
)

var (
	ErrMethodUnavailable = errors.New("wastage method has no calculator")
	ErrUnknownMethod     = errors.New("unknown wastage method")
)

// Usage is one draw from the drum. Start and End are physical offsets and may be nil.
type Usage struct {
	Quantity decimal.Decimal
	Start    *decimal.Decimal
	End      *decimal.Decimal
	Date     time.Time
}

type Input struct {
	Capacity      decimal.Decimal
	Usages        []Usage
	Status        models.DrumStatus
	ManualWastage *decimal.Decimal
	Method        Method
}

// Segment is a consumed span [Start, End] of the drum.
type Segment struct {
	Start decimal.Decimal
	End   decimal.Decimal
}

func (s Segment) Length() decimal.Decimal {
	return s.End.Sub(s.Start)
}

type Result struct {
	Capacity                  decimal.Decimal
	TotalUsed                 decimal.Decimal
	TotalWastage              decimal.Decimal
	RemainingCable            decimal.Decimal
	CalculatedCurrentQuantity decimal.Decimal
	Method                    Method
	Segments                  []Segment
}

// Calculator computes a drum aggregate for one method.
type Calculator func(Input) (Result, error)

var (
	calculatorsMu sync.RWMutex
	calculators   = map[Method]Calculator{
		MethodSmartSegments:  smartSegments,
		MethodManualOverride: manualOverride,
		// Known by name only; install an implementation with RegisterCalculator.
		MethodLegacyGaps: nil,
	}
)

// RegisterCalculator installs or replaces the calculator for a method.
func RegisterCalculator(m Method, c Calculator) {
	calculatorsMu.Lock()
	defer calculatorsMu.Unlock()
	calculators[m] = c
}

func ParseMethod(raw string) (Method, error) {
	m := Method(raw)
	if m == "" {
		return MethodSmartSegments, nil
	}
	calculatorsMu.RLock()
	defer calculatorsMu.RUnlock()
	if _, ok := calculators[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, raw)
	}
	return m, nil
}

// Calculate runs the manual override when one is set, otherwise in.Method
// (smart segments when empty).
func Calculate(in Input) (Result, error) {
	m := in.Method
	switch {
	case in.ManualWastage != nil:
		m = MethodManualOverride
	case m == "":
		m = MethodSmartSegments
	}
	calculatorsMu.RLock()
	calc, ok := calculators[m]
	calculatorsMu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
	if calc == nil {
		return Result{}, fmt.Errorf("%w: %q", ErrMethodUnavailable, m)
	}
	return calc(in)
}

func capacityOf(in Input) decimal.Decimal {
	if in.Capacity.IsNegative() {
		return decimal.Zero
	}
	return in.Capacity
}

func manualOverride(in Input) (Result, error) {
	if in.ManualWastage == nil {
		return Result{}, errors.New("manual override without a wastage value")
	}
	capacity := capacityOf(in)
	used := decimal.Zero
	for _, u := range in.Usages {
		used = used.Add(u.Quantity)
	}
	wastage := *in.ManualWastage
	current := decimal.Max(capacity.Sub(used).Sub(wastage), decimal.Zero)
	return Result{
		Capacity:                  capacity,
		TotalUsed:                 used,
		TotalWastage:              wastage,
		RemainingCable:            current,
		CalculatedCurrentQuantity: current,
		Method:                    MethodManualOverride,
	}, nil
}

// smartSegments measures the union of usage spans on the drum. Without any
// recorded span, quantities are laid end to end in date order from offset 0.
// Whatever is not covered is remaining cable on a working drum and wastage
// on a retired one.
func smartSegments(in Input) (Result, error) {
	capacity := capacityOf(in)

	var spans []Segment
	for _, u := range in.Usages {
		if u.Start == nil || u.End == nil || u.Start.Equal(*u.End) {
			continue
		}
		spans = append(spans, Segment{Start: decimal.Min(*u.Start, *u.End), End: decimal.Max(*u.Start, *u.End)})
	}
	if len(spans) == 0 {
		spans = sequentialSpans(in.Usages)
	}

	merged := mergeSegments(clip(spans, capacity))
	used := decimal.Zero
	for _, s := range merged {
		used = used.Add(s.Length())
	}

	gap := capacity.Sub(used)
	res := Result{
		Capacity:  capacity,
		TotalUsed: used,
		Method:    MethodSmartSegments,
		Segments:  merged,
	}
	if in.Status.IsRetired() {
		res.TotalWastage = gap
		res.RemainingCable = decimal.Zero
	} else {
		res.TotalWastage = decimal.Zero
		res.RemainingCable = gap
	}
	res.CalculatedCurrentQuantity = capacity.Sub(used).Sub(res.TotalWastage)
	return res, nil
}

func sequentialSpans(usages []Usage) []Segment {
	ordered := append([]Usage(nil), usages...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })
	var spans []Segment
	offset := decimal.Zero
	for _, u := range ordered {
		if !u.Quantity.IsPositive() {
			continue
		}
		end := offset.Add(u.Quantity)
		spans = append(spans, Segment{Start: offset, End: end})
		offset = end
	}
	return spans
}

// clip bounds every span to [0, capacity] and drops the ones left empty.
func clip(spans []Segment, capacity decimal.Decimal) []Segment {
	out := spans[:0:0]
	for _, s := range spans {
		start := decimal.Max(s.Start, decimal.Zero)
		end := decimal.Min(s.End, capacity)
		if end.GreaterThan(start) {
			out = append(out, Segment{Start: start, End: end})
		}
	}
	return out
}

// mergeSegments sweeps spans sorted by start, joining overlapping and touching ones.
func mergeSegments(spans []Segment) []Segment {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.LessThan(spans[j].Start) })
	out := []Segment{spans[0]}
	for _, s := range spans[1:] {
		cur := &out[len(out)-1]
		if s.Start.LessThanOrEqual(cur.End) {
			if s.End.GreaterThan(cur.End) {
				cur.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
