package aggregation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Supported aggregation functions.
const (
	FnAvg      = "avg"
	FnSum      = "sum"
	FnMax      = "max"
	FnMin      = "min"
	FnCount    = "count"
	FnDistinct = "distinct"
)

// Accumulator folds the projected values of one bucket into a single aggregate.
// A fresh accumulator is created per bucket; Result on an accumulator that never
// saw a value returns the function's empty-bucket default (always zero).
type Accumulator interface {
	Add(v decimal.Decimal)
	Result() decimal.Decimal
}

// Function describes one registered aggregation function.
type Function struct {
	Name        string
	DisplayName string // prefix of the produced series name, e.g. "Sum of"
	// Projects is false for functions that ignore record values (count),
	// so the engine can skip field resolution entirely.
	Projects bool
	New      func() Accumulator
}

// Functions is the registry of all supported aggregation functions, keyed by
// lower-case name. To add a function: implement Accumulator and add an entry here.
// The map is never mutated after init and is safe for concurrent reads.
var Functions = map[string]Function{
	FnAvg:      {Name: FnAvg, DisplayName: "Average of", Projects: true, New: func() Accumulator { return &avgAcc{} }},
	FnSum:      {Name: FnSum, DisplayName: "Sum of", Projects: true, New: func() Accumulator { return &sumAcc{} }},
	FnMax:      {Name: FnMax, DisplayName: "Maximum of", Projects: true, New: func() Accumulator { return &maxAcc{} }},
	FnMin:      {Name: FnMin, DisplayName: "Minimum of", Projects: true, New: func() Accumulator { return &minAcc{} }},
	FnCount:    {Name: FnCount, DisplayName: "Count of", Projects: false, New: func() Accumulator { return &countAcc{} }},
	FnDistinct: {Name: FnDistinct, DisplayName: "Count of different", Projects: true, New: func() Accumulator { return &distinctAcc{} }},
}

// Lookup returns the function registered under name (case-insensitive).
func Lookup(name string) (Function, bool) {
	fn, ok := Functions[strings.ToLower(name)]
	return fn, ok
}

// ValidFunction reports whether name is a registered aggregation function.
func ValidFunction(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// countAcc counts added values. The values themselves are ignored.
type countAcc struct{ n int64 }

func (a *countAcc) Add(decimal.Decimal)     { a.n++ }
func (a *countAcc) Result() decimal.Decimal { return decimal.NewFromInt(a.n) }

// sumAcc accumulates the sum of values.
type sumAcc struct{ total decimal.Decimal }

func (a *sumAcc) Add(v decimal.Decimal)   { a.total = a.total.Add(v) }
func (a *sumAcc) Result() decimal.Decimal { return a.total }

// avgAcc keeps sum and count; the mean of nothing is zero.
type avgAcc struct {
	total decimal.Decimal
	n     int64
}

func (a *avgAcc) Add(v decimal.Decimal) {
	a.total = a.total.Add(v)
	a.n++
}

func (a *avgAcc) Result() decimal.Decimal {
	if a.n == 0 {
		return decimal.Zero
	}
	return a.total.Div(decimal.NewFromInt(a.n))
}

// minAcc tracks the minimum value seen.
type minAcc struct {
	v    decimal.Decimal
	seen bool
}

func (a *minAcc) Add(v decimal.Decimal) {
	if !a.seen || v.LessThan(a.v) {
		a.v = v
		a.seen = true
	}
}

func (a *minAcc) Result() decimal.Decimal { return a.v }

// maxAcc tracks the maximum value seen.
type maxAcc struct {
	v    decimal.Decimal
	seen bool
}

func (a *maxAcc) Add(v decimal.Decimal) {
	if !a.seen || v.GreaterThan(a.v) {
		a.v = v
		a.seen = true
	}
}

func (a *maxAcc) Result() decimal.Decimal { return a.v }

// distinctAcc counts distinct values. 1.0 and 1 are the same value.
type distinctAcc struct {
	seen map[string]struct{}
}

func (a *distinctAcc) Add(v decimal.Decimal) {
	if a.seen == nil {
		a.seen = make(map[string]struct{})
	}
	a.seen[v.String()] = struct{}{}
}

func (a *distinctAcc) Result() decimal.Decimal { return decimal.NewFromInt(int64(len(a.seen))) }
