package query

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Statement is the compiled form of a query: what to aggregate and over which period.
type Statement struct {
	Items   []SeriesItem `json:"items"`
	Period  Period       `json:"period"`
	Options Options      `json:"options,omitempty"`
}

// SeriesItem is one entry of the series list. Exactly one of Series and Group is set.
type SeriesItem struct {
	Text   string      `json:"text"` // expression as written, trimmed
	Pos    int         `json:"pos"`
	Series *SeriesSpec `json:"series,omitempty"`
	Group  *GroupSpec  `json:"group,omitempty"`
}

// SeriesSpec describes one aggregated output series.
type SeriesSpec struct {
	Function string `json:"function"` // registered lower-case function name
	Path     string `json:"path"`     // dotted attribute path; empty means the collection name
	Scale    Scale  `json:"scale"`
}

// GroupSpec produces display-only group labels across the resolved window.
type GroupSpec struct {
	Interval   time.Duration `json:"interval"`
	NameFormat string        `json:"name_format"` // Go time layout
}

// Period is the unresolved right-hand side of a query. Date literals are kept
// as text; they are parsed with the caller's DateParser at query time.
type Period struct {
	Bucket time.Duration `json:"bucket"`
	Since  bool          `json:"since"`
	From   string        `json:"from"`
	To     string        `json:"to,omitempty"` // empty for the since form
}

// Scale is a rational multiplier applied to every aggregate of a series.
// The zero Scale is the identity.
type Scale struct {
	Num decimal.Decimal `json:"num"`
	Den decimal.Decimal `json:"den"`
}

var one = decimal.NewFromInt(1)

// UnitScale multiplies by one.
func UnitScale() Scale {
	return Scale{Num: one, Den: one}
}

// Apply returns v * Num / Den.
func (s Scale) Apply(v decimal.Decimal) decimal.Decimal {
	if s.Den.IsZero() {
		return v
	}
	return v.Mul(s.Num).Div(s.Den)
}

// Series returns the aggregation specs in left-to-right order.
func (s *Statement) Series() []SeriesSpec {
	var out []SeriesSpec
	for _, item := range s.Items {
		if item.Series != nil {
			out = append(out, *item.Series)
		}
	}
	return out
}

// Group returns the group spec, or nil when the query has none.
func (s *Statement) Group() *GroupSpec {
	for _, item := range s.Items {
		if item.Group != nil {
			return item.Group
		}
	}
	return nil
}

// Describe renders "[expr1, expr2] of name" from the expressions as written.
func (s *Statement) Describe(name string) string {
	texts := make([]string, len(s.Items))
	for i, item := range s.Items {
		texts[i] = item.Text
	}
	return "[" + strings.Join(texts, ", ") + "] of " + name
}
