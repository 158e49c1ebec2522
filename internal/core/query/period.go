package query

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/aevon-lab/regraph/internal/core/aggregation"
)

// DateParser turns a date literal from the query text into an instant.
// *locale.Locale satisfies it.
type DateParser interface {
	ParseDate(s string) (time.Time, error)
}

// TimeWindow is a closed time range. Start is never after End.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Buckets returns the number of bucket starts from Start up to and including End.
// ok is false when the count does not fit an int64.
func (w TimeWindow) Buckets(d time.Duration) (n int64, ok bool) {
	steps, ok := stepsBetween(w.Start, w.End, d)
	if !ok || steps < 0 || steps == math.MaxInt64 {
		return 0, false
	}
	return steps + 1, true
}

// stepsBetween returns how many whole d fit between from and to. time.Sub
// saturates beyond roughly 292 years, so wider spans are computed exactly.
func stepsBetween(from, to time.Time, d time.Duration) (int64, bool) {
	if diff := to.Sub(from); diff > math.MinInt64 && diff < math.MaxInt64 {
		return int64(diff / d), true
	}
	span := new(big.Int).Mul(big.NewInt(to.Unix()-from.Unix()), big.NewInt(int64(time.Second)))
	span.Add(span, big.NewInt(int64(to.Nanosecond()-from.Nanosecond())))
	q := span.Quo(span, big.NewInt(int64(d)))
	if !q.IsInt64() {
		return 0, false
	}
	return q.Int64(), true
}

// resolveDates parses the period's literals. The since form ends at now.
func resolveDates(p Period, dates DateParser, now time.Time) (TimeWindow, error) {
	from, err := dates.ParseDate(p.From)
	if err != nil {
		return TimeWindow{}, syntaxErrorf(0, "invalid date %q: %v", p.From, err)
	}
	if p.Since {
		return TimeWindow{Start: from, End: now}, nil
	}
	to, err := dates.ParseDate(p.To)
	if err != nil {
		return TimeWindow{}, syntaxErrorf(0, "invalid date %q: %v", p.To, err)
	}
	return TimeWindow{Start: from, End: to}, nil
}

// clampWindow narrows requested to the data actually present and rounds the
// result outward to bucket boundaries. The start is floored, not ceiled, so the
// earliest record keeps its bucket. It returns the indices of the selected
// records in input order.
func clampWindow[R Record](records []R, requested TimeWindow, bucket time.Duration) (TimeWindow, []int, error) {
	var (
		selected []int
		lo, hi   time.Time
	)
	for i, rec := range records {
		ts := rec.Timestamp()
		if !requested.Contains(ts) {
			continue
		}
		if len(selected) == 0 || ts.Before(lo) {
			lo = ts
		}
		if len(selected) == 0 || ts.After(hi) {
			hi = ts
		}
		selected = append(selected, i)
	}
	if len(selected) == 0 {
		return TimeWindow{}, nil, fmt.Errorf("%w: %s to %s",
			ErrEmptyWindow, requested.Start.Format(time.RFC3339), requested.End.Format(time.RFC3339))
	}
	return TimeWindow{
		Start: aggregation.BucketFor(lo, bucket),
		End:   aggregation.CeilBucket(hi, bucket),
	}, selected, nil
}
