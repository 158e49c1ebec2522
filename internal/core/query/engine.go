package query

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aevon-lab/regraph/internal/core/aggregation"
	"github.com/aevon-lab/regraph/internal/core/locale"
	"github.com/aevon-lab/regraph/internal/logging"
	"github.com/shopspring/decimal"
)

const (
	// DefaultDateFormat labels points as dd.mm.yy hh:mm.
	DefaultDateFormat = "02.01.06 15:04"
	// DefaultMaxBuckets caps the number of buckets (and group steps) per query.
	DefaultMaxBuckets = 100_000
)

type settings struct {
	dates      DateParser
	dateFormat string
	location   *time.Location
	now        func() time.Time
	maxBuckets int64
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*settings)

// WithDateParser sets the parser used when Query is called without one.
func WithDateParser(p DateParser) Option {
	return func(s *settings) {
		if p != nil {
			s.dates = p
		}
	}
}

// WithDateFormat sets the default point label layout. .NET patterns are
// translated (see Layout).
func WithDateFormat(layout string) Option {
	return func(s *settings) {
		if layout != "" {
			s.dateFormat = Layout(layout)
		}
	}
}

// WithLocation sets the zone in which labels and group names are rendered.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithClock replaces time.Now as the upper bound of "since" periods.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxBuckets limits how many buckets a single query may produce.
func WithMaxBuckets(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxBuckets = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logging.Default(l)
	}
}

// Engine evaluates queries over a fixed slice of records. It never mutates the
// slice and holds no per-query state, so Query may be called concurrently as
// long as the caller does not modify the records meanwhile.
type Engine[R Record] struct {
	records []R
	cfg     settings
}

// NewEngine binds an engine to records. Order of records does not matter.
func NewEngine[R Record](records []R, opts ...Option) *Engine[R] {
	cfg := settings{
		dates:      locale.Default,
		dateFormat: DefaultDateFormat,
		location:   time.UTC,
		now:        func() time.Time { return time.Now().UTC() },
		maxBuckets: DefaultMaxBuckets,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine[R]{
		records: records,
		cfg:     cfg,
	}
}

// Len returns the number of records the engine was built with.
func (e *Engine[R]) Len() int {
	return len(e.records)
}

// Location returns the zone labels and group names are rendered in.
func (e *Engine[R]) Location() *time.Location {
	return e.cfg.location
}

// Query compiles text and evaluates it. name is the collection name and the
// default path of series written with empty parentheses. dates may be nil, in
// which case the engine's parser is used. The parsed options are returned
// alongside the result for inspection.
func (e *Engine[R]) Query(text, name string, dates DateParser) (*DataCollection, Options, error) {
	stmt, err := Parse(text)
	if err != nil {
		return nil, nil, err
	}
	coll, err := e.Execute(stmt, name, dates)
	if err != nil {
		return nil, stmt.Options, err
	}
	return coll, stmt.Options, nil
}

// Execute evaluates an already compiled statement.
func (e *Engine[R]) Execute(stmt *Statement, name string, dates DateParser) (*DataCollection, error) {
	started := time.Now()
	if dates == nil {
		dates = e.cfg.dates
	}

	requested, err := resolveDates(stmt.Period, dates, e.cfg.now())
	if err != nil {
		return nil, err
	}

	bucket := stmt.Period.Bucket
	window, selected, err := clampWindow(e.records, requested, bucket)
	if err != nil {
		return nil, err
	}

	n, ok := window.Buckets(bucket)
	if !ok || n <= 0 {
		return nil, fmt.Errorf("%w: %s buckets from %s to %s overflow",
			ErrTooManyBuckets, aggregation.DurationLabel(bucket), window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
	}
	if n > e.cfg.maxBuckets {
		return nil, fmt.Errorf("%w: %d buckets of %s exceed limit %d",
			ErrTooManyBuckets, n, aggregation.DurationLabel(bucket), e.cfg.maxBuckets)
	}

	// Each selected record lands in exactly one bucket.
	buckets := make([][]int, n)
	for _, idx := range selected {
		b, _ := stepsBetween(window.Start, e.records[idx].Timestamp(), bucket)
		buckets[b] = append(buckets[b], idx)
	}

	layout := stmt.Options.DateFormat(e.cfg.dateFormat)
	coll := &DataCollection{
		Name:        name,
		Description: stmt.Describe(name),
	}

	for _, item := range stmt.Items {
		if item.Series == nil {
			continue
		}
		series, err := e.aggregate(item, name, window.Start, bucket, buckets, layout)
		if err != nil {
			return nil, err
		}
		coll.Series = append(coll.Series, series)
	}

	if group := stmt.Group(); group != nil {
		if err := e.groupLabels(coll, group, window); err != nil {
			return nil, err
		}
	}

	e.cfg.logger.Debug("[Query] Executed",
		"name", name,
		"records", len(selected),
		"buckets", n,
		"bucket_size", aggregation.DurationLabel(bucket),
		"series", len(coll.Series),
		"duration", time.Since(started))

	return coll, nil
}

func (e *Engine[R]) aggregate(item SeriesItem, name string, start time.Time, bucket time.Duration, buckets [][]int, layout string) (DataSeries, error) {
	spec := item.Series
	fn, ok := aggregation.Lookup(spec.Function)
	if !ok {
		return DataSeries{}, &QueryError{Pos: item.Pos, Message: fmt.Sprintf("unknown function %q", spec.Function), Err: ErrUnknownFunction}
	}

	path := spec.Path
	if path == "" {
		path = name
	}

	series := DataSeries{
		Name:   strings.TrimSpace(fn.DisplayName + " " + path),
		Points: make([]DataPoint, len(buckets)),
	}
	t := start
	for i, members := range buckets {
		acc := fn.New()
		for _, idx := range members {
			v := decimal.Zero
			if fn.Projects && path != "" {
				var err error
				v, err = ResolvePath(e.records[idx], path)
				if err != nil {
					return DataSeries{}, fmt.Errorf("series %q: %w", item.Text, err)
				}
			}
			acc.Add(v)
		}

		local := t.In(e.cfg.location)
		series.Points[i] = DataPoint{
			Value:     spec.Scale.Apply(acc.Result()).InexactFloat64(),
			Timestamp: local.UnixMilli(),
			Label:     local.Format(layout),
		}
		t = t.Add(bucket)
	}
	return series, nil
}

// groupLabels walks from midnight of the window start to the window end. It
// does not follow the bucket boundaries.
func (e *Engine[R]) groupLabels(coll *DataCollection, group *GroupSpec, window TimeWindow) error {
	start := aggregation.TruncateToDay(window.Start.In(e.cfg.location))
	steps, ok := TimeWindow{Start: start, End: window.End}.Buckets(group.Interval)
	if !ok || steps <= 0 {
		return fmt.Errorf("%w: group steps of %s from %s overflow",
			ErrTooManyBuckets, aggregation.DurationLabel(group.Interval), start.Format(time.RFC3339))
	}
	if steps > e.cfg.maxBuckets {
		return fmt.Errorf("%w: %d group steps of %s exceed limit %d",
			ErrTooManyBuckets, steps, aggregation.DurationLabel(group.Interval), e.cfg.maxBuckets)
	}
	for t := start; !t.After(window.End); t = t.Add(group.Interval) {
		coll.GroupNames = append(coll.GroupNames, t.Format(group.NameFormat))
		coll.GroupValues = append(coll.GroupValues, t.UnixMilli())
	}
	return nil
}
