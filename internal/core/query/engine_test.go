package query

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aevon-lab/regraph/internal/core/locale"
	"github.com/stretchr/testify/require"
)

type reading struct {
	At   time.Time
	V    any
	Meta map[string]any
}

var readingFields = FieldTable[reading]{
	"v":    func(r reading) any { return r.V },
	"meta": func(r reading) any { return r.Meta },
}

func (r reading) Field(name string) (any, bool) { return readingFields.Lookup(r, name) }
func (r reading) Timestamp() time.Time          { return r.At }

var day0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day0.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func values(s DataSeries) []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

func scenarioRecords() []reading {
	return []reading{
		{At: at(0, 0), V: 10},
		{At: at(1, 0), V: 20},
		{At: at(2, 0), V: 30},
	}
}

func TestEngine_Scenario(t *testing.T) {
	engine := NewEngine(scenarioRecords(), fixedClock(at(24, 0)))

	coll, opts, err := engine.Query("sum(v) | 01:00:00 since 01.01.2026", "Readings", nil)
	require.NoError(t, err)
	require.Empty(t, opts)

	require.Equal(t, "Readings", coll.Name)
	require.Equal(t, "[sum(v)] of Readings", coll.Description)
	require.Len(t, coll.Series, 1)
	require.Equal(t, "Sum of v", coll.Series[0].Name)
	require.Equal(t, []float64{10, 20, 30}, values(coll.Series[0]))

	points := coll.Series[0].Points
	require.Equal(t, at(0, 0).UnixMilli(), points[0].Timestamp)
	require.Equal(t, at(2, 0).UnixMilli(), points[2].Timestamp)
	require.Equal(t, "01.01.26 00:00", points[0].Label)
	require.Equal(t, "01.01.26 02:00", points[2].Label)
	require.Empty(t, coll.GroupNames)
}

func TestEngine_WindowRoundsOutward(t *testing.T) {
	records := []reading{
		{At: at(0, 20), V: 1},
		{At: at(1, 40), V: 2},
	}
	engine := NewEngine(records, fixedClock(at(24, 0)))

	coll, _, err := engine.Query("count() | 1h since 01.01.2026", "", nil)
	require.NoError(t, err)

	// 00:00 up to the ceiling 02:00, inclusive.
	points := coll.Series[0].Points
	require.Len(t, points, 3)
	require.Equal(t, at(0, 0).UnixMilli(), points[0].Timestamp)
	require.Equal(t, at(2, 0).UnixMilli(), points[2].Timestamp)
	require.Equal(t, []float64{1, 1, 0}, values(coll.Series[0]))
	require.Equal(t, "Count of", coll.Series[0].Name)
}

func TestEngine_CountSumsToRecordsInWindow(t *testing.T) {
	var records []reading
	for i := 0; i < 60; i++ {
		records = append(records, reading{At: day0.Add(time.Duration(i) * (37*time.Minute + 13*time.Second)), V: i})
	}
	from := at(5, 0)
	to := at(34, 0)
	want := 0
	for _, r := range records {
		if !r.At.Before(from) && !r.At.After(to) {
			want++
		}
	}

	engine := NewEngine(records)
	for _, bucket := range []string{"00:07:00", "1h", "01:30:00", "1", "13m"} {
		t.Run(bucket, func(t *testing.T) {
			coll, _, err := engine.Query("count() | "+bucket+" from 01.01.2026 05:00 to 02.01.2026 10:00", "r", nil)
			require.NoError(t, err)

			total := 0.0
			for _, p := range coll.Series[0].Points {
				total += p.Value
			}
			require.Equal(t, float64(want), total)
		})
	}
}

func TestEngine_EmptyBucketsAreZero(t *testing.T) {
	records := []reading{
		{At: at(0, 0), V: -4},
		{At: at(5, 0), V: 8},
	}
	engine := NewEngine(records, fixedClock(at(24, 0)))

	coll, _, err := engine.Query("avg(v), max(v), min(v), distinct(v), sum(v) | 1h since 01.01.2026", "r", nil)
	require.NoError(t, err)
	require.Len(t, coll.Series, 5)

	require.Equal(t, []float64{-4, 0, 0, 0, 0, 8}, values(coll.Series[0]))
	require.Equal(t, []float64{-4, 0, 0, 0, 0, 8}, values(coll.Series[1]))
	require.Equal(t, []float64{-4, 0, 0, 0, 0, 8}, values(coll.Series[2]))
	require.Equal(t, []float64{1, 0, 0, 0, 0, 1}, values(coll.Series[3]))
	require.Equal(t, []float64{-4, 0, 0, 0, 0, 8}, values(coll.Series[4]))

	require.Equal(t, []string{"Average of v", "Maximum of v", "Minimum of v", "Count of different v", "Sum of v"},
		[]string{coll.Series[0].Name, coll.Series[1].Name, coll.Series[2].Name, coll.Series[3].Name, coll.Series[4].Name})
}

func TestEngine_ScalingIsLinear(t *testing.T) {
	records := []reading{
		{At: at(0, 0), V: "0.1"},
		{At: at(0, 30), V: 2.5},
		{At: at(1, 15), V: 7},
		{At: at(3, 0), V: 11},
	}
	engine := NewEngine(records, fixedClock(at(24, 0)))

	coll, _, err := engine.Query("sum(v), sum(v) * 2, sum(v) / 2, sum(v) * 0.5 | 1h since 01.01.2026", "r", nil)
	require.NoError(t, err)
	require.Len(t, coll.Series, 4)

	base := coll.Series[0].Points
	for i, p := range base {
		require.InDelta(t, p.Value*2, coll.Series[1].Points[i].Value, 1e-9)
		require.InDelta(t, p.Value/2, coll.Series[2].Points[i].Value, 1e-9)
		require.InDelta(t, coll.Series[2].Points[i].Value, coll.Series[3].Points[i].Value, 1e-9)
	}
	require.Equal(t, "[sum(v), sum(v) * 2, sum(v) / 2, sum(v) * 0.5] of r", coll.Description)
}

func TestEngine_SinceEqualsFromToNow(t *testing.T) {
	now := at(3, 0)
	records := append(scenarioRecords(), reading{At: at(4, 0), V: 1000})
	engine := NewEngine(records, fixedClock(now))

	since, _, err := engine.Query("sum(v), count() | 30m since 01.01.2026 00:00", "r", nil)
	require.NoError(t, err)
	fromTo, _, err := engine.Query("sum(v), count() | 30m from 01.01.2026 00:00 to 01.01.2026 03:00", "r", nil)
	require.NoError(t, err)

	require.Equal(t, fromTo.Series, since.Series)
	require.Equal(t, []float64{10, 0, 20, 0, 30}, values(since.Series[0]))
}

func TestEngine_GroupLength(t *testing.T) {
	records := []reading{
		{At: time.Date(2026, 1, 1, 5, 30, 0, 0, time.UTC), V: 1},
		{At: time.Date(2026, 1, 3, 10, 10, 0, 0, time.UTC), V: 1},
	}
	engine := NewEngine(records)

	tests := []struct {
		name      string
		group     string
		wantNames []string
	}{
		{"daily", "group(1, 02.01.)", []string{"01.01.", "02.01.", "03.01."}},
		{"half days", "group(12:00:00, 02 15h)", []string{"01 00h", "01 12h", "02 00h", "02 12h", "03 00h"}},
		{"dotnet pattern", "group(1, ddd dd.MM.)", []string{"Thu 01.01.", "Fri 02.01.", "Sat 03.01."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll, _, err := engine.Query(tt.group+", count() | 1h from 01.01.2026 to 04.01.2026", "r", nil)
			require.NoError(t, err)
			require.Equal(t, tt.wantNames, coll.GroupNames)
			require.Len(t, coll.GroupValues, len(tt.wantNames))
			require.Equal(t, day0.UnixMilli(), coll.GroupValues[0])

			// Group items never produce series.
			require.Len(t, coll.Series, 1)
			require.Equal(t, "Count of r", coll.Series[0].Name)
		})
	}
}

func TestEngine_DateFormatOption(t *testing.T) {
	engine := NewEngine(scenarioRecords(), fixedClock(at(24, 0)))

	coll, opts, err := engine.Query(`sum(v) | 1h since 01.01.2026 options dateformat=15\:04, title=x`, "r", nil)
	require.NoError(t, err)
	require.Equal(t, Options{"dateformat": `15\:04`, "title": "x"}, opts)
	require.Equal(t, "00:00", coll.Series[0].Points[0].Label)
	require.Equal(t, "02:00", coll.Series[0].Points[2].Label)

	coll, _, err = engine.Query(`sum(v) | 1h since 01.01.2026 options dateformat=dd.MM.yyyy HH\:mm`, "r", nil)
	require.NoError(t, err)
	require.Equal(t, "01.01.2026 00:00", coll.Series[0].Points[0].Label)

	dotnet := NewEngine(scenarioRecords(), fixedClock(at(24, 0)), WithDateFormat("HH:mm dd.MM."))
	coll, _, err = dotnet.Query("sum(v) | 1h since 01.01.2026", "r", nil)
	require.NoError(t, err)
	require.Equal(t, "01:00 01.01.", coll.Series[0].Points[1].Label)
}

func TestEngine_EmptyPathDefaultsToName(t *testing.T) {
	engine := NewEngine(scenarioRecords(), fixedClock(at(24, 0)))

	coll, _, err := engine.Query("sum() | 1d since 01.01.2026", "v", nil)
	require.NoError(t, err)
	require.Equal(t, "Sum of v", coll.Series[0].Name)
	// 00:00 up to the ceiling of 02:00, which is the next midnight.
	require.Equal(t, []float64{60, 0}, values(coll.Series[0]))

	// Without a name there is nothing to resolve and every value is zero.
	coll, _, err = engine.Query("sum(), count() | 1d since 01.01.2026", "", nil)
	require.NoError(t, err)
	require.Equal(t, "Sum of", coll.Series[0].Name)
	require.Equal(t, []float64{0, 0}, values(coll.Series[0]))
	require.Equal(t, []float64{3, 0}, values(coll.Series[1]))
}

func TestEngine_NestedPath(t *testing.T) {
	records := []reading{
		{At: at(0, 0), Meta: map[string]any{"load": map[string]any{"cpu": 0.5}}},
		{At: at(0, 10), Meta: map[string]any{"load": map[string]any{"cpu": 1.5}}},
	}
	engine := NewEngine(records, fixedClock(at(24, 0)))

	coll, _, err := engine.Query("avg(Meta.Load.CPU) | 1h since 01.01.2026", "r", nil)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 0}, values(coll.Series[0]))
	require.Equal(t, "Average of Meta.Load.CPU", coll.Series[0].Name)
}

func TestEngine_CallerDateParser(t *testing.T) {
	records := []reading{
		{At: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), V: 1},
		{At: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), V: 1},
	}
	engine := NewEngine(records)

	// en-US reads 01/02/2026 as January 2nd.
	coll, _, err := engine.Query("count() | 1d from 01/02/2026 to 01/03/2026", "r", locale.MustFor("en-US"))
	require.NoError(t, err)
	require.Equal(t, []float64{1}, values(coll.Series[0]))

	// de-CH reads the same literal as February 1st.
	coll, _, err = engine.Query("count() | 1d from 01.02.2026 to 02.02.2026", "r", nil)
	require.NoError(t, err)
	require.Equal(t, []float64{1}, values(coll.Series[0]))
}

func TestEngine_Location(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	engine := NewEngine(scenarioRecords(), fixedClock(at(24, 0)), WithLocation(zone))

	coll, _, err := engine.Query("sum(v) | 1h since 01.01.2026", "r", nil)
	require.NoError(t, err)
	require.Equal(t, "01.01.26 02:00", coll.Series[0].Points[0].Label)
	require.Equal(t, at(0, 0).UnixMilli(), coll.Series[0].Points[0].Timestamp)
}

func TestEngine_Errors(t *testing.T) {
	records := []reading{
		{At: at(0, 0), V: 10, Meta: map[string]any{"name": "a"}},
		{At: at(1, 0), V: "n/a"},
	}
	engine := NewEngine(records, fixedClock(at(24, 0)), WithMaxBuckets(10))

	tests := []struct {
		name  string
		query string
		want  error
	}{
		{"unknown function", "median(v) | 1h since 01.01.2026", ErrUnknownFunction},
		{"missing path", "sum(missing) | 1h since 01.01.2026", ErrFieldResolution},
		{"non numeric value", "sum(v) | 1h since 01.01.2026", ErrFieldResolution},
		{"non numeric nested value", "max(meta.name) | 1h from 01.01.2026 to 01.01.2026 00:30", ErrFieldResolution},
		{"empty window", "count() | 1h from 01.01.2025 to 31.12.2025", ErrEmptyWindow},
		{"window before data", "count() | 1h since 02.01.2026", ErrEmptyWindow},
		{"unparseable date", "count() | 1h since yesterday", ErrSyntax},
		{"unparseable end date", "count() | 1h from 01.01.2026 to later", ErrSyntax},
		{"too many buckets", "count() | 1m since 01.01.2026", ErrTooManyBuckets},
		{"too many group steps", "group(00:01:00, 15:04), count() | 1h since 01.01.2026", ErrTooManyBuckets},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll, _, err := engine.Query(tt.query, "r", nil)
			require.Nil(t, coll)
			require.ErrorIs(t, err, tt.want)
		})
	}

	// A failed query leaves the engine usable.
	coll, _, err := engine.Query("count() | 1h since 01.01.2026", "r", nil)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 1}, values(coll.Series[0]))
}

func TestEngine_CenturiesWide(t *testing.T) {
	first := time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC)
	middle := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []reading{{At: first, V: 1}, {At: middle, V: 2}, {At: last, V: 3}}

	t.Run("nanosecond buckets overflow", func(t *testing.T) {
		engine := NewEngine(records, WithMaxBuckets(1_000_000))
		require.NotPanics(t, func() {
			coll, _, err := engine.Query("count() | 1ns from 01.01.1700 to 01.01.2101", "r", nil)
			require.Nil(t, coll)
			require.ErrorIs(t, err, ErrTooManyBuckets)
		})
	})

	t.Run("daily buckets keep every day", func(t *testing.T) {
		engine := NewEngine(records, WithMaxBuckets(1_000_000))
		coll, _, err := engine.Query("count() | 1d from 01.01.1700 to 01.01.2101", "r", nil)
		require.NoError(t, err)

		points := coll.Series[0].Points
		days := (last.Unix() - first.Unix()) / 86400
		require.Len(t, points, int(days)+1)

		mid := (middle.Unix() - first.Unix()) / 86400
		require.Equal(t, middle.UnixMilli(), points[mid].Timestamp)
		require.Equal(t, 1.0, points[mid].Value)

		end := points[len(points)-1]
		require.Equal(t, last.UnixMilli(), end.Timestamp)
		require.Equal(t, "01.01.00 00:00", end.Label)
		require.Equal(t, 1.0, end.Value)

		var total float64
		for _, v := range values(coll.Series[0]) {
			total += v
		}
		require.Equal(t, 3.0, total)
	})

	t.Run("nanosecond group steps overflow", func(t *testing.T) {
		engine := NewEngine(records, WithMaxBuckets(1_000_000))
		require.NotPanics(t, func() {
			coll, _, err := engine.Query("group(1ns, 02.01.), count() | 1d from 01.01.1700 to 01.01.2101", "r", nil)
			require.Nil(t, coll)
			require.ErrorIs(t, err, ErrTooManyBuckets)
		})
	})
}

func TestEngine_ConcurrentQueries(t *testing.T) {
	engine := NewEngine(scenarioRecords(), fixedClock(at(24, 0)))

	var wg sync.WaitGroup
	errs := make([]error, 16)
	results := make([]*DataCollection, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = engine.Query("sum(v), count() | 1h since 01.01.2026", "r", nil)
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		require.Equal(t, []float64{10, 20, 30}, values(results[i].Series[0]))
	}
}

func TestEngine_LogsQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := NewEngine(scenarioRecords(), fixedClock(at(24, 0)), WithLogger(logger))

	_, _, err := engine.Query("sum(v) | 1h since 01.01.2026", "Readings", nil)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "[Query] Executed")
	require.Contains(t, buf.String(), "name=Readings")
	require.Contains(t, buf.String(), "buckets=3")
	require.Equal(t, 3, engine.Len())
}
