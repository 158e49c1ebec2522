package query

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParse_SeriesList(t *testing.T) {
	stmt, err := Parse("SUM(order.total), avg(v) * 2.5, max() / 4, group(1, 02.01.) | 01:00:00 since 01.01.2026")
	require.NoError(t, err)
	require.Len(t, stmt.Items, 4)

	series := stmt.Series()
	require.Len(t, series, 3)

	require.Equal(t, "sum", series[0].Function)
	require.Equal(t, "order.total", series[0].Path)
	require.True(t, series[0].Scale.Num.Equal(decimal.NewFromInt(1)))

	require.Equal(t, "avg", series[1].Function)
	require.True(t, series[1].Scale.Num.Equal(decimal.RequireFromString("2.5")))
	require.True(t, series[1].Scale.Den.Equal(decimal.NewFromInt(1)))

	require.Equal(t, "max", series[2].Function)
	require.Empty(t, series[2].Path)
	require.True(t, series[2].Scale.Den.Equal(decimal.NewFromInt(4)))

	group := stmt.Group()
	require.NotNil(t, group)
	require.Equal(t, 24*time.Hour, group.Interval)
	require.Equal(t, "02.01.", group.NameFormat)

	require.Equal(t, "[SUM(order.total), avg(v) * 2.5, max() / 4, group(1, 02.01.)] of Orders", stmt.Describe("Orders"))
}

func TestParse_GroupSkipsTrailingText(t *testing.T) {
	stmt, err := Parse("group(12:00:00, Jan 2) ignored words here, count() | 1 since 1.1.2026")
	require.NoError(t, err)
	require.Len(t, stmt.Items, 2)
	require.Equal(t, "group(12:00:00, Jan 2)", stmt.Items[0].Text)
	require.Equal(t, 12*time.Hour, stmt.Group().Interval)
	require.Equal(t, "Jan 2", stmt.Group().NameFormat)

	stmt, err = Parse("group(1d, dd.MM.yy), count() | 1 since 1.1.2026")
	require.NoError(t, err)
	require.Equal(t, "02.01.06", stmt.Group().NameFormat)
	require.Equal(t, "count", stmt.Items[1].Series.Function)
}

func TestParse_Period(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Period
	}{
		{
			name:  "since",
			query: "count() | 01:00:00 since 01.01.2026",
			want:  Period{Bucket: time.Hour, Since: true, From: "01.01.2026"},
		},
		{
			name:  "seit with time",
			query: "count() | 00:15:00 SEIT 01.01.2026 08:00",
			want:  Period{Bucket: 15 * time.Minute, Since: true, From: "01.01.2026 08:00"},
		},
		{
			name:  "from to",
			query: "count() | 1.00:00:00 from 01.01.2026 to 31.01.2026",
			want:  Period{Bucket: 24 * time.Hour, From: "01.01.2026", To: "31.01.2026"},
		},
		{
			name:  "von bis with times",
			query: "count() | 2h von 01.01.2026 06:00 bis 02.01.2026 18:00",
			want:  Period{Bucket: 2 * time.Hour, From: "01.01.2026 06:00", To: "02.01.2026 18:00"},
		},
		{
			name:  "dash separator and slashed dates",
			query: "count() | 7 from 01/02/2026 - 03/04/2026",
			want:  Period{Bucket: 7 * 24 * time.Hour, From: "01/02/2026", To: "03/04/2026"},
		},
		{
			name:  "until with iso dates",
			query: "count() | 30m from 2026-01-01 until 2026-01-02",
			want:  Period{Bucket: 30 * time.Minute, From: "2026-01-01", To: "2026-01-02"},
		},
		{
			name:  "only the first to-word splits",
			query: "count() | 1d from a to b to c",
			want:  Period{Bucket: 24 * time.Hour, From: "a", To: "b to c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.query)
			require.NoError(t, err)
			require.Equal(t, tt.want, stmt.Period)
		})
	}
}

func TestParse_Options(t *testing.T) {
	stmt, err := Parse(`sum(v) | 01:00:00 since 01.01.2026 options DateFormat = 15\:04 , Title=Hello World`)
	require.NoError(t, err)
	require.Equal(t, "01.01.2026", stmt.Period.From)
	require.Equal(t, Options{"dateformat": `15\:04`, "title": "Hello World"}, stmt.Options)
	require.Equal(t, "15:04", stmt.Options.DateFormat(DefaultDateFormat))

	v, ok := stmt.Options.Get("TITLE")
	require.True(t, ok)
	require.Equal(t, "Hello World", v)

	stmt, err = Parse("sum(v) | 1h from 1.1.2026 bis 2.1.2026 optionen a=1")
	require.NoError(t, err)
	require.Equal(t, "2.1.2026", stmt.Period.To)
	require.Equal(t, Options{"a": "1"}, stmt.Options)

	stmt, err = Parse("sum(v) | 1h since 1.1.2026")
	require.NoError(t, err)
	require.Empty(t, stmt.Options)
	require.Equal(t, DefaultDateFormat, stmt.Options.DateFormat(DefaultDateFormat))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  error
	}{
		{"empty", "   ", ErrSyntax},
		{"missing pipe", "sum(v) 01:00:00 since 01.01.2026", ErrSyntax},
		{"missing paren", "sum v | 1h since 1.1.2026", ErrSyntax},
		{"unclosed paren", "sum(v | 1h since 1.1.2026", ErrSyntax},
		{"nested paren", "sum((v)) | 1h since 1.1.2026", ErrSyntax},
		{"path with spaces", "sum(a b) | 1h since 1.1.2026", ErrSyntax},
		{"unknown function", "median(v) | 1h since 1.1.2026", ErrUnknownFunction},
		{"trailing text", "sum(v) extra | 1h since 1.1.2026", ErrSyntax},
		{"bad scale factor", "sum(v) * x | 1h since 1.1.2026", ErrSyntax},
		{"missing scale factor", "sum(v) * | 1h since 1.1.2026", ErrSyntax},
		{"divide by zero", "sum(v) / 0 | 1h since 1.1.2026", ErrSyntax},
		{"two groups", "group(1, x), group(1, y) | 1h since 1.1.2026", ErrSyntax},
		{"group without format", "group(1) | 1h since 1.1.2026", ErrSyntax},
		{"group with empty format", "group(1, ) | 1h since 1.1.2026", ErrSyntax},
		{"group bad interval", "group(soon, x) | 1h since 1.1.2026", ErrSyntax},
		{"bad bucket", "sum(v) | often since 1.1.2026", ErrSyntax},
		{"zero bucket", "sum(v) | 00:00:00 since 1.1.2026", ErrSyntax},
		{"missing period", "sum(v) |", ErrSyntax},
		{"missing indicator", "sum(v) | 1h", ErrSyntax},
		{"wrong indicator", "sum(v) | 1h after 1.1.2026", ErrSyntax},
		{"since without date", "sum(v) | 1h since", ErrSyntax},
		{"from without to", "sum(v) | 1h from 1.1.2026", ErrSyntax},
		{"from without start", "sum(v) | 1h from to 1.1.2026", ErrSyntax},
		{"from without end", "sum(v) | 1h from 1.1.2026 to", ErrSyntax},
		{"second pipe", "sum(v) | 1h since 1.1.2026 | x", ErrSyntax},
		{"options without entries", "sum(v) | 1h since 1.1.2026 options", ErrSyntax},
		{"option without equals", "sum(v) | 1h since 1.1.2026 options a", ErrSyntax},
		{"option without key", "sum(v) | 1h since 1.1.2026 options =b", ErrSyntax},
		{"duplicate option", "sum(v) | 1h since 1.1.2026 options a=1, A=2", ErrSyntax},
		{"trailing option comma", "sum(v) | 1h since 1.1.2026 options a=1,", ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.query)
			require.Nil(t, stmt)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.want)

			var qe *QueryError
			require.True(t, errors.As(err, &qe))
			require.GreaterOrEqual(t, qe.Pos, 0)
			require.LessOrEqual(t, qe.Pos, len(tt.query))
		})
	}
}

func TestParse_UnknownFunctionPosition(t *testing.T) {
	_, err := Parse("sum(v), median(v) | 1h since 1.1.2026")

	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	require.Equal(t, 8, qe.Pos)
	require.ErrorIs(t, err, ErrUnknownFunction)
	require.Contains(t, err.Error(), "median")
}
