// Package locale resolves regional date conventions used to read literal dates
// in query text. A Locale is immutable; derive variants with In.
package locale

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// ErrUnparseableDate is returned when no layout of a locale accepts the input.
var ErrUnparseableDate = errors.New("unparseable date")

// ErrUnsupportedLocale is returned by For for tags with no matching convention.
var ErrUnsupportedLocale = errors.New("unsupported locale")

// isoLayouts are accepted by every locale, after the regional ones.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Go's non-padded day/month/hour verbs also accept two digits, so one layout
// covers "1.2.2026" and "01.02.2026". Four-digit years come first because
// "06" would otherwise consume half of "2026".
var (
	dottedDayMonth = []string{
		"2.1.2006 15:04:05", "2.1.2006 15:04", "2.1.2006",
		"2.1.06 15:04:05", "2.1.06 15:04", "2.1.06",
	}
	slashedDayMonth = []string{
		"2/1/2006 15:04:05", "2/1/2006 15:04", "2/1/2006",
		"2/1/06 15:04", "2/1/06",
	}
	slashedMonthDay = []string{
		"1/2/2006 15:04:05", "1/2/2006 15:04", "1/2/2006 3:04 PM", "1/2/2006",
		"1/2/06 15:04", "1/2/06",
	}
)

type convention struct {
	tag     language.Tag
	layouts []string
}

// conventions lists the supported regions. The first entry is the fallback
// preference of the matcher.
var conventions = []convention{
	{language.MustParse("de-CH"), dottedDayMonth},
	{language.MustParse("de-DE"), dottedDayMonth},
	{language.MustParse("de-AT"), dottedDayMonth},
	{language.MustParse("fr-CH"), dottedDayMonth},
	{language.MustParse("it-CH"), dottedDayMonth},
	{language.MustParse("en-GB"), slashedDayMonth},
	{language.MustParse("fr-FR"), slashedDayMonth},
	{language.MustParse("it-IT"), slashedDayMonth},
	{language.MustParse("en-US"), slashedMonthDay},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, len(conventions))
	for i, c := range conventions {
		tags[i] = c.tag
	}
	return language.NewMatcher(tags)
}()

// Default is the de-CH locale in UTC, used when a caller supplies none.
var Default = MustFor("de-CH")

// Locale parses literal dates with the conventions of one region.
type Locale struct {
	tag      language.Tag
	layouts  []string
	location *time.Location
}

// For returns the locale best matching a BCP 47 tag such as "de-CH" or "en".
// Dates are interpreted in UTC; use In to change that.
func For(tag string) (*Locale, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnsupportedLocale, tag, err)
	}
	_, idx, confidence := matcher.Match(t)
	if confidence == language.No {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedLocale, tag)
	}
	c := conventions[idx]

	layouts := make([]string, 0, len(c.layouts)+len(isoLayouts))
	layouts = append(layouts, c.layouts...)
	layouts = append(layouts, isoLayouts...)
	return &Locale{tag: c.tag, layouts: layouts, location: time.UTC}, nil
}

// MustFor is like For but panics on error. Intended for package-level defaults.
func MustFor(tag string) *Locale {
	l, err := For(tag)
	if err != nil {
		panic(err)
	}
	return l
}

// Supported returns the tags with a known date convention.
func Supported() []language.Tag {
	tags := make([]language.Tag, len(conventions))
	for i, c := range conventions {
		tags[i] = c.tag
	}
	return tags
}

// Tag returns the matched region tag.
func (l *Locale) Tag() language.Tag { return l.tag }

// Location returns the zone dates without an explicit offset are read in.
func (l *Locale) Location() *time.Location { return l.location }

// Layouts returns the accepted layouts in match order.
func (l *Locale) Layouts() []string {
	return append([]string(nil), l.layouts...)
}

// In returns a copy of l that reads dates in loc.
func (l *Locale) In(loc *time.Location) *Locale {
	if loc == nil {
		loc = time.UTC
	}
	cp := *l
	cp.location = loc
	return &cp
}

// ParseDate parses s with the first layout that accepts it.
func (l *Locale) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrUnparseableDate)
	}
	for _, layout := range l.layouts {
		if t, err := time.ParseInLocation(layout, s, l.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w %q for locale %s", ErrUnparseableDate, s, l.tag)
}

func (l *Locale) String() string { return l.tag.String() }
