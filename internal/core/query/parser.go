package query

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/regraph/internal/core/aggregation"
	"github.com/shopspring/decimal"
)

// Query grammar:
//
//	query        = series_list "|" period
//	series_list  = item ( "," item )*
//	item         = "group" "(" interval "," layout ")" [ text ]
//	             | FUNC "(" [ PATH ] ")" [ ( "*" | "/" ) NUMBER ]
//	period       = DURATION since_word DATE [ options ]
//	             | DURATION from_word DATE to_word DATE [ options ]
//	options      = options_word KEY "=" VALUE ( "," KEY "=" VALUE )*
//
// Keywords are whole words and case-insensitive.

const groupFunction = "group"

var (
	sinceWords  = []string{"since", "seit"}
	fromWords   = []string{"from", "von"}
	toWords     = []string{"to", "until", "bis", "-"}
	optionWords = []string{"options", "optionen"}
)

type parser struct {
	lex *Lexer
	cur Token
}

// Parse compiles query text into a Statement. It checks syntax and function
// names only; date literals are resolved when the statement is executed.
func Parse(text string) (*Statement, error) {
	p := &parser{lex: NewLexer(text)}
	p.advance()

	if p.cur.Kind == TokEOF {
		return nil, syntaxErrorf(0, "empty query")
	}

	items, err := p.parseSeriesList()
	if err != nil {
		return nil, err
	}

	if p.cur.Kind != TokPipe {
		return nil, syntaxErrorf(p.cur.Pos, "expected '|' between series list and period, got %s", describe(p.cur))
	}

	// Dates contain '/' and ':' so the period is lexed with fewer delimiters.
	// Switch before advancing so the first period token is already lexed that way.
	p.lex.SetMode(ModePeriod)
	p.advance()

	period, err := p.parsePeriod()
	if err != nil {
		return nil, err
	}

	opts, err := p.parseOptions()
	if err != nil {
		return nil, err
	}

	if p.cur.Kind != TokEOF {
		return nil, syntaxErrorf(p.cur.Pos, "unexpected %s", describe(p.cur))
	}

	return &Statement{Items: items, Period: period, Options: opts}, nil
}

func (p *parser) advance() {
	p.cur = p.lex.Next()
}

func (p *parser) text(from, to int) string {
	return strings.TrimSpace(p.lex.Input()[from:to])
}

// parseSeriesList parses: item ( "," item )*
func (p *parser) parseSeriesList() ([]SeriesItem, error) {
	var items []SeriesItem
	haveGroup := false
	for {
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		if item.Group != nil {
			if haveGroup {
				return nil, syntaxErrorf(item.Pos, "only one group() is allowed")
			}
			haveGroup = true
		}
		items = append(items, item)

		if p.cur.Kind != TokComma {
			return items, nil
		}
		p.advance()
	}
}

// parseItem parses one function application with its optional scale suffix.
func (p *parser) parseItem() (SeriesItem, error) {
	if p.cur.Kind != TokWord {
		return SeriesItem{}, syntaxErrorf(p.cur.Pos, "expected function name, got %s", describe(p.cur))
	}
	nameTok := p.cur
	name := strings.ToLower(nameTok.Lit)
	p.advance()

	if p.cur.Kind != TokLParen {
		return SeriesItem{}, syntaxErrorf(p.cur.Pos, "expected '(' after %q", nameTok.Lit)
	}
	open := p.cur
	p.advance()

	var args []Token
	for p.cur.Kind != TokRParen {
		switch p.cur.Kind {
		case TokEOF, TokPipe:
			return SeriesItem{}, syntaxErrorf(open.Pos, "unmatched '('")
		case TokLParen:
			return SeriesItem{}, syntaxErrorf(p.cur.Pos, "nested '(' is not allowed")
		}
		args = append(args, p.cur)
		p.advance()
	}
	closeTok := p.cur
	p.advance()

	if name == groupFunction {
		return p.parseGroup(nameTok, open, closeTok)
	}

	fn, ok := aggregation.Lookup(name)
	if !ok {
		return SeriesItem{}, &QueryError{
			Pos:     nameTok.Pos,
			Message: fmt.Sprintf("unknown function %q", nameTok.Lit),
			Err:     ErrUnknownFunction,
		}
	}

	var path string
	switch {
	case len(args) == 0:
	case len(args) == 1 && args[0].Kind == TokWord:
		path = args[0].Lit
	default:
		return SeriesItem{}, syntaxErrorf(open.End, "invalid path %q", p.text(open.End, closeTok.Pos))
	}

	scale := UnitScale()
	end := closeTok.End
	if p.cur.Kind == TokStar || p.cur.Kind == TokSlash {
		op := p.cur
		p.advance()
		if p.cur.Kind != TokWord {
			return SeriesItem{}, syntaxErrorf(p.cur.Pos, "expected scale factor after '%s'", op.Lit)
		}
		factor, err := decimal.NewFromString(p.cur.Lit)
		if err != nil {
			return SeriesItem{}, syntaxErrorf(p.cur.Pos, "invalid scale factor %q", p.cur.Lit)
		}
		if op.Kind == TokSlash {
			if factor.IsZero() {
				return SeriesItem{}, syntaxErrorf(p.cur.Pos, "scale divisor must not be zero")
			}
			scale = Scale{Num: one, Den: factor}
		} else {
			scale = Scale{Num: factor, Den: one}
		}
		end = p.cur.End
		p.advance()
	}

	if p.cur.Kind != TokComma && p.cur.Kind != TokPipe && p.cur.Kind != TokEOF {
		return SeriesItem{}, syntaxErrorf(p.cur.Pos, "unexpected %s after %q", describe(p.cur), p.text(nameTok.Pos, end))
	}

	return SeriesItem{
		Text:   p.text(nameTok.Pos, end),
		Pos:    nameTok.Pos,
		Series: &SeriesSpec{Function: fn.Name, Path: path, Scale: scale},
	}, nil
}

// parseGroup builds a group item from the raw "interval, layout" text. Anything
// between ')' and the next ',' or '|' is ignored.
func (p *parser) parseGroup(nameTok, open, closeTok Token) (SeriesItem, error) {
	raw := p.lex.Input()[open.End:closeTok.Pos]
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return SeriesItem{}, syntaxErrorf(open.End, "group expects (interval, name format)")
	}

	interval, err := aggregation.ParseDuration(raw[:comma])
	if err != nil {
		return SeriesItem{}, syntaxErrorf(open.End, "invalid group interval: %v", err)
	}
	layout := strings.TrimSpace(raw[comma+1:])
	if layout == "" {
		return SeriesItem{}, syntaxErrorf(open.End+comma+1, "group name format must not be empty")
	}

	for p.cur.Kind != TokComma && p.cur.Kind != TokPipe && p.cur.Kind != TokEOF {
		p.advance()
	}

	return SeriesItem{
		Text:  p.text(nameTok.Pos, closeTok.End),
		Pos:   nameTok.Pos,
		Group: &GroupSpec{Interval: interval, NameFormat: Layout(layout)},
	}, nil
}

// parsePeriod parses the bucket duration, the indicator and the raw date
// literals. It stops at the options word or end of input.
func (p *parser) parsePeriod() (Period, error) {
	if p.cur.Kind != TokWord {
		return Period{}, syntaxErrorf(p.cur.Pos, "expected bucket duration after '|', got %s", describe(p.cur))
	}
	bucket, err := aggregation.ParseDuration(p.cur.Lit)
	if err != nil {
		return Period{}, syntaxErrorf(p.cur.Pos, "invalid bucket duration: %v", err)
	}
	p.advance()

	if p.cur.Kind != TokWord {
		return Period{}, syntaxErrorf(p.cur.Pos, "expected since or from, got %s", describe(p.cur))
	}
	indicator := p.cur
	since := isKeyword(indicator, sinceWords)
	if !since && !isKeyword(indicator, fromWords) {
		return Period{}, syntaxErrorf(indicator.Pos, "expected one of %s, got %q",
			strings.Join(append(append([]string{}, sinceWords...), fromWords...), ", "), indicator.Lit)
	}
	p.advance()

	dateStart, dateEnd := p.cur.Pos, p.cur.Pos
	var split *Token
	for p.cur.Kind != TokEOF && !isKeyword(p.cur, optionWords) {
		if p.cur.Kind == TokPipe {
			return Period{}, syntaxErrorf(p.cur.Pos, "unexpected '|' in period")
		}
		if !since && split == nil && isKeyword(p.cur, toWords) {
			tok := p.cur
			split = &tok
		}
		dateEnd = p.cur.End
		p.advance()
	}

	period := Period{Bucket: bucket, Since: since}
	if since {
		period.From = p.text(dateStart, dateEnd)
		if period.From == "" {
			return Period{}, syntaxErrorf(dateStart, "missing date after %q", indicator.Lit)
		}
		return period, nil
	}

	if split == nil {
		return Period{}, syntaxErrorf(dateStart, "expected one of %s in range after %q", strings.Join(toWords, ", "), indicator.Lit)
	}
	period.From = p.text(dateStart, split.Pos)
	if period.From == "" {
		return Period{}, syntaxErrorf(dateStart, "missing start date before %q", split.Lit)
	}
	if split.End < dateEnd {
		period.To = p.text(split.End, dateEnd)
	}
	if period.To == "" {
		return Period{}, syntaxErrorf(split.End, "missing end date after %q", split.Lit)
	}
	return period, nil
}

// parseOptions parses an optional options clause. Values run to the next comma.
func (p *parser) parseOptions() (Options, error) {
	opts := Options{}
	if !isKeyword(p.cur, optionWords) {
		return opts, nil
	}
	optionsTok := p.cur
	p.advance()
	if p.cur.Kind == TokEOF {
		return nil, syntaxErrorf(optionsTok.End, "expected key=value after %q", optionsTok.Lit)
	}

	for {
		if p.cur.Kind != TokWord {
			return nil, syntaxErrorf(p.cur.Pos, "expected option name, got %s", describe(p.cur))
		}
		keyTok := p.cur
		p.advance()
		if p.cur.Kind != TokEq {
			return nil, syntaxErrorf(p.cur.Pos, "expected '=' after option %q", keyTok.Lit)
		}
		valueStart := p.cur.End
		valueEnd := valueStart
		p.advance()
		for p.cur.Kind != TokComma && p.cur.Kind != TokEOF {
			if p.cur.Kind == TokPipe {
				return nil, syntaxErrorf(p.cur.Pos, "unexpected '|' in options")
			}
			valueEnd = p.cur.End
			p.advance()
		}

		key := strings.ToLower(keyTok.Lit)
		if _, dup := opts[key]; dup {
			return nil, syntaxErrorf(keyTok.Pos, "duplicate option %q", key)
		}
		opts[key] = p.text(valueStart, valueEnd)

		if p.cur.Kind == TokEOF {
			return opts, nil
		}
		p.advance() // ","
	}
}

func isKeyword(tok Token, words []string) bool {
	if tok.Kind != TokWord {
		return false
	}
	for _, w := range words {
		if strings.EqualFold(tok.Lit, w) {
			return true
		}
	}
	return false
}

func describe(tok Token) string {
	switch tok.Kind {
	case TokEOF:
		return "end of query"
	case TokWord:
		return fmt.Sprintf("%q", tok.Lit)
	default:
		return fmt.Sprintf("'%s'", tok.Kind)
	}
}
