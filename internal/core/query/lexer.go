package query

// TokenKind identifies the type of lexical token.
type TokenKind int

const (
	TokEOF    TokenKind = iota
	TokWord             // run of non-space, non-punctuation characters
	TokLParen           // (
	TokRParen           // )
	TokComma            // ,
	TokPipe             // |
	TokStar             // *
	TokSlash            // /
	TokEq               // =
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "EOF"
	case TokWord:
		return "WORD"
	case TokLParen:
		return "("
	case TokRParen:
		return ")"
	case TokComma:
		return ","
	case TokPipe:
		return "|"
	case TokStar:
		return "*"
	case TokSlash:
		return "/"
	case TokEq:
		return "="
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token. Pos and End delimit the token in the input
// so the parser can recover raw text spans (date literals, layouts, option values).
type Token struct {
	Kind TokenKind
	Lit  string
	Pos  int // byte offset of the first character
	End  int // byte offset just past the last character
}

// LexMode selects which characters are punctuation.
type LexMode int

const (
	// ModeSeries splits on ( ) , | * / = for the series list.
	ModeSeries LexMode = iota
	// ModePeriod splits only on , = | so dates such as 01/02/2026 and clock
	// times stay single words.
	ModePeriod
)

// Lexer tokenizes query text.
type Lexer struct {
	input string
	pos   int
	mode  LexMode
}

// NewLexer creates a lexer in series mode.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// SetMode switches the punctuation set for subsequent tokens.
func (l *Lexer) SetMode(m LexMode) {
	l.mode = m
}

// Input returns the text being tokenized.
func (l *Lexer) Input() string {
	return l.input
}

// Next returns the next token. The lexer never fails: any character that is
// not punctuation or whitespace is part of a word.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos, End: l.pos}
	}

	start := l.pos
	if kind, ok := l.punctuation(l.input[l.pos]); ok {
		l.pos++
		return Token{Kind: kind, Lit: l.input[start:l.pos], Pos: start, End: l.pos}
	}

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isSpace(ch) {
			break
		}
		if _, ok := l.punctuation(ch); ok {
			break
		}
		l.pos++
	}
	return Token{Kind: TokWord, Lit: l.input[start:l.pos], Pos: start, End: l.pos}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() Token {
	saved := l.pos
	tok := l.Next()
	l.pos = saved
	return tok
}

func (l *Lexer) punctuation(ch byte) (TokenKind, bool) {
	switch ch {
	case ',':
		return TokComma, true
	case '|':
		return TokPipe, true
	case '=':
		return TokEq, true
	}
	if l.mode == ModePeriod {
		return 0, false
	}
	switch ch {
	case '(':
		return TokLParen, true
	case ')':
		return TokRParen, true
	case '*':
		return TokStar, true
	case '/':
		return TokSlash, true
	}
	return 0, false
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
