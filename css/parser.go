package css

import (
	"errors"
	"fmt"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS text into a lossless Stylesheet.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet. It never fails: anything it cannot
// make sense of is kept verbatim and reported in Stylesheet.Warnings.
// The optional source parameter identifies what's being parsed (for debug logging).
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	sheet := &Stylesheet{
		Items:    make([]Item, 0),
		Warnings: make([]string, 0),
	}

	log := p.log
	if len(source) > 0 && source[0] != "" {
		log = log.With(zap.String("source", source[0]))
		log.Debug("Parsing CSS", zap.Int("bytes", len(data)))
	}

	st := &parseState{
		lexer: css.NewLexer(parse.NewInputBytes(data)),
		sheet: sheet,
		log:   log,
		line:  1,
	}
	sheet.Items, _ = st.block(0)

	if err := st.lexer.Err(); err != nil && !errors.Is(err, io.EOF) {
		log.Debug("CSS lexer error", zap.Error(err))
	}
	return sheet
}

type parseState struct {
	lexer *css.Lexer
	sheet *Stylesheet
	log   *zap.Logger
	line  int // line of the next token
}

// next returns the next token and the line it starts on, false at the end of input.
func (st *parseState) next() (Token, int, bool) {
	tt, data := st.lexer.Next()
	if tt == css.ErrorToken {
		return Token{}, st.line, false
	}
	t := Token{Type: tt, Raw: string(data)}
	line := st.line
	st.line += strings.Count(t.Raw, "\n")
	return t, line, true
}

func (st *parseState) warn(line int, format string, args ...any) {
	msg := fmt.Sprintf("line %d: ", line) + fmt.Sprintf(format, args...)
	st.sheet.Warnings = append(st.sheet.Warnings, msg)
	st.log.Debug("CSS parse warning", zap.String("warning", msg))
}

// block consumes items until the closing brace of the current block or the end
// of input. At the top level (depth 0) stray closing braces are kept as is.
func (st *parseState) block(depth int) ([]Item, *Token) {
	var (
		items     []Item
		buf       Tokens
		startLine int
		// closers expected for (, [, function( and { opened inside the
		// current statement
		nest []css.TokenType
	)

	flush := func(semi *Token) {
		if len(buf) > 0 || semi != nil {
			items = append(items, st.statement(buf, semi, startLine))
		}
		buf, nest = nil, nil
	}

	for {
		t, line, ok := st.next()
		if !ok {
			flush(nil)
			if depth > 0 {
				st.warn(st.line, "unclosed block at end of input")
			}
			return items, nil
		}
		if buf.allTrivia() {
			startLine = line
		}

		switch t.Type {
		case css.LeftParenthesisToken, css.FunctionToken:
			nest = append(nest, css.RightParenthesisToken)
		case css.LeftBracketToken:
			nest = append(nest, css.RightBracketToken)
		case css.RightParenthesisToken, css.RightBracketToken:
			if len(nest) > 0 && nest[len(nest)-1] == t.Type {
				nest = nest[:len(nest)-1]
			}
		case css.LeftBraceToken:
			if len(nest) == 0 {
				rule := st.rule(buf, t, startLine, depth)
				items = append(items, Item{Rule: rule})
				buf, nest = nil, nil
				continue
			}
			nest = append(nest, css.RightBraceToken)
		case css.RightBraceToken:
			if len(nest) > 0 && nest[len(nest)-1] == css.RightBraceToken {
				nest = nest[:len(nest)-1]
				break
			}
			if len(nest) > 0 {
				st.warn(line, "unbalanced parentheses or brackets before closing brace")
			}
			if depth == 0 {
				st.warn(line, "unexpected closing brace")
				buf = append(buf, t)
				flush(nil)
				continue
			}
			flush(nil)
			return items, &t
		case css.SemicolonToken:
			if len(nest) == 0 {
				flush(&t)
				continue
			}
		case css.BadStringToken:
			st.warn(line, "unterminated string")
		case css.BadURLToken:
			st.warn(line, "malformed url")
		}
		buf = append(buf, t)
	}
}

// rule builds a rule from the collected prelude and parses its block.
func (st *parseState) rule(prelude Tokens, open Token, line, depth int) *Rule {
	i := prelude.firstSignificant(0)
	r := &Rule{Open: open, Line: line}
	if i < 0 {
		// block without prelude "{...}", keep whatever trivia there was
		r.Lead = prelude
		st.warn(line, "block without selector")
	} else {
		r.Lead, r.Prelude = prelude[:i:i], prelude[i:]
		if r.Prelude[0].Type == css.AtKeywordToken {
			r.AtKeyword = strings.ToLower(strings.TrimPrefix(r.Prelude[0].Raw, "@"))
		}
	}
	r.Items, r.Close = st.block(depth + 1)
	return r
}

// statement classifies tokens collected up to a semicolon or the end of a
// block: "ident ws* : value" is a declaration, everything else is kept as is.
func (st *parseState) statement(buf Tokens, semi *Token, line int) Item {
	i := buf.firstSignificant(0)
	if i >= 0 && (buf[i].Type == css.IdentToken || buf[i].Type == css.CustomPropertyNameToken) {
		if j := buf.firstSignificant(i + 1); j >= 0 && buf[j].Type == css.ColonToken {
			return Item{Decl: &Declaration{
				Lead:      buf[:i:i],
				Name:      buf[i],
				Sep:       buf[i+1 : j+1 : j+1],
				Value:     buf[j+1:],
				Semicolon: semi,
			}}
		}
	}
	if i >= 0 && buf[i].Type != css.AtKeywordToken {
		st.log.Debug("Keeping unrecognized statement", zap.Int("line", line), zap.String("text", buf.String()))
	}
	if semi != nil {
		buf = append(buf, *semi)
	}
	return Item{Other: buf}
}

func (ts Tokens) firstSignificant(from int) int {
	for i := from; i < len(ts); i++ {
		if !ts[i].IsTrivia() {
			return i
		}
	}
	return -1
}

func (ts Tokens) allTrivia() bool {
	return ts.firstSignificant(0) < 0
}

// SplitDimension splits raw text of a dimension token into number and unit
// following CSS number grammar: [+-] digits [. digits] [(e|E) [+-] digits].
// If raw does not start with a number, number is empty and unit is raw.
func SplitDimension(raw string) (number, unit string) {
	i := 0
	if i < len(raw) && (raw[i] == '+' || raw[i] == '-') {
		i++
	}
	digits := func() int {
		start := i
		for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
			i++
		}
		return i - start
	}
	intDigits := digits()
	if i+1 < len(raw) && raw[i] == '.' && raw[i+1] >= '0' && raw[i+1] <= '9' {
		i++
		digits()
	} else if intDigits == 0 {
		return "", raw
	}
	if i < len(raw) && (raw[i] == 'e' || raw[i] == 'E') {
		mark := i
		i++
		if i < len(raw) && (raw[i] == '+' || raw[i] == '-') {
			i++
		}
		if digits() == 0 {
			// "e" belongs to the unit
			i = mark
		}
	}
	return raw[:i], raw[i:]
}
