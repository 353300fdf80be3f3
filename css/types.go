package css

import (
	"io"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// Token is a single lexical token together with its exact source text.
type Token struct {
	Type css.TokenType
	Raw  string
}

// IsTrivia returns true for tokens which carry no meaning for the grammar:
// whitespace, comments and the legacy HTML comment markers.
func (t Token) IsTrivia() bool {
	switch t.Type {
	case css.WhitespaceToken, css.CommentToken, css.CDOToken, css.CDCToken:
		return true
	}
	return false
}

// Comment returns the text of a comment token without delimiters and
// surrounding whitespace. For other tokens it returns false.
func (t Token) Comment() (string, bool) {
	if t.Type != css.CommentToken {
		return "", false
	}
	s := strings.TrimPrefix(t.Raw, "/*")
	s = strings.TrimSuffix(s, "*/")
	return strings.TrimSpace(s), true
}

// Tokens is a run of tokens.
type Tokens []Token

// String concatenates raw token text.
func (ts Tokens) String() string {
	var sb strings.Builder
	for _, t := range ts {
		sb.WriteString(t.Raw)
	}
	return sb.String()
}

// Declaration is a single "property: value" pair. Every byte of the source is
// kept in one of the fields, so writing them out in order reproduces the
// input.
type Declaration struct {
	Lead      Tokens // whitespace and comments before the property name
	Name      Token  // property name, ident or custom property token
	Sep       Tokens // everything after the name up to and including the colon
	Value     Tokens // value tokens, including surrounding whitespace and !important
	Semicolon *Token // terminating semicolon if present
}

// Property returns lowercased property name.
func (d *Declaration) Property() string {
	if d.Name.Type == css.CustomPropertyNameToken {
		// custom properties are case sensitive
		return d.Name.Raw
	}
	return strings.ToLower(d.Name.Raw)
}

// ValueText returns value text without surrounding whitespace.
func (d *Declaration) ValueText() string {
	return strings.TrimSpace(d.Value.String())
}

// Clone returns a deep copy of the declaration.
func (d *Declaration) Clone() *Declaration {
	nd := &Declaration{
		Lead:  append(Tokens(nil), d.Lead...),
		Name:  d.Name,
		Sep:   append(Tokens(nil), d.Sep...),
		Value: append(Tokens(nil), d.Value...),
	}
	if d.Semicolon != nil {
		semi := *d.Semicolon
		nd.Semicolon = &semi
	}
	return nd
}

// Rule is either a qualified rule (selector with a block) or an at-rule with
// a block, for example @media or @supports.
type Rule struct {
	Lead    Tokens // whitespace and comments before the prelude
	Prelude Tokens // selector or at-rule prelude, including at-keyword
	Open    Token  // opening brace
	Items   []Item // block content in source order
	Close   *Token // closing brace, nil when input ended inside the block
	// AtKeyword is lowercased at-rule name without "@", empty for qualified
	// rules.
	AtKeyword string
	Line      int // line number of the prelude start, 1 based
}

// IsAtRule returns true if the rule is an at-rule.
func (r *Rule) IsAtRule() bool {
	return r.AtKeyword != ""
}

// Selector returns the selector text of a qualified rule with surrounding
// whitespace removed. It returns empty string for at-rules.
func (r *Rule) Selector() string {
	if r.IsAtRule() {
		return ""
	}
	return strings.TrimSpace(r.Prelude.String())
}

// Item is a single entry of a block or of the stylesheet top level.
// Exactly one of Decl, Rule or Other is set.
type Item struct {
	Decl *Declaration
	Rule *Rule
	// Other holds tokens which are neither declaration nor rule: at-rules
	// without block (@import, @charset), trailing whitespace and comments,
	// stray tokens.
	Other Tokens
}

// Stylesheet is a lossless representation of CSS source.
type Stylesheet struct {
	Items    []Item   // top-level items in source order
	Warnings []string // problems found while parsing, never fatal
}

// WalkFunc is called for every declaration visited by Walk. Parents holds
// enclosing rules, outermost first.
type WalkFunc func(parents []*Rule, decl *Declaration)

// Walk visits all declarations of the stylesheet depth first in source order.
func (s *Stylesheet) Walk(fn WalkFunc) {
	walkItems(s.Items, nil, fn)
}

func walkItems(items []Item, parents []*Rule, fn WalkFunc) {
	for _, item := range items {
		switch {
		case item.Decl != nil:
			fn(parents, item.Decl)
		case item.Rule != nil:
			walkItems(item.Rule.Items, append(parents, item.Rule), fn)
		}
	}
}

// Rules returns all rules (qualified and at-rules) depth first in source
// order.
func (s *Stylesheet) Rules() []*Rule {
	var rules []*Rule
	var collect func(items []Item)
	collect = func(items []Item) {
		for _, item := range items {
			if item.Rule != nil {
				rules = append(rules, item.Rule)
				collect(item.Rule.Items)
			}
		}
	}
	collect(s.Items)
	return rules
}

// WriteTo writes the stylesheet to w, implementing io.WriterTo. Output is
// byte for byte identical to the parsed input unless the tree was modified.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	sw := &sheetWriter{w: w}
	sw.items(s.Items)
	return sw.n, sw.err
}

// String returns the CSS text of the stylesheet.
func (s *Stylesheet) String() string {
	var sb strings.Builder
	s.WriteTo(&sb) //nolint:errcheck
	return sb.String()
}

// sheetWriter keeps the first error and the running byte count so the tree
// walk does not have to check every write.
type sheetWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (sw *sheetWriter) write(s string) {
	if sw.err != nil || len(s) == 0 {
		return
	}
	n, err := io.WriteString(sw.w, s)
	sw.n += int64(n)
	sw.err = err
}

func (sw *sheetWriter) tokens(ts Tokens) {
	for _, t := range ts {
		sw.write(t.Raw)
	}
}

func (sw *sheetWriter) items(items []Item) {
	for _, item := range items {
		switch {
		case item.Decl != nil:
			d := item.Decl
			sw.tokens(d.Lead)
			sw.write(d.Name.Raw)
			sw.tokens(d.Sep)
			sw.tokens(d.Value)
			if d.Semicolon != nil {
				sw.write(d.Semicolon.Raw)
			}
		case item.Rule != nil:
			r := item.Rule
			sw.tokens(r.Lead)
			sw.tokens(r.Prelude)
			sw.write(r.Open.Raw)
			sw.items(r.Items)
			if r.Close != nil {
				sw.write(r.Close.Raw)
			}
		default:
			sw.tokens(item.Other)
		}
	}
}
