package pxtorem

import (
	"bytes"
	"math"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	pcss "pxtorem/css"
)

// DisableNextLine is the comment which turns conversion off for the
// declaration directly following it.
const DisableNextLine = "pxtorem-disable-next-line"

// Rewriter converts pixel lengths to rem. It is immutable and safe for
// concurrent use.
type Rewriter struct {
	opts      Options
	props     propMatcher
	blacklist []selectorMatcher
	exclude   []*regexp.Regexp
	roots     []rootRule
	parser    *pcss.Parser
	log       *zap.Logger
}

// Stats counts what happened during a rewrite.
type Stats struct {
	Declarations  int // declarations eligible for conversion
	Converted     int // length tokens replaced with rem
	BelowMinimum  int // length tokens kept because of MinPixelValue
	Unconvertible int // length tokens kept because number could not be used
	Skipped       int // declarations skipped by black list or disable comment
	Added         int // converted copies added when Replace is off
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Declarations += other.Declarations
	s.Converted += other.Converted
	s.BelowMinimum += other.BelowMinimum
	s.Unconvertible += other.Unconvertible
	s.Skipped += other.Skipped
	s.Added += other.Added
}

// New validates options and prepares rewriter. All configuration problems are
// reported here, rewriting itself never fails.
func New(opts Options, log *zap.Logger) (*Rewriter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.clone()

	if err := checkRootValue(opts.RootValue, "root value"); err != nil {
		return nil, err
	}
	if opts.UnitPrecision < 0 || opts.UnitPrecision > MaxUnitPrecision {
		return nil, optionsError("unit precision must be between 0 and %d, got %d", MaxUnitPrecision, opts.UnitPrecision)
	}
	if opts.MinPixelValue < 0 || math.IsNaN(opts.MinPixelValue) {
		return nil, optionsError("minimal pixel value must not be negative, got %v", opts.MinPixelValue)
	}

	r := &Rewriter{opts: opts, log: log.Named("pxtorem")}

	var err error
	if r.props, err = compilePropList(opts.PropList); err != nil {
		return nil, err
	}
	for _, s := range opts.SelectorBlackList {
		m, err := compileSelector(s)
		if err != nil {
			return nil, err
		}
		r.blacklist = append(r.blacklist, m)
	}
	for _, s := range opts.Exclude {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, optionsError("exclude pattern %q: %v", s, err)
		}
		r.exclude = append(r.exclude, re)
	}
	for _, rule := range opts.RootValueRules {
		re, err := regexp.Compile(rule.Match)
		if err != nil {
			return nil, optionsError("root value rule %q: %v", rule.Match, err)
		}
		if err := checkRootValue(rule.RootValue, "root value for "+rule.Match); err != nil {
			return nil, err
		}
		r.roots = append(r.roots, rootRule{re: re, value: rule.RootValue})
	}
	r.parser = pcss.NewParser(r.log)

	r.log.Debug("Rewriter prepared",
		zap.Float64("root_value", opts.RootValue),
		zap.Strings("prop_list", opts.PropList),
		zap.Int("unit_precision", opts.UnitPrecision),
		zap.Float64("min_pixel_value", opts.MinPixelValue),
		zap.Bool("replace", opts.Replace),
		zap.Bool("media_query", opts.MediaQuery))
	return r, nil
}

// Options returns a copy of effective options.
func (r *Rewriter) Options() Options {
	return r.opts.clone()
}

// ForSource returns rewriter to be used for the source at path. It returns
// false when path is excluded. When one of root value rules matches path the
// result uses its root value, otherwise r itself is returned.
func (r *Rewriter) ForSource(path string) (*Rewriter, bool) {
	path = filepath.ToSlash(path)
	for _, re := range r.exclude {
		if re.MatchString(path) {
			return nil, false
		}
	}
	for _, rule := range r.roots {
		if rule.re.MatchString(path) {
			if rule.value == r.opts.RootValue {
				return r, true
			}
			nr := *r
			nr.opts = r.opts.clone()
			nr.opts.RootValue = rule.value
			nr.log = r.log.With(zap.Float64("root_value", rule.value))
			return &nr, true
		}
	}
	return r, true
}

// Rewrite returns cssText with qualifying pixel lengths converted to rem.
func (r *Rewriter) Rewrite(cssText string) string {
	out, _ := r.RewriteString(cssText)
	return out
}

// RewriteString is Rewrite which also reports statistics.
func (r *Rewriter) RewriteString(cssText string) (string, Stats) {
	if !strings.Contains(cssText, pxUnit) {
		return cssText, Stats{}
	}
	sheet := r.parser.Parse([]byte(cssText))
	st := r.RewriteSheet(sheet)
	if st.Converted == 0 && st.Added == 0 {
		return cssText, st
	}
	return sheet.String(), st
}

// RewriteBytes is Rewrite for byte slices. Input is never modified, when
// nothing was converted the input slice is returned.
func (r *Rewriter) RewriteBytes(data []byte, source ...string) ([]byte, Stats) {
	if !bytes.Contains(data, []byte(pxUnit)) {
		return data, Stats{}
	}
	sheet := r.parser.Parse(data, source...)
	st := r.RewriteSheet(sheet)
	if st.Converted == 0 && st.Added == 0 {
		return data, st
	}
	return []byte(sheet.String()), st
}

// RewriteSheet converts parsed stylesheet in place.
func (r *Rewriter) RewriteSheet(sheet *pcss.Stylesheet) Stats {
	var st Stats
	sheet.Items = r.rewriteItems(sheet.Items, "", &st)
	return st
}

// rewriteItems processes a block. Selector is the selector of the rule owning
// the block, empty at the top level and inside at-rules.
func (r *Rewriter) rewriteItems(items []pcss.Item, selector string, st *Stats) []pcss.Item {
	blacklisted := r.blacklisted(selector)

	// out stays nil until the first converted copy has to be inserted
	var out []pcss.Item
	for i, item := range items {
		var extra *pcss.Declaration

		switch {
		case item.Rule != nil:
			rule := item.Rule
			if rule.AtKeyword == "media" && r.opts.MediaQuery {
				rule.Prelude, _ = r.rewriteTokens(rule.Prelude, st)
			}
			rule.Items = r.rewriteItems(rule.Items, rule.Selector(), st)

		case item.Decl != nil:
			extra = r.rewriteDeclaration(items, item.Decl, blacklisted, st)
		}

		if extra != nil && out == nil {
			out = append(make([]pcss.Item, 0, len(items)+1), items[:i]...)
		}
		if out != nil {
			out = append(out, item)
		}
		if extra != nil {
			out = append(out, pcss.Item{Decl: extra})
		}
	}
	if out == nil {
		return items
	}
	return out
}

// rewriteDeclaration converts declaration value. When Replace is off it leaves
// the declaration alone and returns converted copy to be inserted after it.
func (r *Rewriter) rewriteDeclaration(block []pcss.Item, decl *pcss.Declaration, blacklisted bool, st *Stats) *pcss.Declaration {
	if !r.props.match(decl.Property()) {
		return nil
	}
	if blacklisted || disabled(decl) {
		st.Skipped++
		return nil
	}
	st.Declarations++

	// converted tokens count only when they end up in the output
	var local Stats
	value, changed := r.rewriteTokens(decl.Value, &local)
	st.BelowMinimum += local.BelowMinimum
	st.Unconvertible += local.Unconvertible
	if !changed {
		return nil
	}
	if r.opts.Replace {
		decl.Value = value
		st.Converted += local.Converted
		return nil
	}
	if declarationExists(block, decl.Property(), strings.TrimSpace(value.String())) {
		return nil
	}
	st.Converted += local.Converted
	st.Added++
	return fallbackCopy(decl, value)
}

// rewriteTokens converts length tokens of a value or media query prelude.
// Tokens inside var() and url() are never touched, url() is a single token
// anyway.
func (r *Rewriter) rewriteTokens(tokens pcss.Tokens, st *Stats) (pcss.Tokens, bool) {
	var (
		out     pcss.Tokens
		depth   int // parentheses depth
		varSkip = -1
	)
	for i, t := range tokens {
		switch t.Type {
		case css.FunctionToken:
			if varSkip < 0 && strings.EqualFold(t.Raw, "var(") {
				varSkip = depth
			}
			depth++
		case css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
			if depth == varSkip {
				varSkip = -1
			}
		case css.DimensionToken:
			if varSkip >= 0 {
				break
			}
			raw, res := convertLength(t.Raw, r.opts.RootValue, r.opts.UnitPrecision, r.opts.MinPixelValue)
			switch res {
			case converted:
				if out == nil {
					out = make(pcss.Tokens, len(tokens))
					copy(out, tokens)
				}
				if raw == "0" {
					out[i] = pcss.Token{Type: css.NumberToken, Raw: raw}
				} else {
					out[i] = pcss.Token{Type: css.DimensionToken, Raw: raw}
				}
				st.Converted++
			case belowMinimum:
				st.BelowMinimum++
			case unconvertible:
				st.Unconvertible++
				r.log.Debug("Leaving unconvertible length as is", zap.String("token", t.Raw))
			}
		}
	}
	if out == nil {
		return tokens, false
	}
	return out, true
}

func (r *Rewriter) blacklisted(selector string) bool {
	if selector == "" {
		return false
	}
	for _, m := range r.blacklist {
		if m.match(selector) {
			return true
		}
	}
	return false
}

// disabled checks if the last comment before declaration asks to skip it.
func disabled(decl *pcss.Declaration) bool {
	for i := len(decl.Lead) - 1; i >= 0; i-- {
		if text, ok := decl.Lead[i].Comment(); ok {
			return text == DisableNextLine
		}
	}
	return false
}

// declarationExists checks if block already has property with given value.
func declarationExists(items []pcss.Item, prop, value string) bool {
	for _, item := range items {
		if item.Decl != nil && item.Decl.Property() == prop && item.Decl.ValueText() == value {
			return true
		}
	}
	return false
}

// fallbackCopy makes converted copy of declaration to be placed right after
// it. The original gets a semicolon if it had none, the copy inherits the
// original's line break and indentation.
func fallbackCopy(decl *pcss.Declaration, value pcss.Tokens) *pcss.Declaration {
	cp := decl.Clone()
	cp.Value = value
	cp.Lead = nil
	for i := len(decl.Lead) - 1; i >= 0; i-- {
		if decl.Lead[i].Type == css.WhitespaceToken {
			cp.Lead = pcss.Tokens{decl.Lead[i]}
			break
		}
	}
	if decl.Semicolon == nil {
		// "width: 10px }" becomes "width: 10px; width: 0.625rem }"
		n := len(decl.Value)
		for n > 0 && decl.Value[n-1].Type == css.WhitespaceToken {
			n--
		}
		decl.Value = decl.Value[:n:n]
		decl.Semicolon = &pcss.Token{Type: css.SemicolonToken, Raw: ";"}
	}
	return cp
}
