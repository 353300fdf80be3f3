// Package pxtorem rewrites pixel lengths in CSS into root-relative (rem) units.
//
// A Rewriter is built once from Options and is immutable afterwards, so it
// may be shared by any number of goroutines. Rewriting never fails: anything
// that cannot be converted is left exactly as it was.
package pxtorem

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

// MaxUnitPrecision is the largest supported number of decimal digits.
const MaxUnitPrecision = 15

// Options controls conversion. Start from DefaultOptions, zero value is not
// usable since RootValue must be positive.
type Options struct {
	// RootValue is the root element font size in pixels, every converted
	// length is divided by it.
	RootValue float64
	// PropList lists property name patterns eligible for conversion:
	// "*", "name", "prefix*", "*suffix", "*part*" and negated forms with
	// leading "!".
	PropList []string
	// UnitPrecision is the maximum number of decimal digits in the result.
	UnitPrecision int
	// MinPixelValue leaves lengths with smaller magnitude in pixels.
	MinPixelValue float64
	// SelectorBlackList holds selector substrings, or regular expressions in
	// "/expr/" form, of rules which are left untouched.
	SelectorBlackList []string
	// Replace rewrites declarations in place. When false converted copy is
	// added after the original declaration.
	Replace bool
	// MediaQuery enables conversion inside @media preludes.
	MediaQuery bool
	// Exclude holds regular expressions matched against source paths which
	// must not be processed at all.
	Exclude []string
	// RootValueRules select RootValue per source path, first match wins.
	RootValueRules []RootValueRule
}

// RootValueRule overrides root value for sources matching regular expression.
type RootValueRule struct {
	Match     string
	RootValue float64
}

// DefaultOptions returns conventional defaults of pixel to rem conversion.
func DefaultOptions() Options {
	return Options{
		RootValue:     16,
		PropList:      []string{"font", "font-size", "line-height", "letter-spacing", "word-spacing"},
		UnitPrecision: 5,
		MinPixelValue: 0,
		Replace:       true,
	}
}

// clone returns deep copy so the rewriter never shares slices with caller.
func (o Options) clone() Options {
	o.PropList = slices.Clone(o.PropList)
	o.SelectorBlackList = slices.Clone(o.SelectorBlackList)
	o.Exclude = slices.Clone(o.Exclude)
	o.RootValueRules = slices.Clone(o.RootValueRules)
	return o
}

// ErrInvalidOptions is wrapped by every configuration error returned by New.
var ErrInvalidOptions = errors.New("invalid pxtorem options")

func optionsError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}

func checkRootValue(v float64, what string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return optionsError("%s must be a positive number, got %v", what, v)
	}
	return nil
}

// selectorMatcher is a compiled selector black list entry.
type selectorMatcher struct {
	substr string
	re     *regexp.Regexp
}

func (m selectorMatcher) match(selector string) bool {
	if m.re != nil {
		return m.re.MatchString(selector)
	}
	return strings.Contains(selector, m.substr)
}

func compileSelector(s string) (selectorMatcher, error) {
	if len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return selectorMatcher{}, optionsError("selector black list entry %q: %v", s, err)
		}
		return selectorMatcher{re: re}, nil
	}
	if s == "" {
		return selectorMatcher{}, optionsError("selector black list entry must not be empty")
	}
	return selectorMatcher{substr: s}, nil
}

type rootRule struct {
	re    *regexp.Regexp
	value float64
}
