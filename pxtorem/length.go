package pxtorem

import (
	"math"
	"strconv"
	"strings"

	"pxtorem/css"
)

const (
	pxUnit  = "px"
	remUnit = "rem"
)

// outcome of a single length token conversion.
type outcome int

const (
	notLength     outcome = iota // token is not a pixel length
	converted                    // replaced by rem value
	belowMinimum                 // magnitude below MinPixelValue, kept
	unconvertible                // malformed or out of range number, kept
)

// convertLength converts raw text of a dimension token. Only lowercase "px"
// is recognized, upper or mixed case units are left alone on purpose so
// authors have a way to opt out.
func convertLength(raw string, root float64, precision int, minPixels float64) (string, outcome) {
	number, unit := css.SplitDimension(raw)
	if unit != pxUnit || number == "" {
		return raw, notLength
	}

	v, err := strconv.ParseFloat(number, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return raw, unconvertible
	}
	if math.Abs(v) < minPixels {
		return raw, belowMinimum
	}

	rem := v / root
	if math.IsInf(rem, 0) || math.IsNaN(rem) {
		return raw, unconvertible
	}

	s := formatFixed(rem, precision)
	if s == "0" {
		// zero does not need a unit
		return s, converted
	}
	return s + remUnit, converted
}

// formatFixed rounds v half away from zero to at most precision decimal
// digits and returns it without trailing zeros. Rounding is done on the
// shortest decimal representation of v, so 1.005 rounds to 1.01 at
// precision 2 and not to 1 as binary arithmetic would.
func formatFixed(v float64, precision int) string {
	neg := v < 0
	digits := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)

	intPart, fracPart, _ := strings.Cut(digits, ".")
	if len(fracPart) > precision {
		roundUp := fracPart[precision] >= '5'
		fracPart = fracPart[:precision]
		if roundUp {
			intPart, fracPart = increment(intPart, fracPart)
		}
	}
	fracPart = strings.TrimRight(fracPart, "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if out == "0" {
		return out
	}
	if neg {
		out = "-" + out
	}
	return out
}

// increment adds one unit in the last place of intPart.fracPart.
func increment(intPart, fracPart string) (string, string) {
	b := []byte(intPart + fracPart)
	i := len(b) - 1
	for ; i >= 0; i-- {
		if b[i] < '9' {
			b[i]++
			break
		}
		b[i] = '0'
	}
	if i < 0 {
		b = append([]byte{'1'}, b...)
	}
	split := len(b) - len(fracPart)
	return string(b[:split]), string(b[split:])
}
