package valuation

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var grouping = message.NewPrinter(language.English)

// Convert expresses a standard-unit amount in the given unit mode.
func Convert(amount float64, u UnitMode) float64 {
	if u == UnitCompressed {
		return amount / CompressedDivisor
	}
	return amount
}

// FormatForDisplay renders amount for the given unit mode. Filler aggregates
// are never converted and always use the standard rules.
func FormatForDisplay(amount float64, u UnitMode, isFillerAggregate bool) string {
	if isFillerAggregate || u != UnitCompressed {
		return formatStandard(amount)
	}
	return formatCompressed(Convert(amount, u))
}

// FormatTotal renders a side total whose catalog portion is unit-converted
// and whose filler portion is added as-is.
func FormatTotal(catalog, filler float64, u UnitMode) string {
	if u == UnitCompressed {
		return formatCompressed(Convert(catalog, u) + filler)
	}
	return formatStandard(catalog + filler)
}

func formatCompressed(n float64) string {
	s := toFixed(n, 3)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

func formatStandard(n float64) string {
	if n < 5 && n != math.Trunc(n) {
		return toFixed(n, 1)
	}
	return grouping.Sprintf("%d", int64(math.Floor(n+0.5)))
}

// toFixed rounds the exact binary value of n to digits places. Only an exact
// tie rounds away from zero, so 0.25 renders as "0.3" while 1.45 (stored as
// 1.4499...) renders as "1.4".
func toFixed(n float64, digits int) string {
	abs := math.Abs(n)
	s := strconv.FormatFloat(abs, 'f', digits, 64)
	if halfway(abs, digits) {
		scale := math.Pow10(digits)
		s = strconv.FormatFloat((math.Floor(abs*scale)+1)/scale, 'f', digits, 64)
	}
	if n < 0 {
		s = "-" + s
	}
	return s
}

// halfway reports whether abs*10^digits lies exactly between two integers.
func halfway(abs float64, digits int) bool {
	x := new(big.Float).SetPrec(256).SetFloat64(abs)
	x.Mul(x, new(big.Float).SetPrec(256).SetFloat64(math.Pow10(digits)))
	i, _ := x.Int(nil)
	x.Sub(x, new(big.Float).SetPrec(256).SetInt(i))
	return x.Cmp(big.NewFloat(0.5)) == 0
}
