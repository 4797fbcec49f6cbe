package trade

import (
	"math"

	"github.com/ftfvalues/tradecalc/game/valuation"
)

// Outcome classifies a comparison from your point of view.
type Outcome string

const (
	OutcomeNoData Outcome = "no_data"
	OutcomeFair   Outcome = "fair"
	OutcomeWin    Outcome = "win"
	OutcomeLoss   Outcome = "loss"
)

// fairEpsilon absorbs float artifacts from the fractional modifier splits.
const fairEpsilon = 0.01

// Comparison is the win/fair/loss result of two side totals.
type Comparison struct {
	Outcome    Outcome `json:"outcome"`
	Difference float64 `json:"difference"` // their - your
	Magnitude  float64 `json:"magnitude"`
	Ratio      float64 `json:"ratio"` // your / (your + their)
	Display    string  `json:"display"`
}

// Compare classifies the trade. Classification and ratio use the combined
// raw sums; the displayed magnitude converts only the catalog portion of the
// difference to the unit mode.
func Compare(your, their Totals, u valuation.UnitMode) Comparison {
	y, t := your.Combined(), their.Combined()
	if y == 0 && t == 0 {
		return Comparison{Outcome: OutcomeNoData, Ratio: 0.5, Display: "--"}
	}
	diff := t - y
	c := Comparison{
		Difference: diff,
		Magnitude:  math.Abs(diff),
		Ratio:      y / (y + t),
	}
	switch {
	case math.Abs(diff) < fairEpsilon:
		c.Outcome = OutcomeFair
		c.Display = "Fair"
		return c
	case diff > 0:
		c.Outcome = OutcomeWin
	default:
		c.Outcome = OutcomeLoss
	}
	catalogDiff := their.Catalog - your.Catalog
	fillerDiff := their.Filler - your.Filler
	if valuation.Convert(catalogDiff, u)+fillerDiff < 0 {
		catalogDiff, fillerDiff = -catalogDiff, -fillerDiff
	}
	c.Display = valuation.FormatTotal(catalogDiff, fillerDiff, u)
	return c
}
