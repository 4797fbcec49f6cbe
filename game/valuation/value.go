package valuation

import "github.com/ftfvalues/tradecalc/game/item"

// Split ratios.
const (
	legendaryHammerShare = 0.7
	legendaryGemShare    = 0.3
	overrideGemShare     = 0.8
	overrideHammerShare  = 0.2
	defaultShare         = 0.5
)

// ValueOf returns the unit value of e under the registry's exceptions.
// Filler entries are valued at their raw amount.
func ValueOf(e Entry, reg *item.ExceptionRegistry) float64 {
	if e.Filler {
		return float64(e.Quantity)
	}
	base := e.BaseValue
	if reg.FullValue(e.Name) || e.Modifier == ModifierNone {
		return base
	}
	switch {
	case e.Rarity == item.RarityLegendary:
		if e.Modifier == ModifierHammer {
			return base * legendaryHammerShare
		}
		return base * legendaryGemShare
	case e.Rarity.Seasonal():
		if reg.SplitOverride(e.Name) {
			if e.Modifier == ModifierGem {
				return base * overrideGemShare
			}
			return base * overrideHammerShare
		}
		return base * defaultShare
	}
	return base
}

// Contribution is what e adds to its side's total. A filler's quantity is
// its value, not a multiplier.
func Contribution(e Entry, reg *item.ExceptionRegistry) float64 {
	if e.Filler {
		return float64(e.Quantity)
	}
	return ValueOf(e, reg) * float64(e.Quantity)
}

// ShowModifierBadge reports whether a slot should display its modifier.
func ShowModifierBadge(e Entry, reg *item.ExceptionRegistry) bool {
	if e.Filler || e.Modifier == ModifierNone || reg.FullValue(e.Name) {
		return false
	}
	return e.Rarity == item.RarityLegendary || e.Rarity.Seasonal()
}
