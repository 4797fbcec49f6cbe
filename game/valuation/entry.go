package valuation

import "github.com/ftfvalues/tradecalc/game/item"

// Quantity bounds.
const (
	MinQuantity       = 1
	MaxQuantity       = 100
	MinFillerQuantity = 0
	MaxFillerQuantity = 10000
)

// Entry is one slot of a trade side. Catalog-backed entries carry a copy of
// the definition taken at insertion time; filler entries carry only a raw
// amount in Quantity.
type Entry struct {
	Name      string            `json:"name,omitempty"`
	BaseValue float64           `json:"base_value"`
	Rarity    item.Rarity       `json:"rarity,omitempty"`
	Stability item.StabilityTag `json:"stability,omitempty"`
	Modifier  Modifier          `json:"modifier,omitempty"`
	Quantity  int               `json:"quantity"`
	Filler    bool              `json:"filler,omitempty"`
}

// NewEntry snapshots def with quantity 1 and the given modifier.
func NewEntry(def item.Definition, m Modifier) Entry {
	return Entry{
		Name:      def.Name,
		BaseValue: def.Value,
		Rarity:    def.Rarity,
		Stability: def.StabilityTag(),
		Modifier:  m,
		Quantity:  MinQuantity,
	}
}

// NewFiller creates a filler entry holding amount, clamped to its bounds.
func NewFiller(amount int) Entry {
	e := Entry{Filler: true}
	e.Quantity = e.ClampQuantity(amount)
	return e
}

// QuantityBounds returns the inclusive quantity range of the entry kind.
func (e Entry) QuantityBounds() (lo, hi int) {
	if e.Filler {
		return MinFillerQuantity, MaxFillerQuantity
	}
	return MinQuantity, MaxQuantity
}

// ClampQuantity clamps q into the entry's bounds.
func (e Entry) ClampQuantity(q int) int {
	lo, hi := e.QuantityBounds()
	if q < lo {
		return lo
	}
	if q > hi {
		return hi
	}
	return q
}

// QuantityInBounds reports whether the committed quantity is acceptable.
func (e Entry) QuantityInBounds() bool {
	lo, hi := e.QuantityBounds()
	return e.Quantity >= lo && e.Quantity <= hi
}
