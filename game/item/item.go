package item

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Rarity is the closed classification that selects a valuation branch.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RaritySpecial   Rarity = "special"
)

// ParseRarity lower-cases s. Unknown values are kept verbatim (lower-cased)
// and are valued like RaritySpecial.
func ParseRarity(s string) Rarity {
	return Rarity(strings.ToLower(strings.TrimSpace(s)))
}

// Known reports whether r is one of the five dataset rarities.
func (r Rarity) Known() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary, RaritySpecial:
		return true
	}
	return false
}

// Seasonal reports whether r is epic, rare or common. These rarities share the
// 50/50 modifier split.
func (r Rarity) Seasonal() bool {
	return r == RarityEpic || r == RarityRare || r == RarityCommon
}

// Definition is one immutable catalog entry.
type Definition struct {
	Name      string  `json:"name"`
	Rarity    Rarity  `json:"rarity"`
	Value     float64 `json:"value"`
	Demand    string  `json:"demand,omitempty"`
	Stability string  `json:"stability,omitempty"`
	Rank      int     `json:"rank,omitempty"`
}

// Key is the case-insensitive lookup key of the definition.
func (d Definition) Key() string { return NameKey(d.Name) }

// StabilityTag maps the free-text stability descriptor to its tag.
func (d Definition) StabilityTag() StabilityTag { return ParseStability(d.Stability) }

// NameKey normalises an item name for lookups.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// rawDefinition mirrors the dataset row. Value and rank arrive either as JSON
// numbers or numeric strings depending on the scraper run.
type rawDefinition struct {
	Name      string          `json:"name"`
	Rarity    string          `json:"rarity"`
	Value     json.RawMessage `json:"value"`
	Demand    string          `json:"demand"`
	Stability string          `json:"stability"`
	Rank      json.RawMessage `json:"rank"`
}

// UnmarshalJSON accepts the dataset's lenient number encoding.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var raw rawDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := lenientNumber(raw.Value)
	if err != nil {
		return fmt.Errorf("item %q: value: %w", raw.Name, err)
	}
	if value < 0 {
		value = 0
	}
	rank, _ := lenientNumber(raw.Rank)
	*d = Definition{
		Name:      strings.TrimSpace(raw.Name),
		Rarity:    ParseRarity(raw.Rarity),
		Value:     value,
		Demand:    raw.Demand,
		Stability: raw.Stability,
		Rank:      int(rank),
	}
	return nil
}

func lenientNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
