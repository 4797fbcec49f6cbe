package item

// RarityTotal aggregates the catalog value of one rarity bucket.
type RarityTotal struct {
	Rarity Rarity  `json:"rarity"`
	Count  int     `json:"count"`
	Value  float64 `json:"value"`
}

// Summary is the per-rarity breakdown of a whole catalog.
type Summary struct {
	Rarities  []RarityTotal `json:"rarities"`
	Seasonals RarityTotal   `json:"seasonals"`
	ItemCount int           `json:"item_count"`
	Total     float64       `json:"total"`
}

var summaryOrder = []Rarity{RarityLegendary, RarityEpic, RarityRare, RarityCommon}

// Summarize totals every definition by rarity. Rarities outside the four
// tradable buckets are counted as common.
func (c *Catalog) Summarize() Summary {
	buckets := make(map[Rarity]*RarityTotal, len(summaryOrder))
	s := Summary{Rarities: make([]RarityTotal, len(summaryOrder))}
	for i, r := range summaryOrder {
		s.Rarities[i].Rarity = r
		buckets[r] = &s.Rarities[i]
	}
	for _, d := range c.All() {
		b, ok := buckets[d.Rarity]
		if !ok {
			b = buckets[RarityCommon]
		}
		b.Count++
		b.Value += d.Value
		s.ItemCount++
		s.Total += d.Value
	}
	s.Seasonals = RarityTotal{Rarity: "seasonal"}
	for _, r := range []Rarity{RarityEpic, RarityRare, RarityCommon} {
		s.Seasonals.Count += buckets[r].Count
		s.Seasonals.Value += buckets[r].Value
	}
	return s
}
