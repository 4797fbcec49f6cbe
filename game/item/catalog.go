package item

import "strings"

// Catalog is an immutable, ordered collection of item definitions.
// A nil *Catalog behaves as an empty catalog.
type Catalog struct {
	items []Definition
	index map[string]int // NameKey → position in items
}

// NewCatalog builds a catalog preserving dataset order. Rows with an empty
// name are skipped; on duplicate names the first row wins.
func NewCatalog(defs []Definition) *Catalog {
	c := &Catalog{
		items: make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		key := d.Key()
		if key == "" {
			continue
		}
		if _, dup := c.index[key]; dup {
			continue
		}
		c.index[key] = len(c.items)
		c.items = append(c.items, d)
	}
	return c
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// All returns a copy of every definition in dataset order.
func (c *Catalog) All() []Definition {
	if c == nil {
		return []Definition{}
	}
	out := make([]Definition, len(c.items))
	copy(out, c.items)
	return out
}

// Lookup finds a definition by name, case-insensitively.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	i, ok := c.index[NameKey(name)]
	if !ok {
		return Definition{}, false
	}
	return c.items[i], true
}

// Filter returns the definitions matching rarity ("" or "all" for any) whose
// name contains query case-insensitively.
func (c *Catalog) Filter(rarity, query string) []Definition {
	out := []Definition{}
	if c == nil {
		return out
	}
	r := ParseRarity(rarity)
	q := strings.ToLower(strings.TrimSpace(query))
	for _, d := range c.items {
		if r != "" && r != "all" && d.Rarity != r {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(d.Name), q) {
			continue
		}
		out = append(out, d)
	}
	return out
}
