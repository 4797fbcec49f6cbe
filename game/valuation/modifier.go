package valuation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownModifier = errors.New("valuation: unknown modifier")
	ErrUnknownUnitMode = errors.New("valuation: unknown unit mode")
)

// Modifier is the per-entry two-way split choice ("SHG").
type Modifier string

const (
	ModifierNone   Modifier = ""
	ModifierHammer Modifier = "h"
	ModifierGem    Modifier = "g"
)

// ParseModifier accepts "", "none", "h", "hammer", "g" and "gem".
func ParseModifier(s string) (Modifier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null":
		return ModifierNone, nil
	case "h", "hammer":
		return ModifierHammer, nil
	case "g", "gem":
		return ModifierGem, nil
	}
	return ModifierNone, fmt.Errorf("%w %q", ErrUnknownModifier, s)
}

// Valid reports whether m is one of the three states.
func (m Modifier) Valid() bool {
	return m == ModifierNone || m == ModifierHammer || m == ModifierGem
}

func (m Modifier) String() string {
	switch m {
	case ModifierHammer:
		return "hammer"
	case ModifierGem:
		return "gem"
	}
	return "none"
}

// UnitMode is the display convention for totals.
type UnitMode string

const (
	UnitStandard   UnitMode = "fv"
	UnitCompressed UnitMode = "hv"
)

// CompressedDivisor converts standard units into compressed ("large") units.
const CompressedDivisor = 40

// ParseUnitMode accepts "fv"/"standard" and "hv"/"compressed". Empty input
// selects the standard mode.
func ParseUnitMode(s string) (UnitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fv", "standard":
		return UnitStandard, nil
	case "hv", "compressed":
		return UnitCompressed, nil
	}
	return UnitStandard, fmt.Errorf("%w %q", ErrUnknownUnitMode, s)
}

// Toggle returns the other unit mode.
func (u UnitMode) Toggle() UnitMode {
	if u == UnitCompressed {
		return UnitStandard
	}
	return UnitCompressed
}

// Label is the short suffix shown next to totals.
func (u UnitMode) Label() string {
	if u == UnitCompressed {
		return "hv"
	}
	return "fv"
}
