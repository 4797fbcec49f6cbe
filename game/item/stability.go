package item

import "strings"

// StabilityTag is the closed set of market stability markers shown on a slot.
type StabilityTag string

const (
	StabilityNone        StabilityTag = "none"
	StabilityDoingWell   StabilityTag = "doing-well"
	StabilityDropping    StabilityTag = "dropping"
	StabilityStruggling  StabilityTag = "struggling"
	StabilityFluctuating StabilityTag = "fluctuating"
	StabilityReceding    StabilityTag = "receding"
)

// Checked in order; the first substring match wins.
var stabilityMatchers = []struct {
	needle string
	tag    StabilityTag
}{
	{"doing well", StabilityDoingWell},
	{"dropping", StabilityDropping},
	{"struggling", StabilityStruggling},
	{"fluctuating", StabilityFluctuating},
	{"receding", StabilityReceding},
}

// ParseStability maps a free-text descriptor such as "Doing Well" or
// "Slightly Dropping" to its tag. Empty, "stable" and unrecognised text map
// to StabilityNone.
func ParseStability(descriptor string) StabilityTag {
	s := strings.ToLower(strings.TrimSpace(descriptor))
	if s == "" || s == "stable" {
		return StabilityNone
	}
	for _, m := range stabilityMatchers {
		if strings.Contains(s, m.needle) {
			return m.tag
		}
	}
	return StabilityNone
}

// Valid reports whether t belongs to the closed tag set.
func (t StabilityTag) Valid() bool {
	switch t {
	case StabilityNone, StabilityDoingWell, StabilityDropping,
		StabilityStruggling, StabilityFluctuating, StabilityReceding:
		return true
	}
	return false
}
