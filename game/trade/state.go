package trade

import (
	"strconv"

	"github.com/ftfvalues/tradecalc/game/item"
	"github.com/ftfvalues/tradecalc/game/valuation"
)

// Totals splits a side total into the unit-convertible catalog portion and
// the unit-invariant filler portion.
type Totals struct {
	Catalog float64 `json:"catalog"`
	Filler  float64 `json:"filler"`
}

// Combined is the raw sum used for comparison.
func (t Totals) Combined() float64 { return t.Catalog + t.Filler }

// EntryView is an entry with its derived values.
type EntryView struct {
	Index int `json:"index"`
	valuation.Entry
	UnitValue    float64 `json:"unit_value"`
	Contribution float64 `json:"contribution"`
	Display      string  `json:"display"`
	Badge        bool    `json:"badge"`
	Editing      bool    `json:"editing,omitempty"`
	Input        string  `json:"input"`
}

// SideState is the derived view of one side.
type SideState struct {
	Side     SideID      `json:"side"`
	Entries  []EntryView `json:"entries"`
	Free     int         `json:"free"`
	Totals   Totals      `json:"totals"`
	Combined float64     `json:"combined"`
	Display  string      `json:"display"`
}

// State is everything a renderer needs after an operation.
type State struct {
	ID         string             `json:"id"`
	Version    uint64             `json:"version"`
	Modifier   valuation.Modifier `json:"modifier"`
	Unit       valuation.UnitMode `json:"unit"`
	UnitLabel  string             `json:"unit_label"`
	Your       SideState          `json:"your"`
	Their      SideState          `json:"their"`
	Comparison Comparison         `json:"comparison"`
}

// Side returns the view of one side.
func (st State) Side(id SideID) SideState {
	if id == SideTheir {
		return st.Their
	}
	return st.Your
}

func (s *Session) stateLocked() State {
	reg := s.ex.Exceptions()
	your := summarize(SideYour, &s.your, reg, s.unit)
	their := summarize(SideTheir, &s.their, reg, s.unit)
	return State{
		ID:         s.ID,
		Version:    s.version,
		Modifier:   s.modifier,
		Unit:       s.unit,
		UnitLabel:  s.unit.Label(),
		Your:       your,
		Their:      their,
		Comparison: Compare(your.Totals, their.Totals, s.unit),
	}
}

func summarize(id SideID, sd *side, reg *item.ExceptionRegistry, u valuation.UnitMode) SideState {
	st := SideState{
		Side:    id,
		Entries: make([]EntryView, len(sd.slots)),
		Free:    MaxSlots - len(sd.slots),
	}
	for i, sl := range sd.slots {
		e := sl.entry
		contrib := valuation.Contribution(e, reg)
		v := EntryView{
			Index:        i,
			Entry:        e,
			UnitValue:    valuation.ValueOf(e, reg),
			Contribution: contrib,
			Display:      valuation.FormatForDisplay(contrib, u, e.Filler),
			Badge:        valuation.ShowModifierBadge(e, reg),
			Editing:      sl.editing,
			Input:        strconv.Itoa(e.Quantity),
		}
		if sl.editing {
			v.Input = sl.input
		}
		if e.Filler {
			st.Totals.Filler += contrib
		} else {
			st.Totals.Catalog += contrib
		}
		st.Entries[i] = v
	}
	st.Combined = st.Totals.Combined()
	st.Display = valuation.FormatTotal(st.Totals.Catalog, st.Totals.Filler, u)
	return st
}
