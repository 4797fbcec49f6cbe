package trade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ftfvalues/tradecalc/game/valuation"
)

// MaxSlots is the capacity of one trade side.
const MaxSlots = 27

var (
	ErrCapacityExceeded = errors.New("trade: side is full")
	ErrIndexOutOfRange  = errors.New("trade: slot index out of range")
	ErrUnknownSide      = errors.New("trade: unknown side")
)

// SideID names one of the two offers.
type SideID string

const (
	SideYour  SideID = "your"
	SideTheir SideID = "their"
)

// ParseSide accepts "your"/"yours" and "their"/"theirs".
func ParseSide(s string) (SideID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "your", "yours", "you":
		return SideYour, nil
	case "their", "theirs", "them":
		return SideTheir, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

// slot is an entry plus the in-progress quantity edit for it.
type slot struct {
	entry   valuation.Entry
	editing bool
	input   string // sanitized digits typed so far; may be empty
}

// side is an ordered, compacting sequence of at most MaxSlots slots.
type side struct {
	slots []slot
}

func (sd *side) full() bool { return len(sd.slots) >= MaxSlots }

func (sd *side) append(e valuation.Entry) error {
	if sd.full() {
		return ErrCapacityExceeded
	}
	sd.slots = append(sd.slots, slot{entry: e})
	return nil
}

func (sd *side) at(index int) (*slot, error) {
	if index < 0 || index >= len(sd.slots) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return &sd.slots[index], nil
}

// removeAt deletes the slot at index; later slots shift down by one.
func (sd *side) removeAt(index int) error {
	if _, err := sd.at(index); err != nil {
		return err
	}
	sd.slots = append(sd.slots[:index], sd.slots[index+1:]...)
	return nil
}

func (sd *side) clear() { sd.slots = nil }

func (sd *side) entries() []valuation.Entry {
	out := make([]valuation.Entry, len(sd.slots))
	for i, s := range sd.slots {
		out[i] = s.entry
	}
	return out
}
