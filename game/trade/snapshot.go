package trade

import (
	"errors"
	"fmt"
	"time"

	"github.com/ftfvalues/tradecalc/game/valuation"
)

// SnapshotVersion is the current persisted layout.
const SnapshotVersion = 1

// ErrMalformedSnapshot reports a stored snapshot that failed validation.
var ErrMalformedSnapshot = errors.New("trade: malformed snapshot")

// Snapshot is the serializable form of a session handed to persistence.
type Snapshot struct {
	Version  int                `json:"version"`
	ID       string             `json:"id"`
	Modifier valuation.Modifier `json:"modifier"`
	Unit     valuation.UnitMode `json:"unit"`
	Your     []valuation.Entry  `json:"your"`
	Their    []valuation.Entry  `json:"their"`
	SavedAt  time.Time          `json:"saved_at"`
}

// Snapshot captures committed quantities; in-progress edits are not saved.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		Version:  SnapshotVersion,
		ID:       s.ID,
		Modifier: s.modifier,
		Unit:     s.unit,
		Your:     s.your.entries(),
		Their:    s.their.entries(),
		SavedAt:  time.Now().UTC(),
	}
}

// ValidateSnapshot checks the snapshot against the current shape
// constraints: side capacity, quantity bounds and enum values.
func ValidateSnapshot(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil", ErrMalformedSnapshot)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: version %d", ErrMalformedSnapshot, snap.Version)
	}
	if !snap.Modifier.Valid() {
		return fmt.Errorf("%w: modifier %q", ErrMalformedSnapshot, snap.Modifier)
	}
	if snap.Unit != valuation.UnitStandard && snap.Unit != valuation.UnitCompressed {
		return fmt.Errorf("%w: unit %q", ErrMalformedSnapshot, snap.Unit)
	}
	for _, sd := range []struct {
		id      SideID
		entries []valuation.Entry
	}{{SideYour, snap.Your}, {SideTheir, snap.Their}} {
		if len(sd.entries) > MaxSlots {
			return fmt.Errorf("%w: %s side has %d entries", ErrMalformedSnapshot, sd.id, len(sd.entries))
		}
		for i, e := range sd.entries {
			if err := validateEntry(e); err != nil {
				return fmt.Errorf("%w: %s[%d]: %v", ErrMalformedSnapshot, sd.id, i, err)
			}
		}
	}
	return nil
}

func validateEntry(e valuation.Entry) error {
	if !e.QuantityInBounds() {
		return fmt.Errorf("quantity %d out of bounds", e.Quantity)
	}
	if e.Filler {
		return nil
	}
	if e.Name == "" {
		return errors.New("missing name")
	}
	if e.BaseValue < 0 {
		return errors.New("negative base value")
	}
	if !e.Modifier.Valid() {
		return fmt.Errorf("modifier %q", e.Modifier)
	}
	if e.Stability != "" && !e.Stability.Valid() {
		return fmt.Errorf("stability %q", e.Stability)
	}
	return nil
}

// Restore replaces the session contents with snap. A snapshot failing
// validation leaves both sides empty and returns ErrMalformedSnapshot.
func (s *Session) Restore(snap *Snapshot) (State, error) {
	err := ValidateSnapshot(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.your.clear()
	s.their.clear()
	s.lastUsed = time.Now()
	if err != nil {
		return s.stateLocked(), err
	}
	s.modifier = snap.Modifier
	s.unit = snap.Unit
	for _, e := range snap.Your {
		s.your.slots = append(s.your.slots, slot{entry: e})
	}
	for _, e := range snap.Their {
		s.their.slots = append(s.their.slots, slot{entry: e})
	}
	return s.stateLocked(), nil
}
