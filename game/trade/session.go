package trade

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ftfvalues/tradecalc/game/item"
	"github.com/ftfvalues/tradecalc/game/valuation"
)

// ExceptionSource supplies the exception registry used when totals are
// recomputed. A nil registry applies the default rules.
type ExceptionSource interface {
	Exceptions() *item.ExceptionRegistry
}

type staticExceptions struct{ reg *item.ExceptionRegistry }

func (s staticExceptions) Exceptions() *item.ExceptionRegistry { return s.reg }

// StaticExceptions wraps a fixed registry as an ExceptionSource.
func StaticExceptions(reg *item.ExceptionRegistry) ExceptionSource {
	return staticExceptions{reg: reg}
}

// Session is one calculator: two sides plus the session-scoped modifier
// selector and unit mode. Every operation returns the recomputed State; on
// error the State reflects the unchanged session.
type Session struct {
	ID string

	mu       sync.Mutex
	your     side
	their    side
	modifier valuation.Modifier
	unit     valuation.UnitMode
	version  uint64
	lastUsed time.Time
	ex       ExceptionSource
}

// NewSession creates an empty session in standard unit mode.
func NewSession(id string, ex ExceptionSource) *Session {
	if ex == nil {
		ex = StaticExceptions(nil)
	}
	return &Session{
		ID:       id,
		unit:     valuation.UnitStandard,
		ex:       ex,
		lastUsed: time.Now(),
	}
}

func (s *Session) sideOf(id SideID) (*side, error) {
	switch id {
	case SideYour:
		return &s.your, nil
	case SideTheir:
		return &s.their, nil
	}
	return nil, ErrUnknownSide
}

// touch records a mutation. Callers hold s.mu.
func (s *Session) touch() {
	s.version++
	s.lastUsed = time.Now()
}

// AddEntry appends a catalog-backed entry with quantity 1 carrying modifier m.
func (s *Session) AddEntry(id SideID, def item.Definition, m valuation.Modifier) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, err := s.sideOf(id)
	if err != nil {
		return s.stateLocked(), err
	}
	if err := sd.append(valuation.NewEntry(def, m)); err != nil {
		return s.stateLocked(), err
	}
	s.touch()
	return s.stateLocked(), nil
}

// AddFiller appends a filler entry holding amount (clamped, usually 0).
func (s *Session) AddFiller(id SideID, amount int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, err := s.sideOf(id)
	if err != nil {
		return s.stateLocked(), err
	}
	if err := sd.append(valuation.NewFiller(amount)); err != nil {
		return s.stateLocked(), err
	}
	s.touch()
	return s.stateLocked(), nil
}

// RemoveEntry deletes the entry at index and compacts the side.
func (s *Session) RemoveEntry(id SideID, index int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, err := s.sideOf(id)
	if err != nil {
		return s.stateLocked(), err
	}
	if err := sd.removeAt(index); err != nil {
		return s.stateLocked(), err
	}
	s.touch()
	return s.stateLocked(), nil
}

// SetQuantity applies interactive input to the entry at index. Non-digits
// are stripped. Empty input leaves the committed quantity untouched until
// CommitQuantity; anything else is clamped to the entry's bounds and
// committed immediately.
func (s *Session) SetQuantity(id SideID, index int, raw string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, err := s.sideOf(id)
	if err != nil {
		return s.stateLocked(), err
	}
	sl, err := sd.at(index)
	if err != nil {
		return s.stateLocked(), err
	}
	digits := SanitizeQuantity(raw)
	sl.editing = true
	if digits == "" {
		sl.input = ""
		return s.stateLocked(), nil
	}
	q := sl.entry.ClampQuantity(parseDigits(digits))
	sl.input = strconv.Itoa(q)
	if q != sl.entry.Quantity {
		sl.entry.Quantity = q
		s.touch()
	}
	return s.stateLocked(), nil
}

// CommitQuantity ends an interactive edit. An empty edit keeps the last
// committed quantity.
func (s *Session) CommitQuantity(id SideID, index int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, err := s.sideOf(id)
	if err != nil {
		return s.stateLocked(), err
	}
	sl, err := sd.at(index)
	if err != nil {
		return s.stateLocked(), err
	}
	sl.editing = false
	sl.input = ""
	return s.stateLocked(), nil
}

// StepQuantity adds delta to the committed quantity and clamps it.
func (s *Session) StepQuantity(id SideID, index, delta int) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, err := s.sideOf(id)
	if err != nil {
		return s.stateLocked(), err
	}
	sl, err := sd.at(index)
	if err != nil {
		return s.stateLocked(), err
	}
	sl.editing = false
	sl.input = ""
	// bound delta first so the sum cannot overflow
	_, hi := sl.entry.QuantityBounds()
	delta = min(max(delta, -hi), hi)
	if q := sl.entry.ClampQuantity(sl.entry.Quantity + delta); q != sl.entry.Quantity {
		sl.entry.Quantity = q
		s.touch()
	}
	return s.stateLocked(), nil
}

// Clear empties one side.
func (s *Session) Clear(id SideID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sd, err := s.sideOf(id)
	if err != nil {
		return s.stateLocked(), err
	}
	sd.clear()
	s.touch()
	return s.stateLocked(), nil
}

// Reset empties both sides.
func (s *Session) Reset() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.your.clear()
	s.their.clear()
	s.touch()
	return s.stateLocked()
}

// SetModifier changes the selector that seeds new entries. Existing entries
// keep the modifier they were added with.
func (s *Session) SetModifier(m valuation.Modifier) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modifier != m {
		s.modifier = m
		s.touch()
	}
	return s.stateLocked()
}

// Modifier returns the current selector.
func (s *Session) Modifier() valuation.Modifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modifier
}

// SetUnitMode changes how totals are displayed.
func (s *Session) SetUnitMode(u valuation.UnitMode) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unit != u {
		s.unit = u
		s.touch()
	}
	return s.stateLocked()
}

// ToggleUnitMode flips between standard and compressed display.
func (s *Session) ToggleUnitMode() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unit = s.unit.Toggle()
	s.touch()
	return s.stateLocked()
}

// State returns the derived view without mutating.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Version increases on every mutation.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// LastUsed returns the time of the last mutation or restore.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SanitizeQuantity keeps only ASCII digits.
func SanitizeQuantity(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseDigits converts a digit string, saturating instead of overflowing.
func parseDigits(digits string) int {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return 0
	}
	if len(digits) > 9 {
		return 1_000_000_000
	}
	n, _ := strconv.Atoi(digits)
	return n
}
