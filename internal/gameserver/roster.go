// Package gameserver hosts live characters and drives the periodic work
// around them: regeneration, change replication and snapshot persistence.
package gameserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/game/character"
	"github.com/cory-johannsen/datadrivengas/internal/game/curve"
)

// ErrDuplicateCharacter is returned by Roster.Add for an ID already present.
var ErrDuplicateCharacter = errors.New("character already in roster")

// Roster tracks every live character by ID.
// All methods are safe for concurrent use; each Character is still mutated
// only through Character.Do.
type Roster struct {
	mu    sync.RWMutex
	chars map[uuid.UUID]*character.Character
}

// NewRoster creates an empty Roster.
func NewRoster() *Roster {
	return &Roster{chars: make(map[uuid.UUID]*character.Character)}
}

// Add registers c.
//
// Precondition: c must be non-nil.
// Postcondition: Returns ErrDuplicateCharacter if c.ID is already registered.
func (r *Roster) Add(c *character.Character) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chars[c.ID]; ok {
		return fmt.Errorf("adding %q (%s): %w", c.Name, c.ID, ErrDuplicateCharacter)
	}
	r.chars[c.ID] = c
	return nil
}

// Get returns the character with id.
func (r *Roster) Get(id uuid.UUID) (*character.Character, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chars[id]
	return c, ok
}

// FindByName returns the first character, in All order, whose Name or
// DisplayName equals name.
func (r *Roster) FindByName(name string) (*character.Character, bool) {
	for _, c := range r.All() {
		if c.Name == name || c.DisplayName == name {
			return c, true
		}
	}
	return nil, false
}

// Remove unregisters id and reports whether it was present.
func (r *Roster) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.chars[id]
	delete(r.chars, id)
	return ok
}

// Len returns the number of registered characters.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chars)
}

// All returns a snapshot of the registered characters ordered by DisplayName, then ID.
func (r *Roster) All() []*character.Character {
	r.mu.RLock()
	out := make([]*character.Character, 0, len(r.chars))
	for _, c := range r.chars {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// AttributeValue reads attr of the character found by FindByName. It backs
// the engine.attribute Lua function.
func (r *Roster) AttributeValue(name, attr string) (float64, bool) {
	c, ok := r.FindByName(name)
	if !ok {
		return 0, false
	}
	id, err := attribute.Parse(attr)
	if err != nil {
		return 0, false
	}
	var v float64
	found := false
	c.Do(func() {
		if set := c.Attributes(); set != nil {
			v = set.Get(id)
			found = true
		}
	})
	return v, found
}

// Spawn builds a character for every definition and registers it in a new Roster.
//
// Precondition: defs must be valid definitions.
// Postcondition: Returns the populated Roster or the first build or add error.
func Spawn(defs []*character.Definition, stats curve.Lookup, authority bool, logger *zap.Logger) (*Roster, error) {
	r := NewRoster()
	for i, def := range defs {
		c, err := character.Build(def, stats, authority, logger)
		if err != nil {
			return nil, fmt.Errorf("spawning definition %d: %w", i, err)
		}
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}
