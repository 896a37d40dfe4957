// Package character ties a named character to its ability system, its level
// stat curves and the authority of the context it runs in.
package character

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/game/ability"
	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/game/curve"
	"github.com/cory-johannsen/datadrivengas/internal/game/effect"
)

// Character is one live character.
//
// All attribute mutation for a Character must happen inside Do, or from a
// single goroutine that owns the Character.
type Character struct {
	// ID uniquely identifies this runtime character.
	ID uuid.UUID
	// Name is the stat table lookup name, e.g. "Character1".
	Name string
	// DisplayName is shown to players; defaults to Name.
	DisplayName string
	// ScriptZone selects the Lua VM used for this character's damage hooks.
	ScriptZone string

	abilities *ability.System
	stats     curve.Lookup
	authority bool
	logger    *zap.Logger

	mu sync.Mutex
}

// Option configures a Character.
type Option func(*Character)

// WithAuthority marks the Character's execution context as authoritative.
// Level-driven mutation only runs on authoritative characters.
func WithAuthority(authority bool) Option {
	return func(c *Character) { c.authority = authority }
}

// WithStatsTable sets the per-level stat curves.
func WithStatsTable(stats curve.Lookup) Option {
	return func(c *Character) { c.stats = stats }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Character) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithID overrides the generated ID.
func WithID(id uuid.UUID) Option {
	return func(c *Character) { c.ID = id }
}

// New creates a Character around an existing ability system.
//
// Precondition: name should be non-empty. abilities may be nil; level-up then
// logs a configuration error and does nothing.
// Postcondition: Returns a Character with a fresh random ID unless WithID is given.
func New(name string, abilities *ability.System, opts ...Option) *Character {
	c := &Character{
		ID:          uuid.New(),
		Name:        name,
		DisplayName: name,
		abilities:   abilities,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Abilities returns the ability system, which may be nil.
func (c *Character) Abilities() *ability.System { return c.abilities }

// Attributes returns the attribute set, or nil when there is no ability system.
func (c *Character) Attributes() *attribute.Set {
	if c.abilities == nil {
		return nil
	}
	return c.abilities.Attributes()
}

// HasAuthority reports whether this Character may perform level-driven mutation.
func (c *Character) HasAuthority() bool { return c.authority }

// Do runs fn while holding the Character's mutation lock.
func (c *Character) Do(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// IsAlive reports whether the character has not been marked dead.
// A character without an ability system is treated as alive.
func (c *Character) IsAlive() bool {
	if c.abilities == nil {
		return true
	}
	return c.abilities.IsAlive()
}

// Snapshot returns the replicated attributes with the death marker set.
// Call it inside Do when other goroutines may mutate the Character.
//
// Postcondition: Returns false when there is no attribute set.
func (c *Character) Snapshot() (attribute.Snapshot, bool) {
	set := c.Attributes()
	if set == nil {
		return attribute.Snapshot{}, false
	}
	snap := set.Snapshot()
	snap.Dead = !c.IsAlive()
	return snap, true
}

// Restore writes snap back onto the attribute set and re-applies the death
// marker when snap.Dead is set. A dead Character stays dead whatever snap holds.
// Call it inside Do when other goroutines may mutate the Character.
func (c *Character) Restore(snap attribute.Snapshot) {
	if !c.hasHost("restore") {
		return
	}
	c.abilities.Attributes().Restore(snap)
	if snap.Dead {
		c.abilities.ApplyDeath()
	}
}

// CharacterLevel returns the current level, or 1 when there is no attribute set.
func (c *Character) CharacterLevel() int {
	set := c.Attributes()
	if set == nil {
		return 1
	}
	return int(set.CharacterLevel())
}

// SetLevel overrides CharacterLevel and re-applies the level stats.
// It is a no-op without authority.
//
// Precondition: level >= 1.
func (c *Character) SetLevel(level int) {
	if !c.authority {
		return
	}
	if level < 1 {
		c.logger.Error("tried to set a non-positive character level",
			zap.String("character", c.Name),
			zap.Int("level", level),
		)
		return
	}
	if !c.hasHost("set level") {
		return
	}
	spec := effect.NewInstant("set_level")
	spec.Add(effect.Modifier{Attribute: attribute.CharacterLevel, Magnitude: float64(level), Op: attribute.Override})
	c.abilities.ApplyEffectToSelf(spec, c.Name)
	c.ApplyLevelAttributes()
}

// LevelUp raises the level by one and re-applies the level stats.
func (c *Character) LevelUp() {
	c.SetLevel(c.CharacterLevel() + 1)
}

// ApplyLevelAttributes builds one instant effect holding an override modifier
// for every level-driven attribute and applies it to this character. Rows
// missing from the stats table are logged and skipped. Increase the level
// before calling this.
func (c *Character) ApplyLevelAttributes() {
	if !c.authority {
		return
	}
	if !c.hasHost("apply level attributes") {
		return
	}
	if c.stats == nil {
		c.logger.Error("missing level stats table",
			zap.String("character", c.Name),
		)
		return
	}

	level := c.CharacterLevel()
	spec := effect.NewInstant("level_up")
	for _, attr := range LevelUpAttributes {
		BuildLevelUpMods(&spec, c.stats, c.Name, level, attr, c.logger)
	}
	c.abilities.ApplyEffectToSelf(spec, c.Name)

	c.logger.Info("level stats applied",
		zap.String("character", c.Name),
		zap.Int("level", level),
		zap.Int("modifiers", spec.Len()),
	)
}

func (c *Character) hasHost(op string) bool {
	if c.abilities == nil {
		c.logger.Error("ability system is nil",
			zap.String("character", c.Name),
			zap.String("op", op),
		)
		return false
	}
	if c.abilities.Attributes() == nil {
		c.logger.Error("attribute set is nil",
			zap.String("character", c.Name),
			zap.String("op", op),
		)
		return false
	}
	return true
}
