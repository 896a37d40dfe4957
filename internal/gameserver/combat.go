package gameserver

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/game/ability"
	"github.com/cory-johannsen/datadrivengas/internal/game/character"
	"github.com/cory-johannsen/datadrivengas/internal/game/damage"
)

// ErrCharacterNotFound is returned when a roster lookup by ID fails.
var ErrCharacterNotFound = errors.New("character not found")

// Combat resolves damage between roster characters.
type Combat struct {
	roster  *Roster
	scripts damage.HookCaller
	logger  *zap.Logger
}

// NewCombat creates a Combat over roster. scripts may be nil.
//
// Precondition: roster must be non-nil.
func NewCombat(roster *Roster, scripts damage.HookCaller, logger *zap.Logger) *Combat {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Combat{roster: roster, scripts: scripts, logger: logger}
}

// Strike deals base damage from sourceID to targetID. The target's script
// zone selects the on_damage hook. uuid.Nil as sourceID means environmental
// damage.
//
// Postcondition: Returns the amount applied, ErrCharacterNotFound for an
// unknown ID, or an error when the target lacks authority.
func (c *Combat) Strike(sourceID, targetID uuid.UUID, base float64) (float64, error) {
	target, ok := c.roster.Get(targetID)
	if !ok {
		return 0, fmt.Errorf("target %s: %w", targetID, ErrCharacterNotFound)
	}
	if !target.HasAuthority() {
		return 0, fmt.Errorf("target %q has no authority to apply damage", target.Name)
	}
	var source *character.Character
	if sourceID != uuid.Nil {
		source, ok = c.roster.Get(sourceID)
		if !ok {
			return 0, fmt.Errorf("source %s: %w", sourceID, ErrCharacterNotFound)
		}
	}

	exec := damage.Execution{Scripts: c.scripts, Zone: target.ScriptZone, Logger: c.logger}
	var src *ability.System
	sourceName := damage.EnvironmentSource
	if source != nil {
		src = source.Abilities()
		sourceName = source.Name
	}
	tgt := target.Abilities()
	if tgt == nil {
		return 0, fmt.Errorf("target %q has no ability system", target.Name)
	}

	// The hook may read attributes through the roster, so it runs unlocked.
	var health float64
	target.Do(func() {
		if set := tgt.Attributes(); set != nil {
			health = set.Health()
		}
	})
	amount := exec.Adjust(sourceName, tgt.Name(), base, health)

	withBoth(source, target, func() {
		exec.Deliver(src, tgt, amount)
	})
	c.logger.Debug("strike resolved",
		zap.String("source", sourceName),
		zap.String("target", target.Name),
		zap.Float64("base", base),
		zap.Float64("amount", amount),
	)
	return amount, nil
}

// withBoth runs fn holding the locks of a and b in ID order. a may be nil or equal to b.
func withBoth(a, b *character.Character, fn func()) {
	if a == nil || a == b {
		b.Do(fn)
		return
	}
	first, second := a, b
	if b.ID.String() < a.ID.String() {
		first, second = b, a
	}
	first.Do(func() { second.Do(fn) })
}
