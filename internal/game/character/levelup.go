package character

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/game/curve"
	"github.com/cory-johannsen/datadrivengas/internal/game/effect"
)

// LevelUpAttributes are the attributes whose values come from the stats table.
var LevelUpAttributes = []attribute.ID{
	attribute.MaxHealth,
	attribute.HealthRegenRate,
	attribute.MaxMana,
	attribute.ManaRegenRate,
}

// BuildLevelUpMods looks up "<characterName>.<attr>" in stats, evaluates the
// curve at level and appends an override modifier to spec.
//
// Precondition: spec and stats must be non-nil.
// Postcondition: Returns true iff a modifier was appended. A missing row is
// logged and leaves spec unchanged.
func BuildLevelUpMods(spec *effect.Spec, stats curve.Lookup, characterName string, level int, attr attribute.ID, logger *zap.Logger) bool {
	key := curve.RowKey(characterName, attr.String())
	c, ok := stats.Lookup(key)
	if !ok {
		if logger != nil {
			logger.Error("could not find level up stats, fill in the character's level up table",
				zap.String("character", characterName),
				zap.String("attribute", attr.String()),
				zap.String("row", key),
			)
		}
		return false
	}
	spec.Add(effect.Modifier{
		Attribute: attr,
		Magnitude: c.Evaluate(float64(level)),
		Op:        attribute.Override,
	})
	return true
}
