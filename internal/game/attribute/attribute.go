// Package attribute holds a character's numeric gameplay attributes and enforces
// the clamping, rescaling and damage-resolution rules applied on every mutation.
package attribute

import "fmt"

// ID identifies one attribute slot in a Set.
type ID int

const (
	CharacterLevel ID = iota
	Health
	MaxHealth
	HealthRegenRate
	Mana
	MaxMana
	ManaRegenRate
	// Damage is a meta attribute: it is written by damage effects and consumed
	// (turned into Health loss) within the same PostExecute call.
	Damage

	// Count is the number of attribute slots.
	Count
)

var names = [Count]string{
	CharacterLevel:  "CharacterLevel",
	Health:          "Health",
	MaxHealth:       "MaxHealth",
	HealthRegenRate: "HealthRegenRate",
	Mana:            "Mana",
	MaxMana:         "MaxMana",
	ManaRegenRate:   "ManaRegenRate",
	Damage:          "Damage",
}

// String returns the stable attribute name used in stat table keys.
func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("Attribute(%d)", int(id))
	}
	return names[id]
}

// Valid reports whether id names a real attribute slot.
func (id ID) Valid() bool {
	return id >= 0 && id < Count
}

// Parse resolves an attribute by its stable name.
//
// Postcondition: Returns the matching ID, or an error if name is unknown.
func Parse(name string) (ID, error) {
	for i, n := range names {
		if n == name {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown attribute %q", name)
}

// All returns every attribute ID in slot order.
func All() []ID {
	out := make([]ID, 0, Count)
	for id := ID(0); id < Count; id++ {
		out = append(out, id)
	}
	return out
}

// Replicated reports whether changes to id are published to observers.
// Damage is server-local and never replicated.
func Replicated(id ID) bool {
	return id.Valid() && id != Damage
}

// Op is the way a modifier magnitude combines with an attribute's current value.
type Op int

const (
	Additive Op = iota
	Multiplicative
	Division
	Override
)

// String returns a human-readable op label.
func (o Op) String() string {
	switch o {
	case Additive:
		return "additive"
	case Multiplicative:
		return "multiplicative"
	case Division:
		return "division"
	case Override:
		return "override"
	default:
		return "unknown"
	}
}

// Evaluate returns the value produced by applying magnitude to current.
// Division by zero leaves current unchanged.
func (o Op) Evaluate(current, magnitude float64) float64 {
	switch o {
	case Additive:
		return current + magnitude
	case Multiplicative:
		return current * magnitude
	case Division:
		if magnitude == 0 {
			return current
		}
		return current / magnitude
	case Override:
		return magnitude
	default:
		return current
	}
}
