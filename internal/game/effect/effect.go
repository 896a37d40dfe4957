// Package effect describes gameplay effects as plain ordered modifier batches.
package effect

import "github.com/cory-johannsen/datadrivengas/internal/game/attribute"

// Duration is an effect's lifetime policy.
type Duration int

const (
	// Instant effects compute and apply their modifiers exactly once.
	Instant Duration = iota
)

// Modifier is one (attribute, magnitude, op) entry of an effect.
type Modifier struct {
	Attribute attribute.ID
	Magnitude float64
	Op        attribute.Op
}

// Mod converts m into an attribute mutation request.
func (m Modifier) Mod() attribute.Mod {
	return attribute.Mod{Attribute: m.Attribute, Op: m.Op, Magnitude: m.Magnitude}
}

// Spec is an ordered batch of modifiers applied together.
type Spec struct {
	Name      string
	Duration  Duration
	modifiers []Modifier
}

// NewInstant returns an empty instant Spec.
func NewInstant(name string) Spec {
	return Spec{Name: name, Duration: Instant}
}

// Add appends m to the batch.
func (s *Spec) Add(m Modifier) {
	s.modifiers = append(s.modifiers, m)
}

// Len returns the number of modifiers.
func (s Spec) Len() int { return len(s.modifiers) }

// Modifiers returns a copy of the modifiers in application order.
func (s Spec) Modifiers() []Modifier {
	out := make([]Modifier, len(s.modifiers))
	copy(out, s.modifiers)
	return out
}

// Damage returns an instant spec writing amount into the Damage meta attribute.
func Damage(name string, amount float64) Spec {
	s := NewInstant(name)
	s.Add(Modifier{Attribute: attribute.Damage, Magnitude: amount, Op: attribute.Additive})
	return s
}
