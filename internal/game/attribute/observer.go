package attribute

// Change describes one committed value change of a replicated attribute.
type Change struct {
	Attribute ID
	Old       float64
	New       float64
}

// Observer receives replicated attribute changes after the new value has landed.
type Observer interface {
	AttributeChanged(c Change)
}

// ObserverFunc adapts a plain function into an Observer.
type ObserverFunc func(c Change)

// AttributeChanged calls f(c).
func (f ObserverFunc) AttributeChanged(c Change) { f(c) }

// Snapshot is the replicated state of a Set.
type Snapshot struct {
	CharacterLevel  float64 `yaml:"character_level"`
	Health          float64 `yaml:"health"`
	MaxHealth       float64 `yaml:"max_health"`
	HealthRegenRate float64 `yaml:"health_regen_rate"`
	Mana            float64 `yaml:"mana"`
	MaxMana         float64 `yaml:"max_mana"`
	ManaRegenRate   float64 `yaml:"mana_regen_rate"`
	// Dead carries the owning host's death marker. Set.Snapshot leaves it
	// false and Set.Restore ignores it.
	Dead bool `yaml:"dead"`
}
