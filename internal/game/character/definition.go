package character

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/datadrivengas/internal/game/ability"
	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/game/curve"
)

// Definition describes a character to spawn, loaded from YAML.
type Definition struct {
	// ID is an optional fixed UUID so persisted state survives restarts.
	ID string `yaml:"id"`
	// Name is the stats table lookup name.
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Level       int    `yaml:"level"`
	ScriptZone  string `yaml:"script_zone"`
}

// Validate checks that the definition satisfies basic invariants.
//
// Postcondition: Returns nil iff Name is non-empty, Level >= 1 and ID is empty or a UUID.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("character definition: name must not be empty")
	}
	if d.Level < 1 {
		return fmt.Errorf("character definition %q: level must be >= 1", d.Name)
	}
	if d.ID != "" {
		if _, err := uuid.Parse(d.ID); err != nil {
			return fmt.Errorf("character definition %q: id %q is not a UUID: %w", d.Name, d.ID, err)
		}
	}
	return nil
}

// LoadDefinitionFromBytes parses and validates one definition.
func LoadDefinitionFromBytes(data []byte) (*Definition, error) {
	def := Definition{Level: 1}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing character YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinitions reads every *.yaml file in dir.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all definitions or an error on the first failure.
func LoadDefinitions(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading character dir %q: %w", dir, err)
	}
	var defs []*Definition
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		def, err := LoadDefinitionFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Build spawns a Character from def: a fresh attribute set at def.Level, an
// ability system, and the level stats applied when authority is held.
//
// Precondition: def must be non-nil and valid.
// Postcondition: Returns a Character or a non-nil error.
func Build(def *Definition, stats curve.Lookup, authority bool, logger *zap.Logger) (*Character, error) {
	if def == nil {
		return nil, fmt.Errorf("character definition must not be nil")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	set := attribute.New(logger)
	set.Init(attribute.CharacterLevel, float64(def.Level))
	abilities := ability.New(def.Name, set, logger)

	opts := []Option{
		WithAuthority(authority),
		WithStatsTable(stats),
		WithLogger(logger),
	}
	if def.ID != "" {
		opts = append(opts, WithID(uuid.MustParse(def.ID)))
	}
	c := New(def.Name, abilities, opts...)
	if def.DisplayName != "" {
		c.DisplayName = def.DisplayName
	}
	c.ScriptZone = def.ScriptZone
	c.ApplyLevelAttributes()
	return c, nil
}
