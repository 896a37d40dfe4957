// Package curve provides per-level stat curves keyed by "<Character>.<Attribute>".
package curve

import (
	"fmt"
	"math"
	"sort"
)

// Interp selects how a curve is evaluated between keys.
type Interp string

const (
	// Linear interpolates between the two surrounding keys.
	Linear Interp = "linear"
	// Constant holds the value of the nearest key at or below the level.
	Constant Interp = "constant"
)

// Key is one (level, value) sample.
type Key struct {
	Level float64 `yaml:"level"`
	Value float64 `yaml:"value"`
}

// Curve maps a level to a stat value.
//
// Invariant: keys are sorted by Level with no duplicate levels.
type Curve struct {
	interp Interp
	keys   []Key
}

// New builds a Curve from keys. Keys are copied and sorted.
//
// Precondition: keys must be non-empty with distinct levels; interp must be
// Linear, Constant or empty (Linear).
// Postcondition: Returns a Curve or a non-nil error.
func New(interp Interp, keys []Key) (*Curve, error) {
	if interp == "" {
		interp = Linear
	}
	if interp != Linear && interp != Constant {
		return nil, fmt.Errorf("unknown interpolation %q", interp)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("curve must have at least one key")
	}
	sorted := make([]Key, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Level == sorted[i-1].Level {
			return nil, fmt.Errorf("duplicate key at level %v", sorted[i].Level)
		}
	}
	return &Curve{interp: interp, keys: sorted}, nil
}

// Keys returns a copy of the curve's keys in level order.
func (c *Curve) Keys() []Key {
	out := make([]Key, len(c.keys))
	copy(out, c.keys)
	return out
}

// Interp returns the curve's interpolation mode.
func (c *Curve) Interp() Interp { return c.interp }

// Evaluate returns the value at level. An exact key wins; levels outside the key
// range take the first or last key's value.
func (c *Curve) Evaluate(level float64) float64 {
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i].Level >= level })
	if i < len(c.keys) && c.keys[i].Level == level {
		return c.keys[i].Value
	}
	if i == 0 {
		return c.keys[0].Value
	}
	if i == len(c.keys) {
		return c.keys[len(c.keys)-1].Value
	}
	lo, hi := c.keys[i-1], c.keys[i]
	if c.interp == Constant {
		return lo.Value
	}
	t := (level - lo.Level) / (hi.Level - lo.Level)
	return lo.Value + t*(hi.Value-lo.Value)
}

// Lookup resolves a curve by row key.
type Lookup interface {
	Lookup(key string) (*Curve, bool)
}

// Table is an immutable set of named curves.
type Table struct {
	rows map[string]*Curve
}

// NewTable builds a Table from rows. The map is copied.
func NewTable(rows map[string]*Curve) *Table {
	t := &Table{rows: make(map[string]*Curve, len(rows))}
	for k, c := range rows {
		t.rows[k] = c
	}
	return t
}

// Lookup returns the curve for key, or (nil, false) if the row is absent.
func (t *Table) Lookup(key string) (*Curve, bool) {
	if t == nil {
		return nil, false
	}
	c, ok := t.rows[key]
	return c, ok
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// RowNames returns every row key in sorted order.
func (t *Table) RowNames() []string {
	out := make([]string, 0, len(t.rows))
	for k := range t.rows {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RowKey builds the table key for a character's attribute.
func RowKey(characterName, attributeName string) string {
	return characterName + "." + attributeName
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
