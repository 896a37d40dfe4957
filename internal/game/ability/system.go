// Package ability hosts a character's attribute set, applies gameplay effects to
// it and tracks the one-way death transition.
package ability

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/game/effect"
)

// Status is the liveness state of a character.
type Status int

const (
	Alive Status = iota
	Dead
)

// String returns a human-readable status label.
func (s Status) String() string {
	switch s {
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// System owns one character's attributes and death marker.
//
// Effects are applied synchronously in the caller's goroutine; the owning
// character serialises calls.
type System struct {
	name   string
	set    *attribute.Set
	logger *zap.Logger

	mu      sync.Mutex
	status  Status
	onDeath []func()
}

// New creates a System for the named character.
//
// Precondition: name should be non-empty. set may be nil, in which case every
// effect application is logged and dropped.
// Postcondition: Returns an Alive System.
func New(name string, set *attribute.Set, logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &System{name: name, set: set, logger: logger}
}

// Name returns the owning character's name.
func (s *System) Name() string { return s.name }

// Attributes returns the attribute set, which may be nil.
func (s *System) Attributes() *attribute.Set { return s.set }

// Status returns the current liveness state.
func (s *System) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsAlive reports whether the death marker is absent. It does not look at Health.
func (s *System) IsAlive() bool {
	return s.Status() == Alive
}

// ApplyDeath marks the character dead. Only the first call performs the
// transition and runs the death listeners.
//
// Postcondition: Status() == Dead. Returns true iff this call performed the transition.
func (s *System) ApplyDeath() bool {
	s.mu.Lock()
	if s.status == Dead {
		s.mu.Unlock()
		return false
	}
	s.status = Dead
	listeners := make([]func(), len(s.onDeath))
	copy(listeners, s.onDeath)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return true
}

// OnDeath registers fn to run once when the character dies.
func (s *System) OnDeath(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDeath = append(s.onDeath, fn)
}

// ApplyEffectToSelf applies spec to this System's own attributes.
func (s *System) ApplyEffectToSelf(spec effect.Spec, source string) {
	s.ApplyEffectToTarget(spec, s, source)
}

// ApplyEffectToTarget executes every modifier of spec once, in order, against
// target's attributes.
//
// Precondition: target must be non-nil.
// Postcondition: Each modifier has gone through PreChange, commit and PostExecute.
func (s *System) ApplyEffectToTarget(spec effect.Spec, target *System, source string) {
	if target == nil {
		s.logger.Error("effect applied to nil target",
			zap.String("source", source),
			zap.String("effect", spec.Name),
		)
		return
	}
	if target.set == nil {
		target.logger.Error("effect applied to character without attribute set",
			zap.String("target", target.name),
			zap.String("effect", spec.Name),
		)
		return
	}
	ctx := attribute.ExecContext{Source: source, Target: target}
	for _, m := range spec.Modifiers() {
		target.set.Execute(m.Mod(), ctx)
	}
	target.logger.Debug("effect applied",
		zap.String("target", target.name),
		zap.String("source", source),
		zap.String("effect", spec.Name),
		zap.Int("modifiers", spec.Len()),
	)
}
