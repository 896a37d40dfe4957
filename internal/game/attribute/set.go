package attribute

import (
	"math"
	"sync"

	"go.uber.org/zap"
)

// maxChangeTolerance is the absolute tolerance under which two maximum values are
// treated as equal, so floating-point noise never triggers a rescale.
const maxChangeTolerance = 1e-8

// Target is the character a PostExecute call resolves damage against.
type Target interface {
	// Name identifies the target in log output.
	Name() string
	// IsAlive reports whether the death marker is absent.
	IsAlive() bool
	// ApplyDeath sets the death marker. Returns true only for the call that
	// performed the transition.
	ApplyDeath() bool
}

// ExecContext carries the participants of one effect execution.
type ExecContext struct {
	// Source names the instigator, for logging only.
	Source string
	// Target owns the Set being mutated. A nil Target turns damage resolution
	// into a no-op.
	Target Target
}

// Mod is a single attribute mutation request.
type Mod struct {
	Attribute ID
	Op        Op
	Magnitude float64
}

// Set owns one character's attribute values.
//
// A Set is not safe for concurrent mutation; the owning character serialises
// access. Subscribe may be called from any goroutine.
type Set struct {
	values [Count]float64
	logger *zap.Logger

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// New creates a Set with CharacterLevel = 1 and every other attribute at 0.
//
// Postcondition: Returns a non-nil Set. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Set{
		logger:    logger,
		observers: make(map[int]Observer),
	}
	s.values[CharacterLevel] = 1
	return s
}

// Get returns the current value of id, or 0 for an invalid id.
func (s *Set) Get(id ID) float64 {
	if !id.Valid() {
		return 0
	}
	return s.values[id]
}

// CharacterLevel returns the current character level value.
func (s *Set) CharacterLevel() float64 { return s.values[CharacterLevel] }

// Health returns the current health.
func (s *Set) Health() float64 { return s.values[Health] }

// MaxHealth returns the current maximum health.
func (s *Set) MaxHealth() float64 { return s.values[MaxHealth] }

// HealthRegenRate returns health regenerated per second.
func (s *Set) HealthRegenRate() float64 { return s.values[HealthRegenRate] }

// Mana returns the current mana.
func (s *Set) Mana() float64 { return s.values[Mana] }

// MaxMana returns the current maximum mana.
func (s *Set) MaxMana() float64 { return s.values[MaxMana] }

// ManaRegenRate returns mana regenerated per second.
func (s *Set) ManaRegenRate() float64 { return s.values[ManaRegenRate] }

// Damage returns the pending damage accumulator. Outside a resolution step it is 0.
func (s *Set) Damage() float64 { return s.values[Damage] }

// Init sets id to value without running PreChange or PostExecute.
// Observers are still notified when the value changes.
//
// Precondition: id must be valid.
func (s *Set) Init(id ID, value float64) {
	if !id.Valid() {
		return
	}
	s.commit(id, value)
}

// Snapshot returns the replicated values.
func (s *Set) Snapshot() Snapshot {
	return Snapshot{
		CharacterLevel:  s.values[CharacterLevel],
		Health:          s.values[Health],
		MaxHealth:       s.values[MaxHealth],
		HealthRegenRate: s.values[HealthRegenRate],
		Mana:            s.values[Mana],
		MaxMana:         s.values[MaxMana],
		ManaRegenRate:   s.values[ManaRegenRate],
	}
}

// Restore initialises every replicated attribute from snap. Maxima are written
// before their paired current values so observers never see current > max.
//
// Postcondition: CharacterLevel is a whole number >= 1; a stored level that is
// not is rounded and raised to 1, and logged.
func (s *Set) Restore(snap Snapshot) {
	level := restoredLevel(snap.CharacterLevel)
	if level != snap.CharacterLevel {
		s.logger.Warn("restored character level adjusted",
			zap.Float64("stored", snap.CharacterLevel),
			zap.Float64("level", level),
		)
	}
	s.Init(CharacterLevel, level)
	s.Init(MaxHealth, snap.MaxHealth)
	s.Init(Health, clamp(snap.Health, snap.MaxHealth))
	s.Init(HealthRegenRate, snap.HealthRegenRate)
	s.Init(MaxMana, snap.MaxMana)
	s.Init(Mana, clamp(snap.Mana, snap.MaxMana))
	s.Init(ManaRegenRate, snap.ManaRegenRate)
}

// Subscribe registers o for replicated attribute changes.
//
// Postcondition: Returns a function that removes o; calling it twice is a no-op.
func (s *Set) Subscribe(o Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = o
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

// Execute applies m as one full mutation: the new value is computed from the
// current value, passed through PreChange, committed, and then PostExecute runs.
//
// Precondition: m.Attribute must be valid.
// Postcondition: PreChange (including any paired cascade) completes before the
// value is committed, and PostExecute runs after the commit.
func (s *Set) Execute(m Mod, ctx ExecContext) {
	if !m.Attribute.Valid() {
		s.logger.Error("execute on invalid attribute", zap.Int("attribute", int(m.Attribute)))
		return
	}
	s.ApplyModUnsafe(m.Attribute, m.Op, m.Magnitude)
	s.PostExecute(m.Attribute, ctx)
}

// ApplyModUnsafe applies magnitude to id through PreChange and commits it
// without running PostExecute.
func (s *Set) ApplyModUnsafe(id ID, op Op, magnitude float64) {
	if !id.Valid() {
		return
	}
	proposed := op.Evaluate(s.values[id], magnitude)
	s.commit(id, s.PreChange(id, proposed))
}

// PreChange runs before any attribute value is overwritten and returns the value
// to commit. When a maximum changes, the paired current value is rescaled to keep
// its current/max ratio; the rescale is computed against the maximum that is
// still stored.
func (s *Set) PreChange(id ID, proposed float64) float64 {
	switch id {
	case MaxHealth:
		s.adjustForMaxChange(Health, MaxHealth, proposed)
	case MaxMana:
		s.adjustForMaxChange(Mana, MaxMana, proposed)
	}
	return proposed
}

func (s *Set) adjustForMaxChange(affected, maxID ID, newMax float64) {
	oldMax := s.values[maxID]
	if nearlyEqual(oldMax, newMax) {
		return
	}
	cur := s.values[affected]
	delta := newMax
	if oldMax > 0 {
		delta = cur*newMax/oldMax - cur
	}
	s.ApplyModUnsafe(affected, Additive, delta)
}

// PostExecute interprets a committed change: it converts Damage into Health
// loss or death and keeps Health and Mana inside [0, max].
func (s *Set) PostExecute(id ID, ctx ExecContext) {
	switch id {
	case Damage:
		s.resolveDamage(ctx)
	case Health, MaxHealth:
		s.commit(Health, clamp(s.values[Health], s.values[MaxHealth]))
	case Mana, MaxMana:
		s.commit(Mana, clamp(s.values[Mana], s.values[MaxMana]))
	}
}

func (s *Set) resolveDamage(ctx ExecContext) {
	localDamage := s.values[Damage]
	s.commit(Damage, 0)

	if localDamage <= 0 {
		return
	}

	if ctx.Target == nil {
		s.logger.Warn("damage resolved without a target",
			zap.String("source", ctx.Source),
			zap.Float64("damage", localDamage),
		)
		return
	}

	// Damage on the dead must not replay the death transition.
	if !ctx.Target.IsAlive() {
		s.logger.Info("target is not alive when receiving damage",
			zap.String("target", ctx.Target.Name()),
			zap.String("source", ctx.Source),
			zap.Float64("damage", localDamage),
		)
		return
	}

	if localDamage >= s.values[Health] {
		s.commit(Health, 0)
		s.commit(Mana, 0)
		if ctx.Target.ApplyDeath() {
			s.logger.Info("target killed",
				zap.String("target", ctx.Target.Name()),
				zap.String("source", ctx.Source),
				zap.Float64("damage", localDamage),
			)
		}
		return
	}

	s.commit(Health, clamp(s.values[Health]-localDamage, s.values[MaxHealth]))
}

func (s *Set) commit(id ID, value float64) {
	old := s.values[id]
	s.values[id] = value
	if !Replicated(id) || old == value {
		return
	}
	c := Change{Attribute: id, Old: old, New: value}

	s.obsMu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.obsMu.Unlock()

	for _, o := range observers {
		o.AttributeChanged(c)
	}
}

// clamp bounds v to [0, hi]. A negative hi bounds to 0.
func clamp(v, hi float64) float64 {
	if hi < 0 {
		hi = 0
	}
	return math.Min(math.Max(v, 0), hi)
}

func restoredLevel(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 1
	}
	return math.Max(math.Round(v), 1)
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= maxChangeTolerance
}
