package gameserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/game/attribute"
	"github.com/cory-johannsen/datadrivengas/internal/game/character"
	"github.com/cory-johannsen/datadrivengas/internal/game/effect"
)

// RegenTicker periodically adds HealthRegenRate*dt to Health and
// ManaRegenRate*dt to Mana for every living, authoritative character.
//
// Invariant: each character is regenerated at most once per tick.
type RegenTicker struct {
	roster   *Roster
	interval time.Duration
	logger   *zap.Logger

	stop chan struct{}
	once sync.Once
}

// NewRegenTicker returns a ticker over roster firing every interval.
//
// Precondition: roster must be non-nil; interval must be > 0.
func NewRegenTicker(roster *Roster, interval time.Duration, logger *zap.Logger) *RegenTicker {
	if interval <= 0 {
		panic("gameserver.NewRegenTicker: interval must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegenTicker{
		roster:   roster,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Tick regenerates every roster character by dt.
//
// Postcondition: Returns the number of characters an effect was applied to.
func (t *RegenTicker) Tick(dt time.Duration) int {
	n := 0
	for _, c := range t.roster.All() {
		if Regenerate(c, dt) {
			n++
		}
	}
	return n
}

// Regenerate applies one regeneration step of dt to c. It does nothing for
// dead or non-authoritative characters or when both rates are zero.
//
// Postcondition: Returns true iff an effect was applied.
func Regenerate(c *character.Character, dt time.Duration) bool {
	if !c.HasAuthority() || dt <= 0 {
		return false
	}
	applied := false
	c.Do(func() {
		set := c.Attributes()
		if set == nil || !c.IsAlive() {
			return
		}
		secs := dt.Seconds()
		spec := effect.NewInstant("regen")
		if rate := set.HealthRegenRate(); rate != 0 {
			spec.Add(effect.Modifier{Attribute: attribute.Health, Magnitude: rate * secs, Op: attribute.Additive})
		}
		if rate := set.ManaRegenRate(); rate != 0 {
			spec.Add(effect.Modifier{Attribute: attribute.Mana, Magnitude: rate * secs, Op: attribute.Additive})
		}
		if spec.Len() == 0 {
			return
		}
		c.Abilities().ApplyEffectToSelf(spec, "regen")
		applied = true
	})
	return applied
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (t *RegenTicker) Start(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.stop:
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			n := t.Tick(dt)
			t.logger.Debug("regen tick",
				zap.Duration("dt", dt),
				zap.Int("characters", n),
			)
		}
	}
}

// Stop ends Start. It is idempotent.
func (t *RegenTicker) Stop() {
	t.once.Do(func() { close(t.stop) })
}
