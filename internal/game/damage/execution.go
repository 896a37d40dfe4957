// Package damage computes damage magnitudes and delivers them to a target's
// Damage meta attribute.
package damage

import (
	"math"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/datadrivengas/internal/game/ability"
	"github.com/cory-johannsen/datadrivengas/internal/game/effect"
)

// OnDamageHook is the Lua global called as
// on_damage(source, target, amount, target_health) before damage is applied.
// A numeric return value replaces amount.
const OnDamageHook = "on_damage"

// EnvironmentSource names damage that has no source character.
const EnvironmentSource = "environment"

// HookCaller dispatches a named Lua hook in a script zone.
type HookCaller interface {
	CallHook(zoneID, hook string, args ...lua.LValue) (lua.LValue, error)
}

// Execution applies damage, optionally letting a zone script adjust the amount.
type Execution struct {
	// Scripts is optional; nil applies the base amount unchanged.
	Scripts HookCaller
	// Zone selects the script VM.
	Zone   string
	Logger *zap.Logger
}

// Amount returns the damage to apply for base, after the zone's on_damage hook.
//
// Precondition: target must be non-nil.
// Postcondition: Returns base when there is no hook, the hook fails, or it
// returns anything other than a finite number.
func (e Execution) Amount(source, target *ability.System, base float64) float64 {
	sourceName := EnvironmentSource
	if source != nil {
		sourceName = source.Name()
	}
	var health float64
	if set := target.Attributes(); set != nil {
		health = set.Health()
	}
	return e.Adjust(sourceName, target.Name(), base, health)
}

// Adjust runs the on_damage hook for the given inputs. It touches no
// attribute state, so callers may run it without holding character locks.
//
// Postcondition: Returns base when there is no hook, the hook fails, or it
// returns anything other than a finite number.
func (e Execution) Adjust(sourceName, targetName string, base, targetHealth float64) float64 {
	if e.Scripts == nil {
		return base
	}
	ret, err := e.Scripts.CallHook(e.Zone, OnDamageHook,
		lua.LString(sourceName),
		lua.LString(targetName),
		lua.LNumber(base),
		lua.LNumber(targetHealth),
	)
	if err != nil {
		e.logger().Warn("damage hook failed",
			zap.String("zone", e.Zone),
			zap.Error(err),
		)
		return base
	}
	switch v := ret.(type) {
	case lua.LNumber:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			e.logger().Warn("damage hook returned a non-finite amount",
				zap.String("zone", e.Zone),
				zap.String("target", targetName),
			)
			return base
		}
		return f
	default:
		if ret != lua.LNil {
			e.logger().Warn("damage hook returned a non-number",
				zap.String("zone", e.Zone),
				zap.String("type", ret.Type().String()),
			)
		}
		return base
	}
}

// Apply computes the amount for base and delivers it to target.
//
// Postcondition: Returns the amount written to Damage, or 0 when target is nil.
func (e Execution) Apply(source, target *ability.System, base float64) float64 {
	if target == nil {
		e.logger().Warn("damage applied without a target",
			zap.Float64("amount", base),
		)
		return 0
	}
	amount := e.Amount(source, target, base)
	e.Deliver(source, target, amount)
	return amount
}

// Deliver writes amount to target's Damage through an instant effect without
// consulting the hook. A nil source is treated as environmental damage.
func (e Execution) Deliver(source, target *ability.System, amount float64) {
	if target == nil {
		e.logger().Warn("damage applied without a target",
			zap.Float64("amount", amount),
		)
		return
	}
	spec := effect.Damage("damage", amount)
	if source == nil {
		target.ApplyEffectToSelf(spec, EnvironmentSource)
		return
	}
	source.ApplyEffectToTarget(spec, target, source.Name())
}

func (e Execution) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
