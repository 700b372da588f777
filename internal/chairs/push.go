package chairs

import (
	"math"
	"time"

	"github.com/partykit/rounds-backend/internal/event"
	"github.com/partykit/rounds-backend/internal/roster"
)

// PushOutcome is the typed result of a push attempt, reported to the
// actor. Value carries seconds: the refreshed cooldown on Success, the
// remaining cooldown on Cooldown, the penalty on NoTargets.
type PushOutcome struct {
	Status event.PushStatus
	Value  float64
}

// AttemptPush validates and applies a shove. Preconditions are checked
// in order and the first failure wins. A NoTargets rejection still
// advances the cooldown (at the reduced penalty duration) so the action
// cannot be spammed for free.
func (m *Machine) AttemptPush(id roster.ID, now time.Time) PushOutcome {
	actor, ok := m.ros.Get(id)
	if !ok || !actor.Alive || !actor.HasCharacter {
		return PushOutcome{Status: event.PushNoCharacter}
	}
	if m.phase != PhaseActive {
		return PushOutcome{Status: event.PushInactive}
	}
	if now.Before(actor.CooldownUntil) {
		remaining := actor.CooldownUntil.Sub(now).Seconds()
		return PushOutcome{Status: event.PushCooldown, Value: remaining}
	}

	targets := m.targetsInRange(actor)
	if len(targets) == 0 {
		actor.CooldownUntil = now.Add(m.cfg.Push.Penalty)
		return PushOutcome{Status: event.PushNoTargets, Value: m.cfg.Push.Penalty.Seconds()}
	}

	for _, t := range targets {
		m.fx.Impulse(t, m.impulseFor(actor, t))
		for _, s := range m.seats {
			if s.Occupant == t.ID {
				m.setOccupant(s, "")
			}
		}
	}
	actor.CooldownUntil = now.Add(m.cfg.Push.Cooldown)
	m.notify.Broadcast(event.PushActivated(actor.Name))
	return PushOutcome{Status: event.PushSuccess, Value: m.cfg.Push.Cooldown.Seconds()}
}

func (m *Machine) targetsInRange(actor *roster.Participant) []*roster.Participant {
	var out []*roster.Participant
	for _, p := range m.ros.Alive() {
		if p.ID == actor.ID {
			continue
		}
		if horizontalDist(p.Pos, actor.Pos) <= m.cfg.Push.Radius {
			out = append(out, p)
		}
	}
	return out
}

// impulseFor builds the outward-normalized horizontal direction from
// actor to target, scaled by the push force, plus the fixed vertical
// component.
func (m *Machine) impulseFor(actor, target *roster.Participant) roster.Vec3 {
	d := target.Pos.Sub(actor.Pos)
	d.Y = 0
	length := math.Sqrt(d.X*d.X + d.Z*d.Z)
	if length == 0 {
		// Overlapping positions: push straight up.
		return roster.Vec3{Y: m.cfg.Push.Upward}
	}
	return roster.Vec3{
		X: d.X / length * m.cfg.Push.Force,
		Y: m.cfg.Push.Upward,
		Z: d.Z / length * m.cfg.Push.Force,
	}
}
