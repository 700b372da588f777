package chairs

import (
	"fmt"
	"math"
	"time"

	"github.com/partykit/rounds-backend/internal/event"
	"github.com/partykit/rounds-backend/internal/roster"
)

// Hazard is one entry in the data-driven hazard registry. Apply mutates
// the round; new hazards only need a new entry here.
type Hazard struct {
	Key         string
	Name        string
	Description string
	Apply       func(m *Machine, now time.Time) error
}

func defaultHazards() []Hazard {
	return []Hazard{
		{
			Key:         "shuffle_seats",
			Name:        "Seat Shuffle",
			Description: "every seat jumps to a new spot",
			Apply:       hazardShuffleSeats,
		},
		{
			Key:         "gust",
			Name:        "Gale Gust",
			Description: "a blast of wind knocks standing players outward",
			Apply:       hazardGust,
		},
		{
			Key:         "meteor_strike",
			Name:        "Meteor Strike",
			Description: "meteors are incoming",
			Apply:       hazardMeteors,
		},
		{
			Key:         "trap_surge",
			Name:        "Trap Surge",
			Description: "some seats just became traps",
			Apply:       hazardTrapSurge,
		},
	}
}

// fireHazard picks one hazard uniformly at random and runs it. A failing
// handler is logged and skipped; the round keeps going.
func (m *Machine) fireHazard(now time.Time) {
	if len(m.hazards) == 0 {
		return
	}
	h := m.hazards[m.rng.Intn(len(m.hazards))]
	if err := m.runHazard(h, now); err != nil {
		m.log.Warn().Err(err).Str("hazard", h.Key).Msg("hazard handler failed, skipping")
		return
	}
	m.log.Info().Str("hazard", h.Key).Msg("hazard fired")
	m.notify.Broadcast(event.Hazard(h.Key, h.Name, h.Description))
}

func (m *Machine) runHazard(h Hazard, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hazard %s panicked: %v", h.Key, r)
		}
	}()
	return h.Apply(m, now)
}

func hazardShuffleSeats(m *Machine, _ time.Time) error {
	for _, s := range m.seats {
		angle := 2 * math.Pi * m.rng.Float64()
		r := m.cfg.SeatRing * (0.5 + 0.5*m.rng.Float64())
		s.Pos.X = r * math.Cos(angle)
		s.Pos.Z = r * math.Sin(angle)
	}
	return nil
}

func hazardGust(m *Machine, _ time.Time) error {
	for _, p := range m.ros.Alive() {
		if m.seated(p.ID) {
			continue
		}
		dir := p.Pos
		dir.Y = 0
		length := math.Sqrt(dir.X*dir.X + dir.Z*dir.Z)
		if length == 0 {
			dir.X, length = 1, 1
		}
		dir.X = dir.X / length * m.cfg.Push.Force
		dir.Z = dir.Z / length * m.cfg.Push.Force
		dir.Y = m.cfg.Push.Upward
		m.fx.Impulse(p, dir)
	}
	return nil
}

const (
	meteorCount       = 3
	meteorRadius      = 6.0
	meteorMinDelay    = 1 * time.Second
	meteorDelaySpread = 3 * time.Second
)

func hazardMeteors(m *Machine, now time.Time) error {
	for i := 0; i < meteorCount; i++ {
		angle := 2 * math.Pi * m.rng.Float64()
		r := m.cfg.ArenaRadius * math.Sqrt(m.rng.Float64())
		delay := meteorMinDelay + time.Duration(m.rng.Float64()*float64(meteorDelaySpread))
		m.strikes = append(m.strikes, strike{
			at:     now.Add(delay),
			pos:    roster.Vec3{X: r * math.Cos(angle), Z: r * math.Sin(angle)},
			radius: meteorRadius,
		})
	}
	return nil
}

// hazardTrapSurge converts a fraction of the currently-honest seats into
// traps in place, keeping at least one honest seat when it can.
func hazardTrapSurge(m *Machine, _ time.Time) error {
	var honest []*Seat
	for _, s := range m.seats {
		if !s.IsTrap {
			honest = append(honest, s)
		}
	}
	if len(honest) <= 1 {
		return nil
	}
	n := int(math.Floor(float64(len(honest)) * m.cfg.TrapRatio))
	if n < 1 {
		n = 1
	}
	if n > len(honest)-1 {
		n = len(honest) - 1
	}
	for _, i := range m.rng.Perm(len(honest))[:n] {
		honest[i].IsTrap = true
	}
	return nil
}
