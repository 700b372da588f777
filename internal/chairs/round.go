package chairs

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/partykit/rounds-backend/internal/event"
	"github.com/partykit/rounds-backend/internal/roster"
)

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseStarting   Phase = "starting"
	PhaseActive     Phase = "active"
	PhaseResolution Phase = "resolution"
)

const lobbyMessage = "waiting for players"

type Config struct {
	MinPlayers   int
	Prep         time.Duration
	RoundLength  time.Duration
	Intermission time.Duration
	HeartbeatHz  int
	TrapRatio    float64
	TrapVanish   time.Duration
	HazardEvery  time.Duration
	Push         PushConfig
	ArenaRadius  float64
	SeatRing     float64
}

type PushConfig struct {
	Cooldown time.Duration
	Penalty  time.Duration
	Radius   float64
	Force    float64
	Upward   float64
}

func DefaultConfig() Config {
	return Config{
		MinPlayers:   2,
		Prep:         10 * time.Second,
		RoundLength:  60 * time.Second,
		Intermission: 5 * time.Second,
		HeartbeatHz:  4,
		TrapRatio:    0.25,
		TrapVanish:   1800 * time.Millisecond,
		HazardEvery:  15 * time.Second,
		Push: PushConfig{
			Cooldown: 5 * time.Second,
			Penalty:  2 * time.Second,
			Radius:   8,
			Force:    40,
			Upward:   15,
		},
		ArenaRadius: 50,
		SeatRing:    20,
	}
}

// Effects is the sink for physical side effects the presentation layer
// visualizes (impulses, area damage). The machine only decides; it never
// simulates.
type Effects interface {
	Impulse(p *roster.Participant, dir roster.Vec3)
	AreaDamage(pos roster.Vec3, radius float64)
}

type NopEffects struct{}

func (NopEffects) Impulse(*roster.Participant, roster.Vec3) {}
func (NopEffects) AreaDamage(roster.Vec3, float64)          {}

// Seat is one occupiable slot. Occupant is a weak reference into the
// roster; the seat never owns the participant.
type Seat struct {
	ID       int
	Pos      roster.Vec3
	IsTrap   bool
	Occupant roster.ID

	// vanishToken identifies the current occupation of a trap seat. A
	// scheduled removal only fires if its captured token still matches;
	// any occupant change invalidates it.
	vanishToken uuid.UUID
}

type vanish struct {
	seatID int
	token  uuid.UUID
	at     time.Time
}

type strike struct {
	at     time.Time
	pos    roster.Vec3
	radius float64
}

// Machine is the authoritative round state machine for the chair-survival
// mode. It is driven by a single session loop calling Tick and the
// Handle* methods; it is not safe for concurrent use.
type Machine struct {
	cfg    Config
	ros    *roster.Roster
	notify event.Notifier
	fx     Effects
	rng    *rand.Rand
	log    zerolog.Logger

	phase        Phase
	roundID      int
	prepDeadline time.Time
	startTime    time.Time
	endTime      time.Time

	seats      []*Seat
	nextSeatID int

	hazards           []Hazard
	nextHazardAt      time.Time
	pendingVanish     []vanish
	strikes           []strike
	lastHeartbeat     time.Time
	intermissionUntil time.Time
}

func NewMachine(cfg Config, ros *roster.Roster, notify event.Notifier, fx Effects, rng *rand.Rand, log zerolog.Logger) *Machine {
	m := &Machine{
		cfg:    cfg,
		ros:    ros,
		notify: notify,
		fx:     fx,
		rng:    rng,
		log:    log,
		phase:  PhaseLobby,
	}
	m.hazards = defaultHazards()
	return m
}

func (m *Machine) Phase() Phase       { return m.phase }
func (m *Machine) RoundID() int       { return m.roundID }
func (m *Machine) EndTime() time.Time { return m.endTime }
func (m *Machine) Seats() []*Seat     { return m.seats }

// Snapshot describes the current phase for a late-joining observer.
func (m *Machine) Snapshot() event.Notification {
	switch m.phase {
	case PhaseActive:
		return event.RoundStarted(m.roundID, m.endTime, len(m.seats))
	case PhaseStarting:
		return event.RoundStarting(m.prepDeadline, m.ros.Len())
	default:
		return event.Lobby(lobbyMessage, m.cfg.MinPlayers)
	}
}

func (m *Machine) HandleJoin(id roster.ID, name string) {
	m.ros.Add(id, name)
	if m.phase == PhaseLobby {
		m.notify.Broadcast(event.Lobby(lobbyMessage, m.cfg.MinPlayers))
	}
}

func (m *Machine) HandleLeave(id roster.ID) {
	p, ok := m.ros.Get(id)
	if !ok {
		return
	}
	for _, s := range m.seats {
		if s.Occupant == id {
			m.setOccupant(s, "")
		}
	}
	m.ros.Remove(id)
	m.notify.Broadcast(event.ParticipantLeft(p.Name))
}

// HandleDeath marks a participant dead on report from the presentation
// layer (fall, knockback off the arena). The winner check on the next
// tick resolves the round if only one remains.
func (m *Machine) HandleDeath(id roster.ID) {
	p, ok := m.ros.Get(id)
	if !ok || !p.Alive {
		return
	}
	p.Alive = false
	for _, s := range m.seats {
		if s.Occupant == id {
			m.setOccupant(s, "")
		}
	}
	m.notify.Broadcast(event.ParticipantEliminated(p.Name))
}

// HandleSit claims a seat. Sitting on an occupied seat displaces the
// previous occupant; either way the seat's pending trap removal (if any)
// is superseded and a fresh one is scheduled when the seat is a trap.
func (m *Machine) HandleSit(id roster.ID, seatID int, now time.Time) {
	if m.phase != PhaseActive {
		return
	}
	p, ok := m.ros.Get(id)
	if !ok || !p.Alive {
		return
	}
	seat := m.seatByID(seatID)
	if seat == nil {
		return
	}
	// Stand up from any previously held seat.
	for _, s := range m.seats {
		if s.Occupant == id {
			m.setOccupant(s, "")
		}
	}
	m.setOccupant(seat, id)
	if seat.IsTrap {
		tok := uuid.New()
		seat.vanishToken = tok
		m.pendingVanish = append(m.pendingVanish, vanish{seatID: seat.ID, token: tok, at: now.Add(m.cfg.TrapVanish)})
	}
}

func (m *Machine) HandleStand(id roster.ID) {
	for _, s := range m.seats {
		if s.Occupant == id {
			m.setOccupant(s, "")
		}
	}
}

func (m *Machine) HandlePosition(id roster.ID, pos roster.Vec3) {
	if p, ok := m.ros.Get(id); ok {
		p.Pos = pos
		p.HasCharacter = true
	}
}

// setOccupant changes a seat's occupant. The token reset is what silently
// cancels any scheduled trap removal for the previous occupation.
func (m *Machine) setOccupant(s *Seat, id roster.ID) {
	s.Occupant = id
	s.vanishToken = uuid.Nil
}

func (m *Machine) seatByID(id int) *Seat {
	for _, s := range m.seats {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Tick advances the machine. The session loop calls it at sub-second
// granularity; nothing here assumes a fixed cadence.
func (m *Machine) Tick(now time.Time) {
	switch m.phase {
	case PhaseLobby:
		if m.ros.Len() >= m.cfg.MinPlayers {
			m.prepDeadline = now.Add(m.cfg.Prep)
			m.phase = PhaseStarting
			m.notify.Broadcast(event.RoundStarting(m.prepDeadline, m.ros.Len()))
		}

	case PhaseStarting:
		if m.ros.Len() < m.cfg.MinPlayers {
			m.phase = PhaseLobby
			m.notify.Broadcast(event.Lobby("round cancelled: not enough players", m.cfg.MinPlayers))
			return
		}
		if !now.Before(m.prepDeadline) {
			m.beginRound(now)
		}

	case PhaseActive:
		m.tickActive(now)

	case PhaseResolution:
		if !now.Before(m.intermissionUntil) {
			for _, p := range m.ros.All() {
				p.Alive = false
			}
			m.phase = PhaseLobby
			m.notify.Broadcast(event.Lobby(lobbyMessage, m.cfg.MinPlayers))
		}
	}
}

func (m *Machine) tickActive(now time.Time) {
	// Hazards fire independently of whatever else this tick decides.
	if !now.Before(m.nextHazardAt) {
		m.fireHazard(now)
		m.nextHazardAt = now.Add(m.cfg.HazardEvery)
	}
	m.processStrikes(now)
	m.processVanish(now)

	if !now.Before(m.endTime) {
		m.sweep()
		m.resolve(now)
		return
	}
	if m.ros.AliveCount() <= 1 {
		m.resolve(now)
		return
	}
	if now.Sub(m.lastHeartbeat) >= m.heartbeatPeriod() {
		m.lastHeartbeat = now
		m.notify.Broadcast(event.RoundTick(m.endTime, m.ros.AliveCount()))
	}
}

func (m *Machine) heartbeatPeriod() time.Duration {
	hz := m.cfg.HeartbeatHz
	if hz <= 0 {
		hz = 4
	}
	return time.Second / time.Duration(hz)
}

func (m *Machine) beginRound(now time.Time) {
	m.roundID++
	m.startTime = now
	m.endTime = now.Add(m.cfg.RoundLength)
	for _, p := range m.ros.All() {
		p.Alive = true
	}
	m.generateSeats(m.ros.Len())
	m.nextHazardAt = now.Add(m.cfg.HazardEvery)
	m.lastHeartbeat = now
	m.pendingVanish = nil
	m.strikes = nil
	m.phase = PhaseActive
	m.log.Info().Int("round_id", m.roundID).Int("seats", len(m.seats)).Time("end_time", m.endTime).Msg("round started")
	m.notify.Broadcast(event.RoundStarted(m.roundID, m.endTime, len(m.seats)))
}

// generateSeats places max(1, n-1) seats on a ring and marks a fraction
// of them as traps, chosen without replacement.
func (m *Machine) generateSeats(participants int) {
	count := participants - 1
	if count < 1 {
		count = 1
	}
	traps := int(math.Floor(float64(count) * m.cfg.TrapRatio))
	if traps < 1 {
		traps = 1
	}
	if traps > count-1 {
		traps = count - 1
	}
	if traps < 0 {
		traps = 0
	}

	m.seats = make([]*Seat, 0, count)
	for i := 0; i < count; i++ {
		angle := 2 * math.Pi * float64(i) / float64(count)
		m.nextSeatID++
		m.seats = append(m.seats, &Seat{
			ID:  m.nextSeatID,
			Pos: roster.Vec3{X: m.cfg.SeatRing * math.Cos(angle), Z: m.cfg.SeatRing * math.Sin(angle)},
		})
	}
	for _, i := range m.rng.Perm(count)[:traps] {
		m.seats[i].IsTrap = true
	}
}

// sweep eliminates every alive participant not occupying a seat that is
// still part of the round's seat set. Membership is by identity: a trap
// seat that already vanished no longer counts.
func (m *Machine) sweep() {
	for _, p := range m.ros.Alive() {
		if !m.seated(p.ID) {
			p.Alive = false
			m.notify.Broadcast(event.ParticipantEliminated(p.Name))
		}
	}
}

func (m *Machine) seated(id roster.ID) bool {
	for _, s := range m.seats {
		if s.Occupant == id {
			return true
		}
	}
	return false
}

func (m *Machine) resolve(now time.Time) {
	alive := m.ros.Alive()
	winner := ""
	if len(alive) == 1 {
		winner = alive[0].Name
	}
	m.log.Info().Int("round_id", m.roundID).Str("winner", winner).Msg("round resolved")
	m.notify.Broadcast(event.Winner(winner))
	m.seats = nil
	m.pendingVanish = nil
	m.strikes = nil
	m.notify.Broadcast(event.RoundEnded(m.roundID))
	m.phase = PhaseResolution
	m.intermissionUntil = now.Add(m.cfg.Intermission)
}

// processVanish fires due trap removals whose token still matches the
// seat's current occupation. A stale token means the occupant changed in
// the meantime; that removal is dropped without any notification.
func (m *Machine) processVanish(now time.Time) {
	if len(m.pendingVanish) == 0 {
		return
	}
	remaining := m.pendingVanish[:0]
	for _, v := range m.pendingVanish {
		if now.Before(v.at) {
			remaining = append(remaining, v)
			continue
		}
		seat := m.seatByID(v.seatID)
		if seat == nil || seat.vanishToken != v.token {
			continue
		}
		m.removeSeat(v.seatID)
		m.notify.Broadcast(event.SeatTrapped(seat.Pos))
	}
	m.pendingVanish = remaining
}

func (m *Machine) removeSeat(id int) {
	for i, s := range m.seats {
		if s.ID == id {
			m.seats = append(m.seats[:i], m.seats[i+1:]...)
			return
		}
	}
}

func (m *Machine) processStrikes(now time.Time) {
	if len(m.strikes) == 0 {
		return
	}
	remaining := m.strikes[:0]
	for _, st := range m.strikes {
		if now.Before(st.at) {
			remaining = append(remaining, st)
			continue
		}
		m.fx.AreaDamage(st.pos, st.radius)
		for _, p := range m.ros.Alive() {
			if horizontalDist(p.Pos, st.pos) <= st.radius {
				p.Alive = false
				m.notify.Broadcast(event.ParticipantEliminated(p.Name))
			}
		}
	}
	m.strikes = remaining
}

func horizontalDist(a, b roster.Vec3) float64 {
	dx, dz := a.X-b.X, a.Z-b.Z
	return math.Sqrt(dx*dx + dz*dz)
}
