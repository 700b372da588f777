package chairs

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/partykit/rounds-backend/internal/event"
	"github.com/partykit/rounds-backend/internal/roster"
)

type recordingNotifier struct {
	broadcasts []event.Notification
	direct     map[string][]event.Notification
}

func newRecorder() *recordingNotifier {
	return &recordingNotifier{direct: map[string][]event.Notification{}}
}

func (r *recordingNotifier) Broadcast(n event.Notification) {
	r.broadcasts = append(r.broadcasts, n)
}

func (r *recordingNotifier) SendTo(id string, n event.Notification) {
	r.direct[id] = append(r.direct[id], n)
}

func (r *recordingNotifier) count(t event.Type) int {
	n := 0
	for _, b := range r.broadcasts {
		if b.Type == t {
			n++
		}
	}
	return n
}

func (r *recordingNotifier) last(t event.Type) (event.Notification, bool) {
	for i := len(r.broadcasts) - 1; i >= 0; i-- {
		if r.broadcasts[i].Type == t {
			return r.broadcasts[i], true
		}
	}
	return event.Notification{}, false
}

type fakeFX struct {
	impulses []roster.ID
	strikes  int
}

func (f *fakeFX) Impulse(p *roster.Participant, _ roster.Vec3) {
	f.impulses = append(f.impulses, p.ID)
}

func (f *fakeFX) AreaDamage(roster.Vec3, float64) { f.strikes++ }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HazardEvery = time.Hour // keep hazards quiet unless a test wants them
	return cfg
}

func newTestMachine(cfg Config) (*Machine, *recordingNotifier, *fakeFX) {
	rec := newRecorder()
	fx := &fakeFX{}
	m := NewMachine(cfg, roster.New(), rec, fx, rand.New(rand.NewSource(1)), zerolog.Nop())
	return m, rec, fx
}

// startRound joins n participants and ticks the machine into Active.
// Returns the instant the round started.
func startRound(t *testing.T, m *Machine, cfg Config, n int) time.Time {
	t.Helper()
	for i := 1; i <= n; i++ {
		m.HandleJoin(roster.ID(fmt.Sprintf("p%d", i)), fmt.Sprintf("P%d", i))
	}
	t0 := time.Unix(1000, 0)
	m.Tick(t0)
	require.Equal(t, PhaseStarting, m.Phase())
	start := t0.Add(cfg.Prep)
	m.Tick(start)
	require.Equal(t, PhaseActive, m.Phase())
	return start
}

func TestRoundIDIncrementsOncePerRound(t *testing.T) {
	cfg := testConfig()
	m, rec, _ := newTestMachine(cfg)

	start := startRound(t, m, cfg, 3)
	require.Equal(t, 1, m.RoundID())

	// Nobody sits; expiry sweeps everyone and resolves with no winner.
	end := start.Add(cfg.RoundLength)
	m.Tick(end)
	require.Equal(t, PhaseResolution, m.Phase())
	w, ok := rec.last(event.TypeWinner)
	require.True(t, ok)
	require.Empty(t, w.Name)
	require.Equal(t, 1, rec.count(event.TypeRoundEnded))

	// Intermission elapses, lobby again, next round gets id 2.
	afterIntermission := end.Add(cfg.Intermission)
	m.Tick(afterIntermission)
	require.Equal(t, PhaseLobby, m.Phase())
	m.Tick(afterIntermission)
	require.Equal(t, PhaseStarting, m.Phase())
	m.Tick(afterIntermission.Add(cfg.Prep))
	require.Equal(t, 2, m.RoundID())
}

func TestStartAbortsWhenRosterShrinks(t *testing.T) {
	cfg := testConfig()
	m, rec, _ := newTestMachine(cfg)

	m.HandleJoin("p1", "P1")
	m.HandleJoin("p2", "P2")
	m.HandleJoin("p3", "P3")
	t0 := time.Unix(1000, 0)
	m.Tick(t0)
	require.Equal(t, PhaseStarting, m.Phase())
	require.Equal(t, 1, rec.count(event.TypeRoundStarting))

	m.HandleLeave("p2")
	m.HandleLeave("p3")
	m.Tick(t0.Add(time.Second))
	require.Equal(t, PhaseLobby, m.Phase())
	require.Equal(t, 0, m.RoundID())
	lob, ok := rec.last(event.TypeLobby)
	require.True(t, ok)
	require.Contains(t, lob.Message, "cancelled")
}

func TestSeatAndTrapCounts(t *testing.T) {
	cases := []struct {
		name         string
		participants int
		ratio        float64
		wantSeats    int
		wantTraps    int
	}{
		{name: "single participant gets one honest seat", participants: 1, ratio: 0.25, wantSeats: 1, wantTraps: 0},
		{name: "five players", participants: 5, ratio: 0.25, wantSeats: 4, wantTraps: 1},
		{name: "nine players half traps", participants: 9, ratio: 0.5, wantSeats: 8, wantTraps: 4},
		{name: "ratio zero still yields one trap", participants: 6, ratio: 0, wantSeats: 5, wantTraps: 1},
		{name: "ratio one keeps an honest seat", participants: 4, ratio: 1, wantSeats: 3, wantTraps: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MinPlayers = 1
			cfg.TrapRatio = tc.ratio
			m, _, _ := newTestMachine(cfg)
			startRound(t, m, cfg, tc.participants)

			require.Len(t, m.Seats(), tc.wantSeats)
			traps := 0
			for _, s := range m.Seats() {
				if s.IsTrap {
					traps++
				}
			}
			require.Equal(t, tc.wantTraps, traps)
		})
	}
}

func TestSweepSparesSeatedParticipants(t *testing.T) {
	cfg := testConfig()
	m, rec, _ := newTestMachine(cfg)
	start := startRound(t, m, cfg, 3)

	var honest *Seat
	for _, s := range m.Seats() {
		if !s.IsTrap {
			honest = s
			break
		}
	}
	require.NotNil(t, honest)
	m.HandleSit("p1", honest.ID, start.Add(time.Second))

	m.Tick(start.Add(cfg.RoundLength))
	require.Equal(t, 2, rec.count(event.TypeParticipantEliminated))
	w, ok := rec.last(event.TypeWinner)
	require.True(t, ok)
	require.Equal(t, "P1", w.Name)
}

func TestWinnerFiresImmediatelyOnLastAlive(t *testing.T) {
	cfg := testConfig()
	m, rec, _ := newTestMachine(cfg)
	start := startRound(t, m, cfg, 3)

	m.HandleDeath("p2")
	m.HandleDeath("p3")
	m.Tick(start.Add(time.Second)) // well before endTime
	require.Equal(t, PhaseResolution, m.Phase())
	w, ok := rec.last(event.TypeWinner)
	require.True(t, ok)
	require.Equal(t, "P1", w.Name)
}

func TestTrapSeatVacatedBeforeDelayNeverFires(t *testing.T) {
	cfg := testConfig()
	m, rec, _ := newTestMachine(cfg)
	start := startRound(t, m, cfg, 3)

	trap := findTrap(t, m)
	m.HandleSit("p1", trap.ID, start)
	m.HandleStand("p1")

	m.Tick(start.Add(cfg.TrapVanish + time.Second))
	require.Equal(t, 0, rec.count(event.TypeSeatTrapped))
	require.NotNil(t, m.seatByID(trap.ID))
}

func TestTrapSeatRemovedAfterDelay(t *testing.T) {
	cfg := testConfig()
	m, rec, _ := newTestMachine(cfg)
	start := startRound(t, m, cfg, 3)

	trap := findTrap(t, m)
	m.HandleSit("p1", trap.ID, start)

	m.Tick(start.Add(cfg.TrapVanish - 100*time.Millisecond))
	require.Equal(t, 0, rec.count(event.TypeSeatTrapped))

	m.Tick(start.Add(cfg.TrapVanish))
	require.Equal(t, 1, rec.count(event.TypeSeatTrapped))
	require.Nil(t, m.seatByID(trap.ID))

	// At most one vanish per occupation: further ticks stay quiet.
	m.Tick(start.Add(cfg.TrapVanish + time.Second))
	require.Equal(t, 1, rec.count(event.TypeSeatTrapped))
}

func TestReoccupiedTrapSeatSchedulesFreshVanish(t *testing.T) {
	cfg := testConfig()
	m, rec, _ := newTestMachine(cfg)
	start := startRound(t, m, cfg, 3)

	trap := findTrap(t, m)
	m.HandleSit("p1", trap.ID, start)
	// p2 displaces p1 halfway through the delay; the first occupation's
	// removal is superseded, the second gets its own full delay.
	half := start.Add(cfg.TrapVanish / 2)
	m.HandleSit("p2", trap.ID, half)

	m.Tick(start.Add(cfg.TrapVanish))
	require.Equal(t, 0, rec.count(event.TypeSeatTrapped))

	m.Tick(half.Add(cfg.TrapVanish))
	require.Equal(t, 1, rec.count(event.TypeSeatTrapped))
}

func TestHeartbeatIsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatHz = 4
	m, rec, _ := newTestMachine(cfg)
	start := startRound(t, m, cfg, 3)

	// Poll at 100ms for one second; a 4 Hz heartbeat passes 3 thresholds
	// on that grid (300, 600, 900ms).
	for i := 1; i <= 10; i++ {
		m.Tick(start.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	require.Equal(t, 3, rec.count(event.TypeRoundTick))

	tick, ok := rec.last(event.TypeRoundTick)
	require.True(t, ok)
	require.Equal(t, 3, tick.AliveCount)
	require.True(t, tick.EndTime.Equal(m.EndTime()))
}

func findTrap(t *testing.T, m *Machine) *Seat {
	t.Helper()
	for _, s := range m.Seats() {
		if s.IsTrap {
			return s
		}
	}
	t.Fatal("no trap seat generated")
	return nil
}
