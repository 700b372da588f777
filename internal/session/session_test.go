package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/partykit/rounds-backend/internal/chairs"
	"github.com/partykit/rounds-backend/internal/deathdate"
	"github.com/partykit/rounds-backend/internal/event"
)

// Short real-time config so a whole round fits in a test.
func fastChairsConfig() chairs.Config {
	cfg := chairs.DefaultConfig()
	cfg.Prep = 50 * time.Millisecond
	cfg.RoundLength = 400 * time.Millisecond
	cfg.Intermission = 50 * time.Millisecond
	cfg.HazardEvery = time.Hour
	return cfg
}

func newChairsSession(t *testing.T) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, Options{
		Mode:   ModeChairs,
		Chairs: fastChairsConfig(),
		Poll:   10 * time.Millisecond,
		Log:    zerolog.Nop(),
	})
}

func recvType(t *testing.T, ch chan event.Notification, want event.Type, timeout time.Duration) event.Notification {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", want)
			}
			if n.Type == want {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func getView(t *testing.T, s *Session) View {
	t.Helper()
	reply := make(chan View, 1)
	s.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for view")
		return View{}
	}
}

func TestChairsSession_RoundRunsEndToEnd(t *testing.T) {
	s := newChairsSession(t)

	out1 := make(chan event.Notification, 64)
	out2 := make(chan event.Notification, 64)
	s.Inbox() <- Join{ClientID: "c1", Name: "Ada", Outbox: out1}
	s.Inbox() <- Join{ClientID: "c2", Name: "Joe", Outbox: out2}

	// Joining observer gets a snapshot immediately.
	snap := recvType(t, out1, event.TypeLobby, time.Second)
	require.Equal(t, 2, snap.MinPlayers)

	starting := recvType(t, out1, event.TypeRoundStarting, time.Second)
	require.Equal(t, 2, starting.ParticipantCount)
	require.NotNil(t, starting.StartTime)

	started := recvType(t, out2, event.TypeRoundStarted, time.Second)
	require.Equal(t, 1, started.RoundID)
	require.Equal(t, 1, started.SeatCount)
	require.NotNil(t, started.EndTime)

	// Ticks come rate-limited while the round runs.
	recvType(t, out1, event.TypeRoundTick, time.Second)

	// Nobody sits; the sweep eliminates both and there is no winner.
	w := recvType(t, out1, event.TypeWinner, time.Second)
	require.Empty(t, w.Name)
	recvType(t, out2, event.TypeRoundEnded, time.Second)
}

func TestChairsSession_PushFeedbackIsPrivate(t *testing.T) {
	s := newChairsSession(t)

	out1 := make(chan event.Notification, 64)
	out2 := make(chan event.Notification, 64)
	s.Inbox() <- Join{ClientID: "c1", Name: "Ada", Outbox: out1}
	s.Inbox() <- Join{ClientID: "c2", Name: "Joe", Outbox: out2}

	recvType(t, out1, event.TypeRoundStarted, time.Second)

	// Both stand at the origin, so Joe is in range.
	s.Inbox() <- RequestPush{ClientID: "c1"}

	fb := recvType(t, out1, event.TypePushFeedback, time.Second)
	require.Equal(t, event.PushSuccess, fb.Status)

	// The coarse notice reaches everyone, the detailed outcome only c1.
	notice := recvType(t, out2, event.TypePushActivated, time.Second)
	require.Equal(t, "Ada", notice.Name)
	for n := range out2 {
		require.NotEqual(t, event.TypePushFeedback, n.Type)
		if n.Type == event.TypeWinner {
			break
		}
	}
}

func TestSession_LeaveUnregistersObserver(t *testing.T) {
	s := newChairsSession(t)

	out1 := make(chan event.Notification, 64)
	out2 := make(chan event.Notification, 64)
	s.Inbox() <- Join{ClientID: "c1", Name: "Ada", Outbox: out1}
	s.Inbox() <- Join{ClientID: "c2", Name: "Joe", Outbox: out2}

	require.Eventually(t, func() bool {
		return getView(t, s).NumObservers == 2
	}, time.Second, 10*time.Millisecond)

	s.Inbox() <- Leave{ClientID: "c2"}
	require.Eventually(t, func() bool {
		v := getView(t, s)
		return v.NumObservers == 1 && v.Participants == 1
	}, time.Second, 10*time.Millisecond)
}

func newDeathDateSession(t *testing.T, cfg deathdate.Config) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, Options{
		Mode:      ModeDeathDate,
		DeathDate: cfg,
		Poll:      10 * time.Millisecond,
		Log:       zerolog.Nop(),
	})
}

// idleDeathDateConfig arms countdowns that will not fire during a test.
func idleDeathDateConfig() deathdate.Config {
	cfg := deathdate.DefaultConfig()
	cfg.MinDuration = time.Hour
	cfg.MaxDuration = time.Hour
	return cfg
}

func TestDeathDateSession_JoinArmsCountdown(t *testing.T) {
	s := newDeathDateSession(t, idleDeathDateConfig())

	out := make(chan event.Notification, 64)
	s.Inbox() <- Join{ClientID: "c1", Name: "Ada", Outbox: out}

	n := recvType(t, out, event.TypeCountdownStarted, time.Second)
	require.Equal(t, "Ada", n.Name)
	require.NotNil(t, n.Deadline)
	require.Equal(t, time.Hour.Seconds(), n.Duration)

	// Respawn funnels through cancel: Reset then a fresh Start.
	s.Inbox() <- ReportRespawn{ClientID: "c1"}
	recvType(t, out, event.TypeCountdownReset, time.Second)
	recvType(t, out, event.TypeCountdownStarted, time.Second)

	s.Inbox() <- Shutdown{}
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-out:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestDeathDateSession_ExpiryAppliedOnTheLoop(t *testing.T) {
	cfg := deathdate.DefaultConfig()
	cfg.MinDuration = 50 * time.Millisecond
	cfg.MaxDuration = 50 * time.Millisecond
	cfg.PollMin = 10 * time.Millisecond
	cfg.PollMax = 20 * time.Millisecond
	s := newDeathDateSession(t, cfg)

	out := make(chan event.Notification, 64)
	s.Inbox() <- Join{ClientID: "c1", Name: "Ada", Outbox: out}
	recvType(t, out, event.TypeCountdownStarted, time.Second)

	// Reading views through the loop while the countdown expires must be
	// safe: the supervisor only posts, the loop applies the elimination.
	require.Eventually(t, func() bool {
		return getView(t, s).AliveCount == 0
	}, 2*time.Second, 5*time.Millisecond)

	n := recvType(t, out, event.TypeCountdownEvent, time.Second)
	require.Equal(t, "Ada", n.Name)
	require.NotEmpty(t, n.Key)
}

func TestDeathDateSession_LateJoinerSeesActiveCountdowns(t *testing.T) {
	s := newDeathDateSession(t, idleDeathDateConfig())

	out1 := make(chan event.Notification, 64)
	s.Inbox() <- Join{ClientID: "c1", Name: "Ada", Outbox: out1}
	recvType(t, out1, event.TypeCountdownStarted, time.Second)

	out2 := make(chan event.Notification, 64)
	s.Inbox() <- Join{ClientID: "c2", Name: "Joe", Outbox: out2}

	// Ada's countdown arrives as a targeted snapshot before Joe's own
	// Start broadcast.
	first := recvType(t, out2, event.TypeCountdownStarted, time.Second)
	require.Equal(t, "Ada", first.Name)
	require.NotNil(t, first.Deadline)
	require.Greater(t, first.Duration, 0.0)

	second := recvType(t, out2, event.TypeCountdownStarted, time.Second)
	require.Equal(t, "Joe", second.Name)
}
