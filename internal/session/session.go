// Package session runs one actor goroutine per room. All authoritative
// state for the room (roster, round machine, countdowns) is owned by that
// goroutine; everything else talks to it through the typed message inbox.
package session

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/partykit/rounds-backend/internal/chairs"
	"github.com/partykit/rounds-backend/internal/clock"
	"github.com/partykit/rounds-backend/internal/deathdate"
	"github.com/partykit/rounds-backend/internal/event"
	"github.com/partykit/rounds-backend/internal/roster"
)

type Mode string

const (
	ModeChairs    Mode = "chairs"
	ModeDeathDate Mode = "death_date"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeChairs:
		return ModeChairs, true
	case ModeDeathDate:
		return ModeDeathDate, true
	default:
		return "", false
	}
}

type Msg interface{ isSessionMsg() }

type Join struct {
	ClientID string
	Name     string
	Outbox   chan event.Notification // where this observer receives notifications
}

type Leave struct{ ClientID string }

// RequestPush carries no payload; the actor is implicit from the sender.
type RequestPush struct{ ClientID string }

type UpdatePosition struct {
	ClientID string
	Pos      roster.Vec3
}

type Sit struct {
	ClientID string
	SeatID   int
}

type Stand struct{ ClientID string }

// ReportDeath is the presentation layer telling the authority a character
// died (fall, knockback, damage).
type ReportDeath struct{ ClientID string }

// ReportRespawn signals a character replacement; in death-date mode this
// cancels and re-arms the countdown.
type ReportRespawn struct{ ClientID string }

type GetState struct{ Reply chan View }

type Shutdown struct{}

func (Join) isSessionMsg()           {}
func (Leave) isSessionMsg()          {}
func (RequestPush) isSessionMsg()    {}
func (UpdatePosition) isSessionMsg() {}
func (Sit) isSessionMsg()            {}
func (Stand) isSessionMsg()          {}
func (ReportDeath) isSessionMsg()    {}
func (ReportRespawn) isSessionMsg()  {}
func (GetState) isSessionMsg()       {}
func (Shutdown) isSessionMsg()       {}

// View is a copy of loop-owned state, assembled on the loop goroutine in
// response to GetState (test-only).
type View struct {
	Mode         Mode
	Phase        chairs.Phase
	RoundID      int
	Participants int
	AliveCount   int
	NumObservers int
}

type Options struct {
	Mode      Mode
	Chairs    chairs.Config
	DeathDate deathdate.Config
	Poll      time.Duration
	Clock     clock.Clock
	ChairFX   chairs.Effects
	DeathFX   deathdate.Effects
	Rng       *rand.Rand
	Log       zerolog.Logger
}

type Session struct {
	inbox     chan Msg
	clk       clock.Clock
	bcast     *event.Broadcaster
	ros       *roster.Roster
	mode      Mode
	machine   *chairs.Machine
	countdown *deathdate.Controller
	poll      time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	log       zerolog.Logger
}

func New(parent context.Context, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.Rng == nil {
		opts.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Poll <= 0 {
		opts.Poll = 250 * time.Millisecond
	}
	if opts.Mode == "" {
		opts.Mode = ModeChairs
	}

	s := &Session{
		inbox:  make(chan Msg, 64),
		clk:    opts.Clock,
		bcast:  event.NewBroadcaster(opts.Log),
		ros:    roster.New(),
		mode:   opts.Mode,
		poll:   opts.Poll,
		ctx:    ctx,
		cancel: cancel,
		log:    opts.Log,
	}

	switch opts.Mode {
	case ModeDeathDate:
		fx := opts.DeathFX
		if fx == nil {
			fx = deathdate.NopEffects{}
		}
		s.countdown = deathdate.New(ctx, opts.DeathDate, s.clk, s.bcast, fx, opts.Rng, opts.Log)
	default:
		fx := opts.ChairFX
		if fx == nil {
			fx = chairs.NopEffects{}
		}
		s.machine = chairs.NewMachine(opts.Chairs, s.ros, s.bcast, fx, opts.Rng, opts.Log)
	}

	go s.loop()
	return s
}

// Inbox exposes the message channel to the WS layer and tests.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) Mode() Mode { return s.mode }

func (s *Session) loop() {
	ticker := s.clk.NewTicker(s.poll)
	defer ticker.Stop()

	// Countdown supervisors only post expiries; the roster mutation for a
	// death event happens here, on the loop goroutine.
	var expiries <-chan deathdate.Expiry
	if s.countdown != nil {
		expiries = s.countdown.Expiries()
	}

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case now := <-ticker.Chan():
			if s.machine != nil {
				s.machine.Tick(now)
			}

		case e := <-expiries:
			s.countdown.Fire(e)

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)

			case Leave:
				s.handleLeave(msg.ClientID)

			case RequestPush:
				s.handlePush(msg.ClientID)

			case UpdatePosition:
				if s.machine != nil {
					s.machine.HandlePosition(roster.ID(msg.ClientID), msg.Pos)
				} else if p, ok := s.ros.Get(roster.ID(msg.ClientID)); ok {
					p.Pos = msg.Pos
					p.HasCharacter = true
				}

			case Sit:
				if s.machine != nil {
					s.machine.HandleSit(roster.ID(msg.ClientID), msg.SeatID, s.clk.Now())
				}

			case Stand:
				if s.machine != nil {
					s.machine.HandleStand(roster.ID(msg.ClientID))
				}

			case ReportDeath:
				s.handleDeath(msg.ClientID)

			case ReportRespawn:
				s.handleRespawn(msg.ClientID)

			case GetState:
				msg.Reply <- s.view()

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	id := roster.ID(msg.ClientID)
	s.bcast.Register(msg.ClientID, msg.Outbox)
	if s.machine != nil {
		// Late joiners get the current phase immediately so they can
		// render a deadline without waiting for the next broadcast.
		s.bcast.SendTo(msg.ClientID, s.machine.Snapshot())
		s.machine.HandleJoin(id, msg.Name)
		return
	}
	// Late joiners see every running countdown before their own starts.
	for _, n := range s.countdown.Snapshot() {
		s.bcast.SendTo(msg.ClientID, n)
	}
	p := s.ros.Add(id, msg.Name)
	s.countdown.Start(p)
}

func (s *Session) handleLeave(clientID string) {
	id := roster.ID(clientID)
	if s.machine != nil {
		s.machine.HandleLeave(id)
	} else {
		s.countdown.Cancel(id)
		if p, ok := s.ros.Get(id); ok {
			s.ros.Remove(id)
			s.bcast.Broadcast(event.ParticipantLeft(p.Name))
		}
	}
	s.bcast.Unregister(clientID)
}

func (s *Session) handlePush(clientID string) {
	if s.machine == nil {
		s.bcast.SendTo(clientID, event.PushFeedback(event.PushInactive, 0))
		return
	}
	out := s.machine.AttemptPush(roster.ID(clientID), s.clk.Now())
	s.bcast.SendTo(clientID, event.PushFeedback(out.Status, out.Value))
}

func (s *Session) handleDeath(clientID string) {
	id := roster.ID(clientID)
	if s.machine != nil {
		s.machine.HandleDeath(id)
		return
	}
	s.countdown.Cancel(id)
	if p, ok := s.ros.Get(id); ok {
		p.Alive = false
	}
}

func (s *Session) handleRespawn(clientID string) {
	id := roster.ID(clientID)
	if s.machine != nil {
		return
	}
	s.countdown.Cancel(id)
	if p, ok := s.ros.Get(id); ok {
		s.countdown.Start(p)
	}
}

func (s *Session) view() View {
	v := View{
		Mode:         s.mode,
		Participants: s.ros.Len(),
		AliveCount:   s.ros.AliveCount(),
		NumObservers: s.bcast.Len(),
	}
	if s.machine != nil {
		v.Phase = s.machine.Phase()
		v.RoundID = s.machine.RoundID()
	}
	return v
}

func (s *Session) shutdown() {
	s.bcast.Shutdown()
	s.cancel()
}
