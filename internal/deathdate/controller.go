// Package deathdate implements the countdown elimination mode: every
// participant gets a randomly drawn death deadline, a supervisor polls it
// down, and on expiry a random death event fires.
package deathdate

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/partykit/rounds-backend/internal/clock"
	"github.com/partykit/rounds-backend/internal/event"
	"github.com/partykit/rounds-backend/internal/roster"
)

type Config struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	PollMin     time.Duration
	PollMax     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinDuration: 30 * time.Second,
		MaxDuration: 300 * time.Second,
		PollMin:     250 * time.Millisecond,
		PollMax:     time.Second,
	}
}

// Effects is the presentation-facing sink for what a death event does to
// the character.
type Effects interface {
	DisableMovement(p *roster.Participant)
}

type NopEffects struct{}

func (NopEffects) DisableMovement(*roster.Participant) {}

// DeathEvent is one entry in the data-driven event registry. Handlers
// are fallible; a failing handler falls back to a plain elimination.
type DeathEvent struct {
	Key         string
	Description string
	Handler     func(p *roster.Participant) error
}

func defaultEvents() []DeathEvent {
	eliminate := func(p *roster.Participant) error {
		p.Alive = false
		return nil
	}
	return []DeathEvent{
		{Key: "struck_down", Description: "a bolt from above finds them", Handler: eliminate},
		{Key: "vanish", Description: "they fade from existence", Handler: eliminate},
		{Key: "swallowed", Description: "the ground opens beneath their feet", Handler: eliminate},
	}
}

type countdown struct {
	p        *roster.Participant
	deadline time.Time
	token    uuid.UUID
}

// Expiry marks a countdown that reached its deadline. Supervisors post
// these; the loop that owns the roster turns them into eliminations by
// calling Fire.
type Expiry struct {
	id    roster.ID
	token uuid.UUID
}

// Controller owns every active countdown. Supervisor goroutines never
// touch participant state: they watch the clock, re-validate their token
// at each wake, and post an Expiry when the deadline passes. All roster
// mutation happens in Start, Cancel, and Fire, which run on the owning
// loop's goroutine.
type Controller struct {
	cfg      Config
	clk      clock.Clock
	notify   event.Notifier
	fx       Effects
	rng      *rand.Rand
	log      zerolog.Logger
	ctx      context.Context
	events   []DeathEvent
	expiries chan Expiry

	mu     sync.Mutex
	active map[roster.ID]*countdown
}

func New(ctx context.Context, cfg Config, clk clock.Clock, notify event.Notifier, fx Effects, rng *rand.Rand, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		clk:      clk,
		notify:   notify,
		fx:       fx,
		rng:      rng,
		log:      log,
		ctx:      ctx,
		events:   defaultEvents(),
		expiries: make(chan Expiry, 16),
		active:   make(map[roster.ID]*countdown),
	}
}

// Expiries is drained by the owning loop; each received value must be
// passed back to Fire.
func (c *Controller) Expiries() <-chan Expiry { return c.expiries }

// Start draws a duration, arms a countdown, and spawns its supervisor.
// Any previous countdown for the same participant is superseded in place:
// its supervisor sees a stale token at next wake and exits silently,
// without a Reset broadcast.
func (c *Controller) Start(p *roster.Participant) time.Duration {
	spread := c.cfg.MaxDuration - c.cfg.MinDuration
	dur := c.cfg.MinDuration
	if spread > 0 {
		dur += time.Duration(c.rng.Int63n(int64(spread)))
	}

	c.mu.Lock()
	deadline := c.clk.Now().Add(dur)
	token := uuid.New()
	c.active[p.ID] = &countdown{p: p, deadline: deadline, token: token}
	p.Alive = true
	p.DeathDeadline = &deadline
	c.mu.Unlock()

	c.log.Info().Str("participant", p.Name).Dur("duration", dur).Time("deadline", deadline).Msg("countdown started")
	c.notify.Broadcast(event.CountdownStarted(p.Name, dur, deadline))
	go c.supervise(p.ID, token, deadline)
	return dur
}

// Cancel clears a participant's countdown and broadcasts Reset. Death,
// respawn, and disconnect all funnel through here; cancelling an already
// cancelled countdown is a no-op.
func (c *Controller) Cancel(id roster.ID) {
	c.mu.Lock()
	cd, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.active, id)
	cd.p.DeathDeadline = nil
	name := cd.p.Name
	c.mu.Unlock()

	c.notify.Broadcast(event.CountdownReset(name))
}

// Deadline reports the active deadline for a participant, if any.
func (c *Controller) Deadline(id roster.ID) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cd, ok := c.active[id]
	if !ok {
		return time.Time{}, false
	}
	return cd.deadline, true
}

// Snapshot returns a CountdownStarted per active countdown, with the
// duration recomputed as remaining time, for a late-joining observer.
func (c *Controller) Snapshot() []event.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Notification, 0, len(c.active))
	for _, cd := range c.active {
		out = append(out, event.CountdownStarted(cd.p.Name, cd.deadline.Sub(c.clk.Now()), cd.deadline))
	}
	return out
}

// supervise polls toward the deadline, sleeping in adaptive increments
// clamped to [PollMin, PollMax] so it stays responsive near expiry
// without busy-waiting far from it. It never mutates game state itself.
func (c *Controller) supervise(id roster.ID, token uuid.UUID, deadline time.Time) {
	for {
		remaining := deadline.Sub(c.clk.Now())
		if remaining <= 0 {
			select {
			case c.expiries <- Expiry{id: id, token: token}:
			case <-c.ctx.Done():
			}
			return
		}
		select {
		case <-c.clk.After(c.sleepFor(remaining)):
		case <-c.ctx.Done():
			return
		}

		c.mu.Lock()
		cd, ok := c.active[id]
		stale := !ok || cd.token != token
		c.mu.Unlock()
		if stale {
			return
		}
	}
}

// sleepFor clamps the next supervisor sleep to [PollMin, PollMax].
func (c *Controller) sleepFor(remaining time.Duration) time.Duration {
	if remaining > c.cfg.PollMax {
		return c.cfg.PollMax
	}
	if remaining < c.cfg.PollMin {
		return c.cfg.PollMin
	}
	return remaining
}

// Fire runs the death event for a posted expiry. It must be called from
// the goroutine that owns the roster. A stale token (cancelled or
// superseded since the post) is dropped silently.
func (c *Controller) Fire(e Expiry) {
	c.mu.Lock()
	cd, ok := c.active[e.id]
	if !ok || cd.token != e.token {
		c.mu.Unlock()
		return
	}
	delete(c.active, e.id)
	c.mu.Unlock()

	p := cd.p
	p.DeathDeadline = nil
	ev := c.events[c.rng.Intn(len(c.events))]
	c.fx.DisableMovement(p)
	if err := c.runHandler(ev, p); err != nil {
		c.log.Warn().Err(err).Str("event", ev.Key).Str("participant", p.Name).Msg("death event handler failed, eliminating anyway")
		p.Alive = false
	}
	c.log.Info().Str("event", ev.Key).Str("participant", p.Name).Msg("countdown expired")
	c.notify.Broadcast(event.CountdownEvent(p.Name, ev.Key, ev.Description))
}

func (c *Controller) runHandler(ev DeathEvent, p *roster.Participant) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("death event %s panicked: %v", ev.Key, r)
		}
	}()
	return ev.Handler(p)
}
