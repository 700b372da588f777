package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the session's single time source. Every deadline in the system
// is an absolute timestamp in this clock's space, so observers can compute
// remaining time locally without asking the authority again.
//
// In production this is clockwork.NewRealClock(); tests use a FakeClock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

func NewReal() Clock { return clockwork.NewRealClock() }

// Remaining reports how long until deadline, clamped at zero.
func Remaining(c Clock, deadline time.Time) time.Duration {
	r := deadline.Sub(c.Now())
	if r < 0 {
		return 0
	}
	return r
}
