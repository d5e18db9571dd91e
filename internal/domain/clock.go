package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for query windows and captions. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the package clock, in UTC.
func Now() time.Time { return clock.Now().UTC() }

// TrailingWindow returns the day window of the given length that ends
// yesterday. Both bounds are midnight UTC.
func TrailingWindow(days int) (from, to time.Time) {
	today := Now().Truncate(24 * time.Hour)
	to = today.AddDate(0, 0, -1)
	from = to.AddDate(0, 0, -days)
	return from, to
}
