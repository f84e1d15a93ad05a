package sensor

import "github.com/srg/hrbridge/internal/heartrate"

// EventClock converts beat timestamps reported in 1/1024 s ticks into the
// millisecond event time the decoder expects.
//
// The event time is a running millisecond count truncated to 16 bits, so beat
// intervals of any plausible length reach the decoder as a plain difference.
// When the count would overflow, the clock steps down by
// heartrate.EventTimeModulus instead, which the decoder's wraparound rule maps
// back onto the true interval. Only an interval of a full modulus or longer
// that crosses the 16-bit boundary is reported long by one modulus.
//
// Feed the clock once per reported sample: the decoder only sees one step at a
// time, so several steps between samples must be folded into one call.
type EventClock struct {
	ticks   uint64
	ms      uint64
	prevRaw uint16
	last    uint16
	started bool
}

// Observe records a raw 16-bit tick counter value and returns the decoder event time.
// Hardware counters wrap at their own width, so only deltas are accumulated.
func (c *EventClock) Observe(raw uint16) uint16 {
	if c.started {
		c.ticks += uint64(raw - c.prevRaw)
	}
	c.prevRaw = raw
	c.started = true
	return c.step()
}

// Advance adds a tick delta (for sources that report intervals, not timestamps)
// and returns the decoder event time.
func (c *EventClock) Advance(ticks uint32) uint16 {
	c.ticks += uint64(ticks)
	c.started = true
	return c.step()
}

func (c *EventClock) step() uint16 {
	ms := c.ticks * 1000 / 1024
	d := ms - c.ms
	c.ms = ms
	if d == 0 {
		return c.last
	}

	modulus := uint64(heartrate.EventTimeModulus)
	next := uint64(c.last) + d
	switch {
	case next <= 0xFFFF:
		c.last = uint16(next)
	case d < modulus:
		c.last = uint16(next - modulus)
	default:
		c.last = uint16(next)
	}
	return c.last
}
