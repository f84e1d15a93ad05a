package sensor

import (
	"fmt"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/hrbridge/internal/heartrate"
)

func TestEventClock_Observe(t *testing.T) {
	var c EventClock

	assert.Equal(t, uint16(0), c.Observe(5000), "first observation starts the clock")
	assert.Equal(t, uint16(1000), c.Observe(5000+1024))
	assert.Equal(t, uint16(1000), c.Observe(5000+1024), "repeated timestamps do not advance")
	assert.Equal(t, uint16(2000), c.Observe(5000+2048))
}

func TestEventClock_ObserveAcrossCounterWrap(t *testing.T) {
	var c EventClock

	c.Observe(65000)
	// 65000 -> 488 is 1024 ticks across the 16-bit wrap
	assert.Equal(t, uint16(1000), c.Observe(488))
}

func TestEventClock_Advance(t *testing.T) {
	var c EventClock

	assert.Equal(t, uint16(800), c.Advance(820))
	// 1640 ticks is 1601 ms
	assert.Equal(t, uint16(1601), c.Advance(820))
	assert.Equal(t, uint16(1601), c.Advance(0))
}

// decodeIntervals runs beats spaced by the given tick intervals through the
// clock and the decoder and returns the decoded intervals in milliseconds.
func decodeIntervals(t *testing.T, intervals []uint32) []uint16 {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	dec := heartrate.NewDecoder(logger)

	var (
		c     EventClock
		count uint8 = 1
		out   []uint16
	)
	_, ok := dec.Decode(heartrate.RawBeatSample{ComputedBPM: 60, BeatCount: count, EventTime: c.Advance(0)})
	require.True(t, ok)
	for _, ticks := range intervals {
		count++
		event, ok := dec.Decode(heartrate.RawBeatSample{ComputedBPM: 60, BeatCount: count, EventTime: c.Advance(ticks)})
		require.True(t, ok)
		if interval, ok := event.IntraBeat(); ok {
			out = append(out, interval)
		}
	}
	return out
}

func TestEventClock_SlowHeartRatesKeepTheirInterval(t *testing.T) {
	tests := []struct {
		bpm  int
		want uint8
	}{
		{bpm: 40, want: 40},
		{bpm: 45, want: 45},
		{bpm: 50, want: 50},
		{bpm: 55, want: 55},
		{bpm: 72, want: 72},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d bpm", tt.bpm), func(t *testing.T) {
			ticks := uint32(60 * 1024 / tt.bpm)
			intervals := decodeIntervals(t, []uint32{ticks, ticks, ticks, ticks, ticks})
			require.NotEmpty(t, intervals)
			for _, interval := range intervals {
				assert.InDelta(t, int(tt.want), int(heartrate.BPMFromInterval(interval)), 1,
					"%d BPM decoded from %d ms", tt.bpm, interval)
			}
		})
	}
}

func TestEventClock_NormalRatesStayExactAcrossOverflow(t *testing.T) {
	// 1024 ticks per beat is 1000 ms; 80 beats run well past the 16-bit boundary
	intervals := make([]uint32, 80)
	for i := range intervals {
		intervals[i] = 820
	}

	for i, interval := range decodeIntervals(t, intervals) {
		assert.InDelta(t, 800, int(interval), 1, "beat %d", i)
	}
}

func TestEventClock_LongIntervalAcrossOverflow(t *testing.T) {
	var c EventClock

	c.Advance(65000 * 1024 / 1000)
	before := c.Advance(0)
	after := c.Advance(1229) // 1200 ms

	// the only case that cannot be represented: reported one modulus long
	diff := heartrate.TimeDiff(before, after)
	assert.Equal(t, int(1200+heartrate.EventTimeModulus), int(diff))
}
