package heartrate

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDecoder() (*Decoder, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewDecoder(logger), hook
}

func warnings(hook *logtest.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e)
		}
	}
	return out
}

func TestNewDecoder_NilLogger(t *testing.T) {
	d := NewDecoder(nil)
	require.NotNil(t, d)

	count, ts := d.State()
	assert.Equal(t, uint8(0), count)
	assert.Equal(t, uint16(0), ts)
}

func TestDecoder_ZeroBPMIsIgnored(t *testing.T) {
	t.Run("before first beat", func(t *testing.T) {
		d, _ := newTestDecoder()

		_, ok := d.Decode(RawBeatSample{ComputedBPM: 0, BeatCount: 5, EventTime: 300})
		assert.False(t, ok)

		count, ts := d.State()
		assert.Equal(t, uint8(0), count)
		assert.Equal(t, uint16(0), ts)
	})

	t.Run("after beats were observed", func(t *testing.T) {
		d, _ := newTestDecoder()
		_, ok := d.Decode(RawBeatSample{ComputedBPM: 70, BeatCount: 10, EventTime: 100})
		require.True(t, ok)

		_, ok = d.Decode(RawBeatSample{ComputedBPM: 0, BeatCount: 11, EventTime: 900})
		assert.False(t, ok)

		count, ts := d.State()
		assert.Equal(t, uint8(10), count)
		assert.Equal(t, uint16(100), ts)
	})
}

func TestDecoder_FirstBeatHasNoInterval(t *testing.T) {
	d, _ := newTestDecoder()

	event, ok := d.Decode(RawBeatSample{ComputedBPM: 70, BeatCount: 1, EventTime: 0})

	require.True(t, ok)
	assert.Equal(t, uint8(70), event.BPM)
	_, has := event.IntraBeat()
	assert.False(t, has)

	count, ts := d.State()
	assert.Equal(t, uint8(1), count)
	assert.Equal(t, uint16(0), ts)
}

func TestDecoder_NonRepeatingCountsAlwaysCarryInterval(t *testing.T) {
	d, _ := newTestDecoder()

	var eventTime uint16
	for i := 1; i <= 600; i++ {
		eventTime = (eventTime + 800) % EventTimeModulus
		event, ok := d.Decode(RawBeatSample{
			ComputedBPM: 75,
			BeatCount:   uint8(i%255 + 1),
			EventTime:   eventTime,
		})
		require.True(t, ok, "sample %d must produce an event", i)
		if i == 1 {
			continue
		}
		_, has := event.IntraBeat()
		assert.True(t, has, "sample %d must carry an interval", i)
	}
}

func TestDecoder_BeatCountWraparound(t *testing.T) {
	d, hook := newTestDecoder()
	_, ok := d.Decode(RawBeatSample{ComputedBPM: 80, BeatCount: 250, EventTime: 0})
	require.True(t, ok)

	event, ok := d.Decode(RawBeatSample{ComputedBPM: 80, BeatCount: 3, EventTime: 900})
	require.True(t, ok, "skipped beats must not suppress the event")

	interval, has := event.IntraBeat()
	require.True(t, has)
	assert.Equal(t, uint16(900/9), interval)

	warns := warnings(hook)
	require.Len(t, warns, 1)
	assert.Equal(t, uint16(9), warns[0].Data["count_diff"])
}

func TestDecoder_EventTimeWraparound(t *testing.T) {
	d, hook := newTestDecoder()
	_, ok := d.Decode(RawBeatSample{ComputedBPM: 60, BeatCount: 7, EventTime: 1000})
	require.True(t, ok)

	event, ok := d.Decode(RawBeatSample{ComputedBPM: 60, BeatCount: 8, EventTime: 50})
	require.True(t, ok)

	interval, has := event.IntraBeat()
	require.True(t, has)
	assert.Equal(t, uint16(74), interval)
	assert.Empty(t, warnings(hook))
}

func TestDecoder_DuplicateSampleIsIgnored(t *testing.T) {
	d, _ := newTestDecoder()
	_, ok := d.Decode(RawBeatSample{ComputedBPM: 70, BeatCount: 1, EventTime: 0})
	require.True(t, ok)

	sample := RawBeatSample{ComputedBPM: 72, BeatCount: 2, EventTime: 850}

	_, ok = d.Decode(sample)
	assert.True(t, ok, "first occurrence is a new beat")

	_, ok = d.Decode(sample)
	assert.False(t, ok, "repeated counter value is not a new beat")

	count, ts := d.State()
	assert.Equal(t, uint8(2), count)
	assert.Equal(t, uint16(850), ts)
}

func TestDecoder_DebugRecordPerSample(t *testing.T) {
	d, hook := newTestDecoder()
	d.Decode(RawBeatSample{ComputedBPM: 70, BeatCount: 1, EventTime: 0})
	d.Decode(RawBeatSample{ComputedBPM: 72, BeatCount: 2, EventTime: 850})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, uint8(72), entry.Data["bpm"])
	assert.Equal(t, uint8(2), entry.Data["beat_count"])
	assert.Equal(t, uint16(850), entry.Data["event_time"])
	assert.Equal(t, uint16(850), entry.Data["intra_beat_time"])
	assert.Equal(t, false, entry.Data["skipped"])
}

func TestCountDiff(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur uint8
		want      uint16
	}{
		{name: "next beat", prev: 1, cur: 2, want: 1},
		{name: "same value", prev: 42, cur: 42, want: 0},
		{name: "wraps at 256", prev: 250, cur: 3, want: 9},
		{name: "wraps to zero", prev: 255, cur: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountDiff(tt.prev, tt.cur))
		})
	}
}

func TestTimeDiff(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur uint16
		want      uint16
	}{
		{name: "forward", prev: 100, cur: 900, want: 800},
		{name: "equal", prev: 512, cur: 512, want: 0},
		{name: "wraps at modulus", prev: 1000, cur: 50, want: 74},
		{name: "wraps from last tick", prev: 1023, cur: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeDiff(tt.prev, tt.cur))
		})
	}
}
