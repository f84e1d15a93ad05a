package heartrate

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func interval(bpm uint8, t uint16) BeatEvent {
	return BeatEvent{BPM: bpm, IntraBeatTime: t, HasIntraBeat: true}
}

type ProcessorTestSuite struct {
	suite.Suite

	hook      *logtest.Hook
	processor *Processor
}

func (s *ProcessorTestSuite) SetupTest() {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s.hook = hook
	s.processor = NewProcessor(logger)
}

func (s *ProcessorTestSuite) prime(t uint16) {
	_, _ = s.processor.Process(interval(60, t), ModeIntraBeatUnfiltered)
	s.hook.Reset()
}

func (s *ProcessorTestSuite) TestComputedMode() {
	s.Run("returns sensor bpm without interval", func() {
		bpm, ok := s.processor.Process(BeatEvent{BPM: 72}, ModeComputed)
		s.True(ok)
		s.Equal(uint8(72), bpm)
	})

	s.Run("ignores interval and history", func() {
		s.prime(800)

		bpm, ok := s.processor.Process(interval(72, 100), ModeComputed)
		s.True(ok)
		s.Equal(uint8(72), bpm)

		prev, has := s.processor.PrevIntraBeat()
		s.True(has)
		s.Equal(uint16(800), prev, "computed mode must not touch interval history")
	})
}

func (s *ProcessorTestSuite) TestIntraBeatMode_NoInterval() {
	_, ok := s.processor.Process(BeatEvent{BPM: 70}, ModeIntraBeat)
	s.False(ok)

	_, has := s.processor.PrevIntraBeat()
	s.False(has)
}

func (s *ProcessorTestSuite) TestIntraBeatMode_FirstIntervalAccepted() {
	bpm, ok := s.processor.Process(interval(72, 850), ModeIntraBeat)
	s.True(ok)
	s.Equal(uint8(70), bpm)
}

func (s *ProcessorTestSuite) TestIntraBeatMode_MissedBeatRejected() {
	s.prime(800)

	_, ok := s.processor.Process(interval(70, 1400), ModeIntraBeat)
	s.False(ok)

	entry := s.hook.LastEntry()
	s.Require().NotNil(entry)
	s.Equal(logrus.WarnLevel, entry.Level)
	s.Contains(entry.Message, "missed beat")
	s.InDelta(1280.0, entry.Data["threshold"], 0.001)

	prev, _ := s.processor.PrevIntraBeat()
	s.Equal(uint16(1400), prev, "rejected interval still becomes the new reference")
}

func (s *ProcessorTestSuite) TestIntraBeatMode_DoubledBeatRejected() {
	s.prime(850)

	_, ok := s.processor.Process(interval(75, 425), ModeIntraBeat)
	s.False(ok)

	entry := s.hook.LastEntry()
	s.Require().NotNil(entry)
	s.Contains(entry.Message, "doubled beat")
	s.InDelta(510.0, entry.Data["threshold"], 0.001)
}

func (s *ProcessorTestSuite) TestIntraBeatMode_WithinBounds() {
	s.prime(800)

	bpm, ok := s.processor.Process(interval(60, 1000), ModeIntraBeat)
	s.True(ok)
	s.Equal(uint8(60), bpm)
	s.Empty(s.hook.AllEntries())
}

func (s *ProcessorTestSuite) TestIntraBeatMode_BoundsAreInclusive() {
	s.Run("upper bound", func() {
		s.prime(1000)
		bpm, ok := s.processor.Process(interval(40, 1600), ModeIntraBeat)
		s.True(ok)
		s.Equal(uint8(37), bpm)
	})

	s.Run("lower bound", func() {
		s.prime(1000)
		bpm, ok := s.processor.Process(interval(100, 600), ModeIntraBeat)
		s.True(ok)
		s.Equal(uint8(100), bpm)
	})
}

func (s *ProcessorTestSuite) TestIntraBeatUnfilteredMode() {
	s.prime(800)

	for _, t := range []uint16{1400, 300, 2000, 0} {
		_, ok := s.processor.Process(interval(70, t), ModeIntraBeatUnfiltered)
		s.True(ok, "interval %d must never be rejected", t)

		prev, has := s.processor.PrevIntraBeat()
		s.True(has)
		s.Equal(t, prev)
	}
	s.Empty(s.hook.AllEntries())

	_, ok := s.processor.Process(BeatEvent{BPM: 70}, ModeIntraBeatUnfiltered)
	s.False(ok)
}

func TestProcessorTestSuite(t *testing.T) {
	suite.Run(t, new(ProcessorTestSuite))
}

func TestBPMFromInterval(t *testing.T) {
	tests := []struct {
		interval uint16
		want     uint8
	}{
		{interval: 1000, want: 60},
		{interval: 850, want: 70},
		{interval: 425, want: 141},
		{interval: 235, want: 255},
		{interval: 1, want: 255},
		{interval: 0, want: 255},
		{interval: 65535, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BPMFromInterval(tt.interval), "interval %d", tt.interval)
	}
}

func TestParseBpmMode(t *testing.T) {
	tests := []struct {
		input   string
		want    BpmMode
		wantErr bool
	}{
		{input: "computed", want: ModeComputed},
		{input: "intra-beat", want: ModeIntraBeat},
		{input: "Intra-Beat", want: ModeIntraBeat},
		{input: "intra-beat-unfiltered", want: ModeIntraBeatUnfiltered},
		{input: "unfiltered", want: ModeIntraBeatUnfiltered},
		{input: "average", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBpmMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustRoundTrip(t, got))
		})
	}
}

func mustRoundTrip(t *testing.T, m BpmMode) BpmMode {
	t.Helper()
	text, err := m.MarshalText()
	require.NoError(t, err)
	var out BpmMode
	require.NoError(t, out.UnmarshalText(text))
	return out
}
