package heartrate

import (
	"github.com/sirupsen/logrus"
)

// EventTimeModulus is the wrap point of RawBeatSample.EventTime.
const EventTimeModulus uint16 = 1024

// Decoder converts raw samples into beat events, tracking the previous beat
// counter and event time across calls. A zero prevBeatCount means no beat has
// been observed yet in this session.
type Decoder struct {
	prevBeatCount uint8
	prevEventTime uint16
	logger        *logrus.Logger
}

// NewDecoder creates a decoder with empty state.
func NewDecoder(logger *logrus.Logger) *Decoder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Decoder{logger: logger}
}

// State returns the previously observed beat counter and event time.
func (d *Decoder) State() (beatCount uint8, eventTime uint16) {
	return d.prevBeatCount, d.prevEventTime
}

// Decode processes one raw sample. It returns an event only for a new heartbeat;
// samples without a valid BPM and repeated counter values yield false.
func (d *Decoder) Decode(sample RawBeatSample) (BeatEvent, bool) {
	if sample.ComputedBPM == 0 {
		return BeatEvent{}, false
	}

	if d.prevBeatCount == 0 {
		d.prevBeatCount = sample.BeatCount
		d.prevEventTime = sample.EventTime
		d.logger.WithFields(logrus.Fields{
			"bpm":        sample.ComputedBPM,
			"beat_count": sample.BeatCount,
			"event_time": sample.EventTime,
		}).Debug("First heart beat observed")
		return BeatEvent{BPM: sample.ComputedBPM}, true
	}

	countDiff := CountDiff(d.prevBeatCount, sample.BeatCount)
	timeDiff := TimeDiff(d.prevEventTime, sample.EventTime)
	skipped := countDiff > 1

	event := BeatEvent{BPM: sample.ComputedBPM}
	if countDiff > 0 {
		event.IntraBeatTime = timeDiff / countDiff
		event.HasIntraBeat = true
	}

	isNew := sample.BeatCount != d.prevBeatCount
	d.prevBeatCount = sample.BeatCount
	d.prevEventTime = sample.EventTime

	fields := logrus.Fields{
		"bpm":        sample.ComputedBPM,
		"beat_count": sample.BeatCount,
		"event_time": sample.EventTime,
		"skipped":    skipped,
	}
	if event.HasIntraBeat {
		fields["intra_beat_time"] = event.IntraBeatTime
	}
	d.logger.WithFields(fields).Debug("Heart beat sample decoded")

	if skipped {
		d.logger.WithFields(logrus.Fields{
			"count_diff": countDiff,
			"beat_count": sample.BeatCount,
		}).Warn("Skipped heart beat(s) detected, interval averaged over missed beats")
	}

	if !isNew {
		return BeatEvent{}, false
	}
	return event, true
}

// CountDiff returns how many beats elapsed between two rolling 8-bit counter values.
func CountDiff(prev, cur uint8) uint16 {
	return uint16(cur - prev)
}

// TimeDiff returns the elapsed event time between two rolling timestamps that
// wrap at EventTimeModulus.
func TimeDiff(prev, cur uint16) uint16 {
	if cur >= prev {
		return cur - prev
	}
	return cur + (EventTimeModulus - prev)
}
