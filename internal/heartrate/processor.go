package heartrate

import (
	"math"

	"github.com/sirupsen/logrus"
)

const (
	// missedBeatFactor scales the doubled previous interval into the upper acceptance bound.
	missedBeatFactor = 0.8
	// doubledBeatFactor scales the halved previous interval into the lower acceptance bound.
	doubledBeatFactor = 1.2
)

// Processor turns beat events into output BPM values according to a BpmMode.
// It remembers the last precise interval to reject implausible ones.
type Processor struct {
	prevIntraBeat    uint16
	hasPrevIntraBeat bool
	logger           *logrus.Logger
}

// NewProcessor creates a processor with no interval history.
func NewProcessor(logger *logrus.Logger) *Processor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Processor{logger: logger}
}

// PrevIntraBeat returns the last recorded interval, if any.
func (p *Processor) PrevIntraBeat() (uint16, bool) {
	return p.prevIntraBeat, p.hasPrevIntraBeat
}

// Process returns the BPM to emit for event, or false when nothing should be emitted:
// the event has no interval in an interval mode, or the interval was rejected as an outlier.
func (p *Processor) Process(event BeatEvent, mode BpmMode) (uint8, bool) {
	if mode == ModeComputed {
		return event.BPM, true
	}

	interval, ok := event.IntraBeat()
	if !ok {
		return 0, false
	}

	switch mode {
	case ModeIntraBeat:
		reject := p.checkThreshold(interval)
		p.record(interval)
		if reject {
			return 0, false
		}
		return BPMFromInterval(interval), true
	case ModeIntraBeatUnfiltered:
		p.record(interval)
		return BPMFromInterval(interval), true
	default:
		return 0, false
	}
}

func (p *Processor) record(interval uint16) {
	p.prevIntraBeat = interval
	p.hasPrevIntraBeat = true
}

// checkThreshold reports whether interval lies outside the window derived from the
// previous interval. Bounds are inclusive.
func (p *Processor) checkThreshold(interval uint16) bool {
	if !p.hasPrevIntraBeat {
		return false
	}

	prev := float64(p.prevIntraBeat)
	upper := prev * 2.0 * missedBeatFactor
	lower := (prev / 2.0) * doubledBeatFactor
	t := float64(interval)

	switch {
	case t > upper:
		p.logger.WithFields(logrus.Fields{
			"unfiltered_bpm":  rawBPM(interval),
			"intra_beat_time": interval,
			"threshold":       upper,
		}).Warn("Skipping heart rate - potential missed beat")
		return true
	case t < lower:
		p.logger.WithFields(logrus.Fields{
			"unfiltered_bpm":  rawBPM(interval),
			"intra_beat_time": interval,
			"threshold":       lower,
		}).Warn("Skipping heart rate - potential doubled beat")
		return true
	default:
		return false
	}
}

func rawBPM(interval uint16) float64 {
	if interval == 0 {
		return math.Inf(1)
	}
	return 60000.0 / float64(interval)
}

// BPMFromInterval converts a beat interval to whole beats per minute, rounding down.
// Results above 255 saturate, including the unbounded rate of a zero interval.
func BPMFromInterval(interval uint16) uint8 {
	bpm := math.Floor(rawBPM(interval))
	if bpm > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(bpm)
}
