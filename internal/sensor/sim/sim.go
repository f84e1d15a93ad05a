// Package sim is a software heart-rate strap. It produces beats at a
// configurable rate with jitter and can inject missed and doubled beats, which
// exercises the decoder and outlier rejection without hardware.
package sim

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrbridge/internal/heartrate"
	"github.com/srg/hrbridge/internal/sensor"
)

// DefaultBPM is the simulated heart rate when none is configured.
const DefaultBPM = 72.0

func init() {
	sensor.Register("sim", func(opts sensor.Options, logger *logrus.Logger) (sensor.Source, error) {
		return NewSource(opts, logger), nil
	})
}

// Source emits one sample per simulated heartbeat.
type Source struct {
	bpm         float64
	jitter      float64
	missedEvery int
	doubleEvery int

	rng    *rand.Rand
	now    func() time.Time
	logger *logrus.Logger

	clock    sensor.EventClock
	count    uint8
	beats    int
	nextBeat time.Time
	opened   bool
	closed   bool
}

// NewSource creates a simulator from the Sim* options.
func NewSource(opts sensor.Options, logger *logrus.Logger) *Source {
	if logger == nil {
		logger = logrus.New()
	}
	bpm := opts.SimBPM
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	seed := opts.SimSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{
		bpm:         bpm,
		jitter:      math.Max(0, opts.SimJitter),
		missedEvery: opts.SimMissedEvery,
		doubleEvery: opts.SimDoubleEvery,
		rng:         rand.New(rand.NewSource(seed)),
		now:         time.Now,
		logger:      logger,
	}
}

// Open starts the simulated strap.
func (s *Source) Open(context.Context) error {
	if s.closed {
		return sensor.ErrClosed
	}
	s.opened = true
	s.nextBeat = s.now().Add(s.interval())
	s.logger.WithFields(logrus.Fields{
		"bpm":          s.bpm,
		"jitter":       s.jitter,
		"missed_every": s.missedEvery,
		"double_every": s.doubleEvery,
	}).Info("Simulated heart rate strap started")
	return nil
}

// interval returns the next beat period with jitter applied.
func (s *Source) interval() time.Duration {
	period := 60.0 / s.bpm
	if s.jitter > 0 {
		period *= 1 + s.jitter*(2*s.rng.Float64()-1)
	}
	return time.Duration(period * float64(time.Second))
}

// Poll returns a sample once the next simulated beat is due.
func (s *Source) Poll() (heartrate.RawBeatSample, bool, error) {
	if s.closed {
		return heartrate.RawBeatSample{}, false, sensor.ErrClosed
	}
	if !s.opened {
		return heartrate.RawBeatSample{}, false, &sensor.ProtocolError{Op: "poll", Err: sensor.ErrNoDevice}
	}

	now := s.now()
	if now.Before(s.nextBeat) {
		return heartrate.RawBeatSample{}, false, nil
	}

	s.beats++
	period := s.interval()
	s.count++

	switch {
	case s.missedEvery > 0 && s.beats%s.missedEvery == 0:
		// the receiver misses this beat and only sees the following one
		period += s.interval()
		s.count++
		s.logger.WithField("beat", s.beats).Debug("Simulating missed beat")
	case s.doubleEvery > 0 && s.beats%s.doubleEvery == 0:
		// a spurious extra beat half way through the period
		s.count++
		s.logger.WithField("beat", s.beats).Debug("Simulating doubled beat")
	}

	s.nextBeat = s.nextBeat.Add(period)
	return heartrate.RawBeatSample{
		ComputedBPM: uint8(math.Min(math.Round(s.bpm), math.MaxUint8)),
		BeatCount:   s.count,
		EventTime:   s.clock.Advance(uint32(period.Seconds() * 1024)),
	}, true, nil
}

// Close stops the simulator.
func (s *Source) Close() error {
	if !s.closed {
		s.closed = true
		s.logger.Info("Simulated heart rate strap stopped")
	}
	return nil
}
