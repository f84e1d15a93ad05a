package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/srg/hrbridge/internal/heartrate"
	"github.com/srg/hrbridge/internal/output"
)

// scriptedSource returns one sample per poll interval, then reports the
// configured poll error once the script is exhausted.
type scriptedSource struct {
	mu       sync.Mutex
	samples  []heartrate.RawBeatSample
	pos      int
	gate     bool
	openErr  error
	pollErr  error
	opened   atomic.Bool
	closeCnt atomic.Int32
}

func (s *scriptedSource) Open(context.Context) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened.Store(true)
	return nil
}

func (s *scriptedSource) Poll() (heartrate.RawBeatSample, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate {
		s.gate = false
		return heartrate.RawBeatSample{}, false, nil
	}
	if s.pos >= len(s.samples) {
		if s.pollErr != nil {
			return heartrate.RawBeatSample{}, false, s.pollErr
		}
		return heartrate.RawBeatSample{}, false, nil
	}
	sample := s.samples[s.pos]
	s.pos++
	s.gate = true
	return sample, true, nil
}

func (s *scriptedSource) Close() error {
	s.closeCnt.Add(1)
	return nil
}

func (s *scriptedSource) consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

type recordingSink struct {
	mu       sync.Mutex
	readings []output.Reading
	failNext int
}

var errSinkDown = errors.New("sink down")

func (r *recordingSink) Send(_ context.Context, reading output.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return errSinkDown
	}
	r.readings = append(r.readings, reading)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) bpms() []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint8, 0, len(r.readings))
	for _, rd := range r.readings {
		out = append(out, rd.BPM)
	}
	return out
}

func (r *recordingSink) last() (output.Reading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.readings) == 0 {
		return output.Reading{}, false
	}
	return r.readings[len(r.readings)-1], true
}
