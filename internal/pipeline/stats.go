package pipeline

import (
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Stats counts pipeline activity. Counters are updated by the loop that owns
// them and may be read at any time.
type Stats struct {
	Samples     int64 // samples returned by the sensor
	Events      int64 // beat events published by the decoder
	Accepted    int64 // values produced by the processor
	Rejected    int64 // events the processor filtered out
	Sent        int64 // values delivered to the sink
	SendErrors  int64
	Overwritten int64 // events replaced before the consumer took them
}

func (s *Stats) add(counter *int64) {
	atomic.AddInt64(counter, 1)
}

// Snapshot returns a consistent-per-field copy.
func (s *Stats) Snapshot() Stats {
	return Stats{
		Samples:     atomic.LoadInt64(&s.Samples),
		Events:      atomic.LoadInt64(&s.Events),
		Accepted:    atomic.LoadInt64(&s.Accepted),
		Rejected:    atomic.LoadInt64(&s.Rejected),
		Sent:        atomic.LoadInt64(&s.Sent),
		SendErrors:  atomic.LoadInt64(&s.SendErrors),
		Overwritten: atomic.LoadInt64(&s.Overwritten),
	}
}

// Summary returns the counters in a stable order for logging and JSON output.
func (s *Stats) Summary() *orderedmap.OrderedMap[string, int64] {
	snap := s.Snapshot()
	m := orderedmap.New[string, int64]()
	m.Set("samples", snap.Samples)
	m.Set("events", snap.Events)
	m.Set("overwritten", snap.Overwritten)
	m.Set("accepted", snap.Accepted)
	m.Set("rejected", snap.Rejected)
	m.Set("sent", snap.Sent)
	m.Set("send_errors", snap.SendErrors)
	return m
}
