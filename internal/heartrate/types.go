// Package heartrate decodes raw heart-rate monitor samples into beat events and
// turns those events into an output BPM value.
//
// The package is pure: it owns no goroutines and performs no I/O besides logging.
// Decoder and Processor instances carry per-session state and must not be shared
// between goroutines.
package heartrate

import (
	"fmt"
	"strings"
)

// RawBeatSample is a single heart-rate monitor reading as reported by the sensor firmware.
type RawBeatSample struct {
	ComputedBPM uint8  // Instantaneous BPM computed by the sensor; 0 means no valid reading
	BeatCount   uint8  // Rolling heartbeat counter, wraps at 256
	EventTime   uint16 // Rolling timestamp of the most recent beat, wraps at EventTimeModulus
}

// BeatEvent is emitted by the Decoder once per genuinely new heartbeat.
// Values are immutable and passed by value between goroutines.
type BeatEvent struct {
	BPM           uint8
	IntraBeatTime uint16 // Valid only when HasIntraBeat is set
	HasIntraBeat  bool
}

// IntraBeat returns the precise inter-beat interval if the event carries one.
func (e BeatEvent) IntraBeat() (uint16, bool) {
	return e.IntraBeatTime, e.HasIntraBeat
}

func (e BeatEvent) String() string {
	if !e.HasIntraBeat {
		return fmt.Sprintf("%d BPM", e.BPM)
	}
	return fmt.Sprintf("%d BPM (interval %d)", e.BPM, e.IntraBeatTime)
}

// BpmMode selects how the Processor derives the output BPM.
type BpmMode int

const (
	// ModeComputed passes the sensor's own averaged BPM through.
	ModeComputed BpmMode = iota
	// ModeIntraBeat derives BPM from the beat interval and rejects outliers.
	ModeIntraBeat
	// ModeIntraBeatUnfiltered derives BPM from the beat interval without outlier rejection.
	ModeIntraBeatUnfiltered
)

func (m BpmMode) String() string {
	switch m {
	case ModeComputed:
		return "computed"
	case ModeIntraBeat:
		return "intra-beat"
	case ModeIntraBeatUnfiltered:
		return "intra-beat-unfiltered"
	default:
		return fmt.Sprintf("BpmMode(%d)", int(m))
	}
}

// ParseBpmMode converts a CLI/config string to a BpmMode.
func ParseBpmMode(s string) (BpmMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "computed":
		return ModeComputed, nil
	case "intra-beat", "intrabeat", "intra_beat":
		return ModeIntraBeat, nil
	case "intra-beat-unfiltered", "intrabeatunfiltered", "intra_beat_unfiltered", "unfiltered":
		return ModeIntraBeatUnfiltered, nil
	default:
		return 0, fmt.Errorf("invalid bpm mode %q: use computed, intra-beat, or intra-beat-unfiltered", s)
	}
}

// MarshalText implements encoding.TextMarshaler so modes round-trip through YAML.
func (m BpmMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *BpmMode) UnmarshalText(text []byte) error {
	parsed, err := ParseBpmMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
