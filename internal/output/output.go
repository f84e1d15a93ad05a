// Package output delivers processed heart-rate values to their consumer.
package output

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/srg/hrbridge/internal/heartrate"
)

// ErrNotConnected indicates a send on a sink whose transport is not available.
var ErrNotConnected = errors.New("output sink not connected")

// Mode selects the output sink.
type Mode int

const (
	// ModeLog writes readings to the log only.
	ModeLog Mode = iota
	// ModeOSC sends the normalized value as an OSC float (VRChat avatar parameter).
	ModeOSC
	// ModeNATS publishes JSON readings to a NATS subject.
	ModeNATS
	// ModeWebSocket broadcasts JSON readings to connected WebSocket clients.
	ModeWebSocket
)

func (m Mode) String() string {
	switch m {
	case ModeLog:
		return "log"
	case ModeOSC:
		return "osc"
	case ModeNATS:
		return "nats"
	case ModeWebSocket:
		return "ws"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a CLI/config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "log":
		return ModeLog, nil
	case "osc", "vrchat":
		return ModeOSC, nil
	case "nats":
		return ModeNATS, nil
	case "ws", "websocket":
		return ModeWebSocket, nil
	default:
		return 0, fmt.Errorf("invalid output mode %q: use log, osc, nats, or ws", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Reading is one output value.
type Reading struct {
	BPM     uint8
	Mode    heartrate.BpmMode
	Session string
	Time    time.Time
}

// Normalized returns the reading mapped onto [-1, 1].
func (r Reading) Normalized() float32 {
	return Normalize(r.BPM)
}

// Sink accepts readings. Send is called from the consumer goroutine only.
type Sink interface {
	Send(ctx context.Context, r Reading) error
	Close() error
}

// Normalize maps 0-255 BPM linearly onto -1.0..1.0.
func Normalize(bpm uint8) float32 {
	return (float32(bpm)/255.0)*2.0 - 1.0
}

// payload is the JSON form of a Reading used by the NATS and WebSocket sinks.
type payload struct {
	Session    string  `json:"session"`
	Ts         int64   `json:"ts"`
	HR         uint8   `json:"hr"`
	Normalized float32 `json:"normalized"`
	Mode       string  `json:"mode"`
}

func newPayload(r Reading) payload {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return payload{
		Session:    r.Session,
		Ts:         ts.UnixMilli(),
		HR:         r.BPM,
		Normalized: r.Normalized(),
		Mode:       r.Mode.String(),
	}
}
