package blehrm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/srg/hrbridge/internal/heartrate"
	"github.com/srg/hrbridge/internal/sensor"
)

// Heart Rate Measurement flag bits.
const (
	flagHRUint16      = 1 << 0
	flagEnergyPresent = 1 << 3
	flagRRPresent     = 1 << 4
)

var errShortMeasurement = errors.New("heart rate measurement too short")

// measurement is a decoded Heart Rate Measurement (0x2A37) notification.
type measurement struct {
	HeartRate uint16
	RR        []uint16 // 1/1024 s
}

func parseMeasurement(data []byte) (measurement, error) {
	if len(data) < 2 {
		return measurement{}, errShortMeasurement
	}
	flags := data[0]
	pos := 1

	var m measurement
	if flags&flagHRUint16 != 0 {
		if len(data) < pos+2 {
			return measurement{}, errShortMeasurement
		}
		m.HeartRate = binary.LittleEndian.Uint16(data[pos:])
		pos += 2
	} else {
		m.HeartRate = uint16(data[pos])
		pos++
	}

	if flags&flagEnergyPresent != 0 {
		if len(data) < pos+2 {
			return measurement{}, errShortMeasurement
		}
		pos += 2
	}

	if flags&flagRRPresent != 0 {
		rest := data[pos:]
		if len(rest)%2 != 0 {
			return measurement{}, fmt.Errorf("odd RR interval payload length %d", len(rest))
		}
		for i := 0; i < len(rest); i += 2 {
			m.RR = append(m.RR, binary.LittleEndian.Uint16(rest[i:]))
		}
	}
	return m, nil
}

// beatTracker synthesises the rolling beat counter and event time an ANT+ strap
// would report from BLE measurements.
type beatTracker struct {
	count uint8
	clock sensor.EventClock
}

// next folds m into the counters. Each RR interval is one beat; measurements
// without RR intervals count as one beat at the reported rate.
func (t *beatTracker) next(m measurement) heartrate.RawBeatSample {
	bpm := m.HeartRate
	if bpm > 255 {
		bpm = 255
	}

	var ticks uint32
	switch {
	case len(m.RR) > 0:
		for _, rr := range m.RR {
			t.count++
			ticks += uint32(rr)
		}
	case bpm > 0:
		t.count++
		ticks = 60 * 1024 / uint32(bpm)
	}
	eventTime := t.clock.Advance(ticks)

	return heartrate.RawBeatSample{
		ComputedBPM: uint8(bpm),
		BeatCount:   t.count,
		EventTime:   eventTime,
	}
}
