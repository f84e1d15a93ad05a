package ant

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/hrbridge/internal/heartrate"
)

const hrmPageLength = 8

// hrmPage is the common part of every heart-rate monitor data page.
type hrmPage struct {
	Number     byte
	Toggle     bool
	EventTime  uint16 // 1/1024 s
	BeatCount  uint8
	ComputedHR uint8
}

// parseHRMPage decodes an 8-byte broadcast payload. Bytes 4-7 carry the same
// fields on every page.
func parseHRMPage(payload []byte) (hrmPage, error) {
	if len(payload) != hrmPageLength {
		return hrmPage{}, fmt.Errorf("heart rate page must be %d bytes, got %d", hrmPageLength, len(payload))
	}
	return hrmPage{
		Number:     payload[0] & 0x7F,
		Toggle:     payload[0]&0x80 != 0,
		EventTime:  binary.LittleEndian.Uint16(payload[4:6]),
		BeatCount:  payload[6],
		ComputedHR: payload[7],
	}, nil
}

func (p hrmPage) sample() heartrate.RawBeatSample {
	return heartrate.RawBeatSample{
		ComputedBPM: p.ComputedHR,
		BeatCount:   p.BeatCount,
		EventTime:   p.EventTime,
	}
}
