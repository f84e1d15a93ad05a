package ant

import (
	"errors"
	"fmt"
)

const syncByte = 0xA4

// maxPayload bounds the data length accepted by the frame parser.
const maxPayload = 32

// Message IDs used by the heart-rate display profile.
const (
	msgChannelEvent   = 0x40
	msgAssignChannel  = 0x42
	msgChannelPeriod  = 0x43
	msgSearchTimeout  = 0x44
	msgChannelRFFreq  = 0x45
	msgSetNetworkKey  = 0x46
	msgResetSystem    = 0x4A
	msgOpenChannel    = 0x4B
	msgCloseChannel   = 0x4C
	msgBroadcastData  = 0x4E
	msgChannelID      = 0x51
	msgStartupMessage = 0x6F
)

// Channel event and response codes.
const (
	responseNoError      = 0x00
	eventRxSearchTimeout = 0x01
	eventRxFail          = 0x02
	eventChannelClosed   = 0x07
	eventRxFailGoSearch  = 0x08
)

// ANT+ heart-rate monitor profile parameters.
const (
	hrmDeviceType    = 120
	hrmChannelPeriod = 8070 // 4.06 Hz
	antPlusRFFreq    = 57   // 2457 MHz
	channelTypeRx    = 0x00 // bidirectional slave
	searchTimeout    = 12   // 12 * 2.5s
)

// antPlusNetworkKey is the public ANT+ managed network key.
var antPlusNetworkKey = [8]byte{0xB9, 0xA5, 0x21, 0xFB, 0xBD, 0x72, 0xC3, 0x45}

var errChecksum = errors.New("checksum mismatch")

// message is a decoded ANT serial frame.
type message struct {
	ID   byte
	Data []byte
}

func (m message) String() string {
	return fmt.Sprintf("ant message 0x%02X % X", m.ID, m.Data)
}

// encode builds a serial frame: SYNC, LEN, ID, DATA..., CHECKSUM.
func encode(id byte, data ...byte) []byte {
	frame := make([]byte, 0, len(data)+4)
	frame = append(frame, syncByte, byte(len(data)), id)
	frame = append(frame, data...)
	return append(frame, checksum(frame))
}

func checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum ^= c
	}
	return sum
}

type parserState int

const (
	stateSync parserState = iota
	stateLength
	stateID
	stateData
	stateChecksum
)

// parser reassembles frames from a byte stream. Bytes before a sync byte and
// frames with a bad checksum are discarded.
type parser struct {
	state  parserState
	length int
	frame  []byte
}

// feed consumes b and returns every complete frame found. Checksum failures are
// reported through bad but do not stop parsing.
func (p *parser) feed(b []byte) (msgs []message, bad int) {
	for _, c := range b {
		switch p.state {
		case stateSync:
			if c == syncByte {
				p.frame = append(p.frame[:0], c)
				p.state = stateLength
			}
		case stateLength:
			if int(c) > maxPayload {
				p.state = stateSync
				continue
			}
			p.length = int(c)
			p.frame = append(p.frame, c)
			p.state = stateID
		case stateID:
			p.frame = append(p.frame, c)
			if p.length == 0 {
				p.state = stateChecksum
			} else {
				p.state = stateData
			}
		case stateData:
			p.frame = append(p.frame, c)
			if len(p.frame) == p.length+3 {
				p.state = stateChecksum
			}
		case stateChecksum:
			p.state = stateSync
			if checksum(p.frame) != c {
				bad++
				continue
			}
			data := make([]byte, p.length)
			copy(data, p.frame[3:])
			msgs = append(msgs, message{ID: p.frame[2], Data: data})
		}
	}
	return msgs, bad
}
