package ant

import (
	"bytes"
	"errors"
	"time"
)

// fakePort emulates an ANT stick: every configuration frame is acknowledged
// and broadcast frames can be queued for reading.
type fakePort struct {
	in       bytes.Buffer
	written  [][]byte
	reject   byte // message id to reject, 0 for none
	silent   bool // never answer
	readErr  error
	closed   bool
	timeouts []time.Duration
	maxRead  int
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if p.in.Len() == 0 {
		return 0, nil
	}
	if p.maxRead > 0 && len(b) > p.maxRead {
		b = b[:p.maxRead]
	}
	return p.in.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.closed {
		return 0, errors.New("port closed")
	}
	frame := append([]byte(nil), b...)
	p.written = append(p.written, frame)
	if p.silent || len(frame) < 3 {
		return len(b), nil
	}

	id := frame[2]
	switch id {
	case msgResetSystem:
		p.in.Write(encode(msgStartupMessage, 0x20))
	case msgCloseChannel:
	default:
		code := byte(responseNoError)
		if id == p.reject {
			code = 0x15
		}
		p.in.Write(encode(msgChannelEvent, channelNum, id, code))
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) queueHRM(eventTime uint16, beatCount, hr uint8) {
	p.in.Write(encode(msgBroadcastData, channelNum, 0x04, 0xFF, 0xFF, 0xFF,
		byte(eventTime), byte(eventTime>>8), beatCount, hr))
}

func (p *fakePort) sentIDs() []byte {
	ids := make([]byte, 0, len(p.written))
	for _, f := range p.written {
		ids = append(ids, f[2])
	}
	return ids
}
