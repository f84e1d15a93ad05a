package output

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Options configures the sink built by New.
type Options struct {
	Mode        Mode
	OSCAddress  string
	OSCPath     string
	NATSURL     string
	NATSSubject string
	WSAddr      string

	// Console receives coloured per-reading lines from the log sink; nil disables them.
	Console io.Writer
}

// New builds the sink selected by opts.Mode.
func New(opts Options, logger *logrus.Logger) (Sink, error) {
	switch opts.Mode {
	case ModeOSC:
		return NewOSCSink(opts.OSCAddress, opts.OSCPath, logger)
	case ModeNATS:
		return NewNATSSink(opts.NATSURL, opts.NATSSubject, logger)
	case ModeWebSocket:
		s := NewWebSocketSink(logger)
		if err := s.Listen(opts.WSAddr); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return NewLogSink(logger, opts.Console), nil
	}
}
