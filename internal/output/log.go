package output

import (
	"context"
	"io"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// LogSink records readings as log entries and optionally prints a coloured
// line per reading to a console writer.
type LogSink struct {
	logger  *logrus.Logger
	console io.Writer
}

// NewLogSink creates a log sink. console may be nil.
func NewLogSink(logger *logrus.Logger, console io.Writer) *LogSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{logger: logger, console: console}
}

// Send logs the reading. It never fails.
func (s *LogSink) Send(_ context.Context, r Reading) error {
	s.logger.WithFields(logrus.Fields{
		"bpm":     r.BPM,
		"mode":    r.Mode.String(),
		"session": r.Session,
	}).Infof("Heart rate: %d BPM (mode: %s)", r.BPM, r.Mode)

	if s.console != nil {
		_, _ = zoneColor(r.BPM).Fprintf(s.console, "♥ %3d BPM\n", r.BPM)
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error {
	return nil
}

func zoneColor(bpm uint8) *color.Color {
	switch {
	case bpm < 100:
		return color.New(color.FgGreen)
	case bpm < 140:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}
