// Package ant reads an ANT+ heart-rate strap through a USB ANT stick that
// exposes a serial interface (Dynastream/Garmin USB2 and USB-m sticks).
package ant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/hrbridge/internal/heartrate"
	"github.com/srg/hrbridge/internal/sensor"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaudRate matches the ANT USB-m stick; USB2 sticks use 57600.
	DefaultBaudRate = 115200

	// DefaultReadTimeout bounds a single Poll read.
	DefaultReadTimeout = time.Millisecond

	// DefaultSetupTimeout bounds the wait for each configuration response.
	DefaultSetupTimeout = 2 * time.Second

	// dynastreamVID is the USB vendor id of ANT sticks.
	dynastreamVID = "0FCF"

	rxBufferSize = 512
	channelNum   = 0
	networkNum   = 0
)

// Port is the subset of serial.Port used by the driver.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// ListPorts enumerates serial ports (can be overridden in tests).
var ListPorts = enumerator.GetDetailedPortsList

// OpenPort opens a serial port (can be overridden in tests).
var OpenPort = func(name string, baudRate int) (Port, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

func init() {
	sensor.Register("ant", func(opts sensor.Options, logger *logrus.Logger) (sensor.Source, error) {
		return NewSource(opts, logger), nil
	})
}

// Source is an ANT+ heart-rate display channel on a serial ANT stick.
type Source struct {
	opts   sensor.Options
	logger *logrus.Logger

	portName string
	port     Port
	rx       *ringbuffer.RingBuffer
	parser   parser
	pending  []heartrate.RawBeatSample
	clock    sensor.EventClock
	readBuf  []byte
	closed   bool
}

// NewSource creates an unopened source. Zero option values fall back to defaults.
func NewSource(opts sensor.Options, logger *logrus.Logger) *Source {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.SetupTimeout == 0 {
		opts.SetupTimeout = DefaultSetupTimeout
	}
	return &Source{
		opts:    opts,
		logger:  logger,
		rx:      ringbuffer.New(rxBufferSize),
		readBuf: make([]byte, 64),
	}
}

// PortName returns the serial port in use, once opened.
func (s *Source) PortName() string {
	return s.portName
}

// Open selects the ANT stick, sets the network key and opens a heart-rate channel.
func (s *Source) Open(ctx context.Context) error {
	if s.closed {
		return sensor.ErrClosed
	}

	name := s.opts.Port
	if name == "" {
		var err error
		if name, err = discoverPort(s.logger); err != nil {
			return err
		}
	}

	port, err := OpenPort(name, s.opts.BaudRate)
	if err != nil {
		return &sensor.SetupError{Stage: sensor.StageOpen, Err: fmt.Errorf("failed to open %s: %w", name, err)}
	}
	s.port = port
	s.portName = name

	s.logger.WithFields(logrus.Fields{
		"port":      name,
		"baud_rate": s.opts.BaudRate,
	}).Info("Opened ANT stick")

	if err := s.configure(ctx); err != nil {
		_ = s.port.Close()
		s.port = nil
		return &sensor.SetupError{Stage: sensor.StageConfigure, Err: err}
	}

	if err := s.port.SetReadTimeout(s.opts.ReadTimeout); err != nil {
		_ = s.port.Close()
		s.port = nil
		return &sensor.SetupError{Stage: sensor.StageConfigure, Err: fmt.Errorf("failed to set read timeout: %w", err)}
	}

	s.logger.WithField("device_number", s.opts.DeviceNumber).Info("ANT+ heart rate channel open, listening for data")
	return nil
}

// Sticks returns the USB serial ports whose vendor id identifies an ANT stick.
func Sticks() ([]*enumerator.PortDetails, error) {
	ports, err := ListPorts()
	if err != nil {
		return nil, &sensor.SetupError{Stage: sensor.StageDiscover, Err: fmt.Errorf("failed to enumerate serial ports: %w", err)}
	}

	var sticks []*enumerator.PortDetails
	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, dynastreamVID) {
			sticks = append(sticks, p)
		}
	}
	return sticks, nil
}

func discoverPort(logger *logrus.Logger) (string, error) {
	sticks, err := Sticks()
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, p := range sticks {
		candidates = append(candidates, p.Name)
		logger.WithFields(logrus.Fields{
			"port": p.Name,
			"usb":  fmt.Sprintf("%s:%s", p.VID, p.PID),
		}).Debug("Found ANT stick")
	}

	switch len(candidates) {
	case 0:
		return "", &sensor.SetupError{Stage: sensor.StageDiscover, Err: sensor.ErrNoDevice}
	case 1:
		logger.WithField("port", candidates[0]).Info("Found 1 ANT device")
		return candidates[0], nil
	default:
		return "", &sensor.SetupError{
			Stage: sensor.StageSelect,
			Err:   fmt.Errorf("%w: %s; select one with --port", sensor.ErrMultipleDevices, strings.Join(candidates, ", ")),
		}
	}
}

// configure runs the heart-rate display setup sequence.
func (s *Source) configure(ctx context.Context) error {
	if err := s.write(encode(msgResetSystem, 0x00)); err != nil {
		return err
	}
	if err := s.await(ctx, msgStartupMessage); err != nil {
		// Not every stick reports startup over the serial interface.
		s.logger.WithError(err).Debug("No startup message after reset")
	}

	dev := s.opts.DeviceNumber
	steps := []struct {
		name  string
		frame []byte
		id    byte
	}{
		{"set network key", encode(msgSetNetworkKey, append([]byte{networkNum}, antPlusNetworkKey[:]...)...), msgSetNetworkKey},
		{"assign channel", encode(msgAssignChannel, channelNum, channelTypeRx, networkNum), msgAssignChannel},
		{"set channel id", encode(msgChannelID, channelNum, byte(dev), byte(dev>>8), hrmDeviceType, 0x00), msgChannelID},
		{"set channel period", encode(msgChannelPeriod, channelNum, byte(hrmChannelPeriod&0xFF), byte(hrmChannelPeriod>>8)), msgChannelPeriod},
		{"set search timeout", encode(msgSearchTimeout, channelNum, searchTimeout), msgSearchTimeout},
		{"set rf frequency", encode(msgChannelRFFreq, channelNum, antPlusRFFreq), msgChannelRFFreq},
		{"open channel", encode(msgOpenChannel, channelNum), msgOpenChannel},
	}

	for _, step := range steps {
		s.logger.WithField("step", step.name).Debug("Configuring ANT channel")
		if err := s.write(step.frame); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		if err := s.await(ctx, step.id); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

func (s *Source) write(frame []byte) error {
	if _, err := s.port.Write(frame); err != nil {
		return fmt.Errorf("failed to write to ANT stick: %w", err)
	}
	return nil
}

// await reads until the response for msgID arrives, the setup timeout expires,
// or ctx is cancelled. For msgStartupMessage any startup frame counts.
func (s *Source) await(ctx context.Context, msgID byte) error {
	if err := s.port.SetReadTimeout(50 * time.Millisecond); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	deadline := time.Now().Add(s.opts.SetupTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := s.readMessages()
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if msgID == msgStartupMessage && m.ID == msgStartupMessage {
				return nil
			}
			if m.ID == msgChannelEvent && len(m.Data) >= 3 && m.Data[1] == msgID {
				if code := m.Data[2]; code != responseNoError {
					return fmt.Errorf("ANT stick rejected message 0x%02X with code 0x%02X", msgID, code)
				}
				return nil
			}
			s.logger.WithField("message", m.String()).Debug("Ignoring message during setup")
		}
	}
	return fmt.Errorf("timed out waiting for response to message 0x%02X", msgID)
}

// readMessages performs one port read and returns the frames completed by it.
func (s *Source) readMessages() ([]message, error) {
	n, err := s.port.Read(s.readBuf)
	if err != nil {
		return nil, &sensor.ProtocolError{Op: "read", Err: err}
	}
	if n > 0 {
		if _, err := s.rx.Write(s.readBuf[:n]); err != nil {
			s.logger.WithError(err).WithField("bytes", n).Warn("ANT receive buffer overflow, dropping bytes")
		}
	}

	var msgs []message
	chunk := make([]byte, 64)
	for s.rx.Length() > 0 {
		m, err := s.rx.TryRead(chunk)
		if err != nil {
			if errors.Is(err, ringbuffer.ErrIsEmpty) {
				break
			}
			return nil, &sensor.ProtocolError{Op: "buffer", Err: err}
		}
		frames, bad := s.parser.feed(chunk[:m])
		if bad > 0 {
			s.logger.WithField("frames", bad).Debug("Dropped ANT frames with bad checksum")
		}
		msgs = append(msgs, frames...)
	}
	return msgs, nil
}

// Poll returns the next heart-rate sample received from the strap.
func (s *Source) Poll() (heartrate.RawBeatSample, bool, error) {
	if s.closed {
		return heartrate.RawBeatSample{}, false, sensor.ErrClosed
	}
	if s.port == nil {
		return heartrate.RawBeatSample{}, false, &sensor.ProtocolError{Op: "poll", Err: errors.New("sensor not opened")}
	}

	if len(s.pending) == 0 {
		msgs, err := s.readMessages()
		if err != nil {
			return heartrate.RawBeatSample{}, false, err
		}
		for _, m := range msgs {
			if err := s.handle(m); err != nil {
				return heartrate.RawBeatSample{}, false, err
			}
		}
	}

	if len(s.pending) == 0 {
		return heartrate.RawBeatSample{}, false, nil
	}
	sample := s.pending[0]
	s.pending = s.pending[1:]
	return sample, true, nil
}

func (s *Source) handle(m message) error {
	switch m.ID {
	case msgBroadcastData:
		if len(m.Data) < 1+hrmPageLength || m.Data[0] != channelNum {
			return nil
		}
		page, err := parseHRMPage(m.Data[1 : 1+hrmPageLength])
		if err != nil {
			s.logger.WithError(err).Debug("Ignoring malformed heart rate page")
			return nil
		}
		sample := page.sample()
		sample.EventTime = s.clock.Observe(page.EventTime)
		s.logger.WithFields(logrus.Fields{
			"page":        page.Number,
			"computed_hr": page.ComputedHR,
			"beat_count":  page.BeatCount,
		}).Trace("Received heart rate page")
		s.pending = append(s.pending, sample)
	case msgChannelEvent:
		if len(m.Data) < 3 || m.Data[1] != 0x01 {
			return nil
		}
		switch m.Data[2] {
		case eventRxFail, eventRxFailGoSearch:
			s.logger.Debug("ANT receive failure")
		case eventRxSearchTimeout:
			s.logger.Warn("ANT channel search timed out, no heart rate strap in range")
		case eventChannelClosed:
			return &sensor.ProtocolError{Op: "receive", Err: errors.New("ANT channel closed by stick")}
		}
	default:
		s.logger.WithField("message", m.String()).Trace("Received other ANT message")
	}
	return nil
}

// Close closes the channel and releases the serial port.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.port == nil {
		return nil
	}

	if err := s.write(encode(msgCloseChannel, channelNum)); err != nil {
		s.logger.WithError(err).Debug("Failed to close ANT channel")
	}
	err := s.port.Close()
	s.port = nil
	s.logger.Info("ANT stick released")
	return err
}
