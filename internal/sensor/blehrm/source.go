// Package blehrm reads a Bluetooth LE heart-rate strap through the standard
// Heart Rate Service and exposes it as a sensor.Source.
package blehrm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrbridge/internal/heartrate"
	"github.com/srg/hrbridge/internal/ringchan"
	"github.com/srg/hrbridge/internal/sensor"
)

// Heart Rate Service and Heart Rate Measurement characteristic.
var (
	HeartRateServiceUUID     = ble.UUID16(0x180D)
	HeartRateMeasurementUUID = ble.UUID16(0x2A37)
)

const (
	// DefaultConnectTimeout bounds discovery and connection.
	DefaultConnectTimeout = 30 * time.Second

	notificationBuffer = 16
)

// DeviceFactory creates the host BLE device (can be overridden in tests).
var DeviceFactory = defaultDevice

func init() {
	sensor.Register("ble", func(opts sensor.Options, logger *logrus.Logger) (sensor.Source, error) {
		return NewSource(opts, logger), nil
	})
}

// Source subscribes to heart-rate measurements of a single strap.
type Source struct {
	opts   sensor.Options
	logger *logrus.Logger

	device       ble.Device
	client       ble.Client
	char         *ble.Characteristic
	disconnected <-chan struct{}
	samples      *ringchan.Ring[heartrate.RawBeatSample]
	tracker      beatTracker
	opened       bool
	closed       bool
}

// NewSource creates an unopened source.
func NewSource(opts sensor.Options, logger *logrus.Logger) *Source {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Source{
		opts:    opts,
		logger:  logger,
		samples: ringchan.New[heartrate.RawBeatSample](notificationBuffer),
	}
}

// Open connects to the strap (by address, or the first one advertising the
// Heart Rate Service) and subscribes to measurements.
func (s *Source) Open(ctx context.Context) error {
	if s.closed {
		return sensor.ErrClosed
	}

	dev, err := DeviceFactory()
	if err != nil {
		return &sensor.SetupError{Stage: sensor.StageOpen, Err: fmt.Errorf("failed to create BLE device: %w", err)}
	}
	s.device = dev
	ble.SetDefaultDevice(dev)

	connCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	var client ble.Client
	if s.opts.BLEAddress != "" {
		s.logger.WithField("address", s.opts.BLEAddress).Info("Connecting to BLE heart rate strap...")
		client, err = ble.Dial(connCtx, ble.NewAddr(s.opts.BLEAddress))
	} else {
		s.logger.Info("Searching for a BLE heart rate strap...")
		client, err = ble.Connect(connCtx, advertisesHeartRate)
	}
	if err != nil {
		s.stopDevice()
		stage := sensor.StageOpen
		if errors.Is(err, context.DeadlineExceeded) && s.opts.BLEAddress == "" {
			stage = sensor.StageDiscover
			err = fmt.Errorf("%w: %v", sensor.ErrNoDevice, err)
		}
		return &sensor.SetupError{Stage: stage, Err: err}
	}
	s.client = client

	char, err := findMeasurement(client)
	if err != nil {
		s.release()
		return &sensor.SetupError{Stage: sensor.StageConfigure, Err: err}
	}
	s.char = char

	if err := client.Subscribe(char, false, s.handleNotification); err != nil {
		s.release()
		return &sensor.SetupError{Stage: sensor.StageConfigure, Err: fmt.Errorf("failed to subscribe to heart rate measurement: %w", err)}
	}

	s.disconnected = client.Disconnected()
	s.opened = true
	s.logger.WithFields(logrus.Fields{
		"address": client.Addr().String(),
		"name":    client.Name(),
	}).Info("Subscribed to BLE heart rate measurements")
	return nil
}

func advertisesHeartRate(a ble.Advertisement) bool {
	for _, u := range a.Services() {
		if u.Equal(HeartRateServiceUUID) {
			return true
		}
	}
	return false
}

func findMeasurement(client ble.Client) (*ble.Characteristic, error) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}
	for _, svc := range profile.Services {
		if !svc.UUID.Equal(HeartRateServiceUUID) {
			continue
		}
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(HeartRateMeasurementUUID) {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("heart rate measurement characteristic %s not found", HeartRateMeasurementUUID)
}

// handleNotification runs on the BLE stack goroutine.
func (s *Source) handleNotification(data []byte) {
	m, err := parseMeasurement(data)
	if err != nil {
		s.logger.WithError(err).WithField("bytes", len(data)).Debug("Ignoring malformed heart rate measurement")
		return
	}
	if s.samples.Send(s.tracker.next(m)) {
		s.logger.Debug("Heart rate sample dropped, polling loop is behind")
	}
}

// Poll returns the oldest buffered measurement.
func (s *Source) Poll() (heartrate.RawBeatSample, bool, error) {
	if s.closed {
		return heartrate.RawBeatSample{}, false, sensor.ErrClosed
	}
	if !s.opened {
		return heartrate.RawBeatSample{}, false, &sensor.ProtocolError{Op: "poll", Err: errors.New("sensor not opened")}
	}

	if sample, ok := s.samples.TryReceive(); ok {
		return sample, true, nil
	}

	select {
	case <-s.disconnected:
		return heartrate.RawBeatSample{}, false, &sensor.ProtocolError{Op: "receive", Err: errors.New("BLE heart rate strap disconnected")}
	default:
		return heartrate.RawBeatSample{}, false, nil
	}
}

// Close unsubscribes and disconnects.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.samples.Close()
	s.release()
	return nil
}

func (s *Source) release() {
	if s.client != nil {
		if s.char != nil {
			if err := s.client.Unsubscribe(s.char, false); err != nil {
				s.logger.WithError(err).Debug("Failed to unsubscribe from heart rate measurement")
			}
		}
		if err := s.client.CancelConnection(); err != nil {
			s.logger.WithError(err).Warn("Error disconnecting from BLE heart rate strap")
		}
		s.client = nil
		s.char = nil
		s.logger.Info("Disconnected from BLE heart rate strap")
	}
	s.stopDevice()
}

func (s *Source) stopDevice() {
	if s.device == nil {
		return
	}
	if err := s.device.Stop(); err != nil {
		s.logger.WithError(err).Debug("Failed to stop BLE device")
	}
	s.device = nil
}
