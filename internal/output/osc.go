package output

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultOSCAddress is VRChat's default OSC input.
	DefaultOSCAddress = "127.0.0.1:9000"

	// DefaultOSCPath is the avatar parameter receiving the normalized heart rate.
	DefaultOSCPath = "/avatar/parameters/Heartrate"
)

// OSCSink sends the normalized heart rate as a single float OSC message.
type OSCSink struct {
	client *osc.Client
	path   string
	logger *logrus.Logger
}

// NewOSCSink creates an OSC sink targeting host:port.
func NewOSCSink(address, path string, logger *logrus.Logger) (*OSCSink, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if address == "" {
		address = DefaultOSCAddress
	}
	if path == "" {
		path = DefaultOSCPath
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("invalid OSC address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid OSC port %q", portStr)
	}

	logger.WithFields(logrus.Fields{
		"address": address,
		"path":    path,
	}).Info("OSC output configured")

	return &OSCSink{
		client: osc.NewClient(host, port),
		path:   path,
		logger: logger,
	}, nil
}

// Send transmits the normalized value of r.
func (s *OSCSink) Send(_ context.Context, r Reading) error {
	if s.client == nil {
		return ErrNotConnected
	}

	msg := osc.NewMessage(s.path)
	msg.Append(r.Normalized())

	s.logger.WithField("mode", r.Mode.String()).Infof("Sending to OSC: %d BPM", r.BPM)
	if err := s.client.Send(msg); err != nil {
		return fmt.Errorf("failed to send OSC message: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *OSCSink) Close() error {
	s.client = nil
	return nil
}
