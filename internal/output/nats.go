package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultNATSURL is the local NATS server.
	DefaultNATSURL = nats.DefaultURL

	// DefaultNATSSubject receives heart-rate readings.
	DefaultNATSSubject = "hr.bpm"
)

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes JSON readings to a subject.
type NATSSink struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

// ConnectNATS dials url with reconnect options suitable for a long-running bridge.
func ConnectNATS(url string, logger *logrus.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logrus.New()
	}
	return nats.Connect(
		url,
		nats.Name("hrbridge"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
}

// NewNATSSink connects to url and returns a sink publishing on subject.
func NewNATSSink(url, subject string, logger *logrus.Logger) (*NATSSink, error) {
	if url == "" {
		url = DefaultNATSURL
	}
	nc, err := ConnectNATS(url, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	s := NewNATSSinkWithPublisher(nc, subject, logger)
	s.conn = nc
	return s, nil
}

// NewNATSSinkWithPublisher wraps an existing publisher. Close does not close it.
func NewNATSSinkWithPublisher(pub Publisher, subject string, logger *logrus.Logger) *NATSSink {
	if logger == nil {
		logger = logrus.New()
	}
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSSink{pub: pub, subject: subject, logger: logger}
}

// Send publishes r as JSON.
func (s *NATSSink) Send(_ context.Context, r Reading) error {
	if s.pub == nil {
		return ErrNotConnected
	}
	if s.conn != nil && !s.conn.IsConnected() {
		return ErrNotConnected
	}

	b, err := json.Marshal(newPayload(r))
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}
	if err := s.pub.Publish(s.subject, b); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.subject, err)
	}

	s.logger.WithFields(logrus.Fields{
		"subject": s.subject,
		"bpm":     r.BPM,
	}).Debug("Heart rate published")
	return nil
}

// Close drains the connection if the sink owns it.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Drain()
	s.conn = nil
	s.pub = nil
	return err
}
