package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/hrbridge/internal/bridge"
	"github.com/srg/hrbridge/internal/groutine"
	"github.com/srg/hrbridge/internal/heartrate"
	"github.com/srg/hrbridge/internal/sensor"
)

// DefaultPollInterval is the pause between sensor polls.
const DefaultPollInterval = 10 * time.Millisecond

// Poller owns the sensor and the decoder. It runs on a single goroutine that
// may block inside sensor calls.
type Poller struct {
	source   sensor.Source
	decoder  *heartrate.Decoder
	cell     *bridge.Latest[heartrate.BeatEvent]
	interval time.Duration
	stats    *Stats
	logger   *logrus.Logger
}

// NewPoller creates a poller publishing decoded events into cell.
func NewPoller(source sensor.Source, cell *bridge.Latest[heartrate.BeatEvent], interval time.Duration, stats *Stats, logger *logrus.Logger) *Poller {
	if logger == nil {
		logger = logrus.New()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Poller{
		source:   source,
		decoder:  heartrate.NewDecoder(logger),
		cell:     cell,
		interval: interval,
		stats:    stats,
		logger:   logger,
	}
}

// Run opens the sensor and polls it until done is closed or ctx is cancelled.
// Sensor errors end the loop and are returned; the sensor is closed on every exit path.
func (p *Poller) Run(ctx context.Context, done <-chan struct{}) (err error) {
	log := p.logger.WithField("goroutine", groutine.GetName(ctx))
	defer func() {
		if cerr := p.source.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close sensor")
		}
		if err != nil {
			log.WithError(err).Error("Sensor loop stopped")
		} else {
			log.Debug("Sensor loop stopped")
		}
	}()

	if err := p.source.Open(ctx); err != nil {
		return fmt.Errorf("failed to open sensor: %w", err)
	}
	log.Info("Sensor ready, polling for heart beats")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		if err := p.drain(); err != nil {
			return err
		}

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain handles every sample the sensor has ready without blocking.
func (p *Poller) drain() error {
	for {
		sample, ok, err := p.source.Poll()
		if err != nil {
			return fmt.Errorf("sensor poll failed: %w", err)
		}
		if !ok {
			return nil
		}
		p.stats.add(&p.stats.Samples)

		event, emitted := p.decoder.Decode(sample)
		if !emitted {
			continue
		}
		before := p.cell.GetMetrics().Overwritten
		p.cell.Publish(event)
		p.stats.add(&p.stats.Events)
		if p.cell.GetMetrics().Overwritten > before {
			p.stats.add(&p.stats.Overwritten)
		}
	}
}
