package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/hrbridge/internal/bridge"
	"github.com/srg/hrbridge/internal/groutine"
	"github.com/srg/hrbridge/internal/heartrate"
	"github.com/srg/hrbridge/internal/output"
)

// Consumer turns beat events into BPM values and hands them to the sink.
type Consumer struct {
	cell      *bridge.Latest[heartrate.BeatEvent]
	processor *heartrate.Processor
	mode      heartrate.BpmMode
	sink      output.Sink
	session   string
	stats     *Stats
	logger    *logrus.Logger
	now       func() time.Time
}

// NewConsumer creates a consumer reading from cell.
func NewConsumer(cell *bridge.Latest[heartrate.BeatEvent], mode heartrate.BpmMode, sink output.Sink, session string, stats *Stats, logger *logrus.Logger) *Consumer {
	if logger == nil {
		logger = logrus.New()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Consumer{
		cell:      cell,
		processor: heartrate.NewProcessor(logger),
		mode:      mode,
		sink:      sink,
		session:   session,
		stats:     stats,
		logger:    logger,
		now:       time.Now,
	}
}

// Run waits for new events until done is closed or ctx is cancelled. Sink failures are logged and
// the loop keeps going.
func (c *Consumer) Run(ctx context.Context, done <-chan struct{}) {
	log := c.logger.WithField("goroutine", groutine.GetName(ctx))
	log.Debug("Consumer waiting for heart beats")
	for {
		select {
		case <-done:
			log.Debug("Consumer stopped")
			return
		case <-ctx.Done():
			log.Debug("Consumer cancelled")
			return
		case <-c.cell.Changed():
			event, ok := c.cell.Take()
			if !ok {
				continue
			}
			c.handle(ctx, event)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, event heartrate.BeatEvent) {
	bpm, ok := c.processor.Process(event, c.mode)
	if !ok {
		c.stats.add(&c.stats.Rejected)
		c.logger.WithFields(logrus.Fields{
			"event": event.String(),
			"mode":  c.mode.String(),
		}).Debug("Beat event produced no heart rate")
		return
	}
	c.stats.add(&c.stats.Accepted)

	reading := output.Reading{
		BPM:     bpm,
		Mode:    c.mode,
		Session: c.session,
		Time:    c.now(),
	}
	if err := c.sink.Send(ctx, reading); err != nil {
		c.stats.add(&c.stats.SendErrors)
		c.logger.WithError(err).WithField("bpm", bpm).Warn("Failed to send heart rate")
		return
	}
	c.stats.add(&c.stats.Sent)
}
