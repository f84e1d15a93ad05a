// Package pipeline runs the sensor polling loop and the consumer loop and
// connects them through a latest-value cell and a shutdown broadcast.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/hrbridge/internal/bridge"
	"github.com/srg/hrbridge/internal/groutine"
	"github.com/srg/hrbridge/internal/heartrate"
	"github.com/srg/hrbridge/internal/output"
	"github.com/srg/hrbridge/internal/sensor"
)

// Options configures a pipeline run.
type Options struct {
	Source       sensor.Source
	Sink         output.Sink
	Mode         heartrate.BpmMode
	PollInterval time.Duration
	// Shutdown ends the run when triggered. A new one is created when nil.
	Shutdown *bridge.Shutdown
	// Session identifies the run in sink payloads. A random UUID is used when empty.
	Session string
	Logger  *logrus.Logger
}

// Result describes a finished run.
type Result struct {
	Session string
	Summary *orderedmap.OrderedMap[string, int64]
}

// ProgressCallback is called when the run phase changes.
type ProgressCallback func(phase string)

// Run starts both loops and blocks until both have returned. Cancelling ctx
// triggers the shutdown broadcast. A sensor failure stops only the polling
// loop; the consumer keeps running until shutdown, and the sensor error is
// returned afterwards.
func Run(ctx context.Context, opts *Options, progressCallback ProgressCallback) (*Result, error) {
	if opts == nil {
		return nil, errors.New("failed to run pipeline: options are required")
	}
	if opts.Source == nil {
		return nil, errors.New("failed to run pipeline: sensor is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("failed to run pipeline: output sink is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}
	shutdown := opts.Shutdown
	if shutdown == nil {
		shutdown = bridge.NewShutdown()
	}
	session := opts.Session
	if session == "" {
		session = uuid.NewString()
	}

	stats := &Stats{}
	cell := bridge.NewLatest[heartrate.BeatEvent]()

	poller := NewPoller(opts.Source, cell, opts.PollInterval, stats, logger)
	consumer := NewConsumer(cell, opts.Mode, opts.Sink, session, stats, logger)

	pollerDone := shutdown.Subscribe()
	consumerDone := shutdown.Subscribe()
	watchDone := shutdown.Subscribe()

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down...")
			shutdown.Trigger()
		case <-watchDone:
		}
	}()

	var (
		wg      sync.WaitGroup
		pollErr error
	)
	wg.Add(2)

	progressCallback("Starting")
	logger.WithFields(logrus.Fields{
		"session":       session,
		"mode":          opts.Mode.String(),
		"poll_interval": poller.interval,
	}).Info("Heart rate pipeline starting")

	groutine.GoLocked(ctx, "sensor-poller", func(ctx context.Context) {
		defer wg.Done()
		pollErr = poller.Run(ctx, pollerDone)
		if pollErr != nil {
			progressCallback("Sensor failed")
		}
	})
	groutine.Go(ctx, "consumer", func(ctx context.Context) {
		defer wg.Done()
		consumer.Run(ctx, consumerDone)
	})

	progressCallback("Running")
	wg.Wait()
	progressCallback("Stopped")

	// Unblocks the context watcher when both loops ended without a trigger.
	shutdown.Trigger()

	result := &Result{Session: session, Summary: stats.Summary()}
	logger.WithFields(summaryFields(result.Summary)).Info("Heart rate pipeline stopped")

	if pollErr != nil {
		return result, fmt.Errorf("sensor loop failed: %w", pollErr)
	}
	return result, nil
}

func summaryFields(m *orderedmap.OrderedMap[string, int64]) logrus.Fields {
	fields := logrus.Fields{}
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		fields[pair.Key] = pair.Value
	}
	return fields
}
