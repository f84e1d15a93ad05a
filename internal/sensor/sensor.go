// Package sensor defines the heart-rate sensor abstraction consumed by the
// polling loop and a registry of sensor implementations.
//
// Implementations live in sub-packages (ant, blehrm, sim) and register
// themselves from init, so binaries select the ones they link in:
//
//	import _ "github.com/srg/hrbridge/internal/sensor/ant"
//
//	src, err := sensor.New("ant", opts, logger)
package sensor

import (
	"context"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrbridge/internal/heartrate"
)

// Source is a heart-rate sensor owned by a single polling goroutine.
// None of its methods are safe for concurrent use.
type Source interface {
	// Open discovers the device and configures the heart-rate channel.
	Open(ctx context.Context) error
	// Poll returns the next available sample without blocking for new data.
	// ok is false when no sample is available yet. Errors are protocol failures
	// and end the polling loop.
	Poll() (sample heartrate.RawBeatSample, ok bool, err error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Options carries settings for every sensor kind; each implementation reads
// the fields it needs.
type Options struct {
	// ANT+ USB stick
	Port         string
	BaudRate     int
	DeviceNumber uint16
	ReadTimeout  time.Duration
	SetupTimeout time.Duration

	// BLE heart-rate strap
	BLEAddress     string
	ConnectTimeout time.Duration

	// Simulator
	SimBPM         float64
	SimJitter      float64
	SimMissedEvery int
	SimDoubleEvery int
	SimSeed        int64
}

// Factory builds a Source from options.
type Factory func(opts Options, logger *logrus.Logger) (Source, error)

var registry = hashmap.New[string, Factory]()

// Register makes a sensor implementation available under name.
// Registering the same name twice panics.
func Register(name string, factory Factory) {
	if factory == nil {
		panic("sensor: Register factory is nil for " + name)
	}
	if !registry.Insert(name, factory) {
		panic("sensor: Register called twice for " + name)
	}
}

// New creates a Source of the named kind.
func New(name string, opts Options, logger *logrus.Logger) (Source, error) {
	factory, ok := registry.Get(name)
	if !ok {
		return nil, &UnknownSensorError{Name: name, Known: Names()}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return factory(opts, logger)
}

// Names lists registered sensor kinds in sorted order.
func Names() []string {
	names := make([]string, 0, registry.Len())
	registry.Range(func(name string, _ Factory) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
