package sensor

import (
	"errors"
	"fmt"
	"strings"
)

// Sensor errors
var (
	// ErrNoDevice indicates that no matching sensor hardware was found.
	ErrNoDevice = errors.New("no heart rate sensor device found")

	// ErrMultipleDevices indicates that several candidate devices were found and
	// none was selected explicitly.
	ErrMultipleDevices = errors.New("multiple sensor devices found")

	// ErrClosed indicates an operation on a closed sensor.
	ErrClosed = errors.New("sensor closed")
)

// SetupStage names the step of sensor setup that failed.
type SetupStage string

const (
	StageDiscover  SetupStage = "discover"
	StageSelect    SetupStage = "select"
	StageOpen      SetupStage = "open"
	StageConfigure SetupStage = "configure"
)

// SetupError is returned by Source.Open. It is fatal to the polling loop.
type SetupError struct {
	Stage SetupStage
	Err   error
}

func (e *SetupError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("sensor %s failed: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a transport-level failure while polling.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("sensor protocol error during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// UnknownSensorError is returned by New for an unregistered sensor kind.
type UnknownSensorError struct {
	Name  string
	Known []string
}

func (e *UnknownSensorError) Error() string {
	return fmt.Sprintf("unknown sensor %q (available: %s)", e.Name, strings.Join(e.Known, ", "))
}
