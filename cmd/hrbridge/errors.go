package main

import (
	"errors"
	"fmt"

	"github.com/srg/hrbridge/internal/output"
	"github.com/srg/hrbridge/internal/sensor"
)

// FormatUserError turns an error chain into a message with a hint where one exists.
func FormatUserError(err error) string {
	var (
		setupErr   *sensor.SetupError
		unknownErr *sensor.UnknownSensorError
	)

	switch {
	case errors.Is(err, sensor.ErrNoDevice):
		return fmt.Sprintf("%v\nHint: plug in an ANT+ USB stick, pass --port, or try --sensor sim", err)
	case errors.Is(err, sensor.ErrMultipleDevices):
		return fmt.Sprintf("%v\nHint: run 'hrbridge ports' to list the sticks", err)
	case errors.As(err, &unknownErr):
		return unknownErr.Error()
	case errors.As(err, &setupErr):
		return fmt.Sprintf("%v\nHint: check that no other program holds the device", err)
	case errors.Is(err, output.ErrNotConnected):
		return fmt.Sprintf("%v\nHint: check the output address", err)
	default:
		return err.Error()
	}
}
