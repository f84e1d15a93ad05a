//go:build !darwin && !linux

package blehrm

import (
	"errors"

	"github.com/go-ble/ble"
)

func defaultDevice() (ble.Device, error) {
	return nil, errors.New("BLE is not supported on this platform")
}
