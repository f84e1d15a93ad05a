package blehrm

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func defaultDevice() (ble.Device, error) {
	return darwin.NewDevice()
}
