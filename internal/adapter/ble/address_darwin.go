package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// parseAddress reads a CoreBluetooth peripheral UUID.
func parseAddress(s string) (bluetooth.Address, error) {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("parse device address %q: %w", s, err)
	}
	return bluetooth.Address{UUID: uuid}, nil
}
