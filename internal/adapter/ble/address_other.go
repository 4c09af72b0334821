//go:build !darwin

package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

// parseAddress reads a MAC address such as AA:BB:CC:DD:EE:FF.
func parseAddress(s string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(s)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("parse device address %q: %w", s, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}
