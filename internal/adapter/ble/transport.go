// Package ble connects to the meter over Bluetooth Low Energy using the host
// adapter.
package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/noise-monitor-service/internal/acquisition"
	"tinygo.org/x/bluetooth"
)

// ErrCharacteristicNotFound is returned when the device does not expose a
// requested characteristic.
var ErrCharacteristicNotFound = errors.New("characteristic not found")

// Transport is an acquisition.Transport over the default BLE adapter.
type Transport struct {
	adapter *bluetooth.Adapter
	logger  *slog.Logger

	enableOnce sync.Once
	enableErr  error
}

// New returns a Transport for the host's default adapter. The adapter is
// enabled on first Connect.
func New(logger *slog.Logger) *Transport {
	return &Transport{adapter: bluetooth.DefaultAdapter, logger: logger}
}

type connectResult struct {
	conn *conn
	err  error
}

// Connect opens a GATT connection and discovers all characteristics. The
// underlying connect call cannot be cancelled; when ctx ends first the late
// connection is closed as soon as it completes.
func (t *Transport) Connect(ctx context.Context, address string) (acquisition.Conn, error) {
	t.enableOnce.Do(func() { t.enableErr = t.adapter.Enable() })
	if t.enableErr != nil {
		return nil, fmt.Errorf("enable adapter: %w", t.enableErr)
	}

	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	done := make(chan connectResult, 1)
	go func() {
		c, err := t.dial(addr)
		done <- connectResult{conn: c, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.conn, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				res.conn.Close() //nolint:errcheck // abandoned connection
			}
		}()
		return nil, ctx.Err()
	}
}

func (t *Transport) dial(addr bluetooth.Address) (*conn, error) {
	dev, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	services, err := dev.DiscoverServices(nil)
	if err != nil {
		dev.Disconnect() //nolint:errcheck
		return nil, fmt.Errorf("discover services: %w", err)
	}

	chars := make(map[bluetooth.UUID]characteristic)
	for _, svc := range services {
		found, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			dev.Disconnect() //nolint:errcheck
			return nil, fmt.Errorf("discover characteristics of %s: %w", svc.UUID(), err)
		}
		for i := range found {
			ch := found[i]
			chars[ch.UUID()] = &ch
		}
	}
	t.logger.Debug("ble characteristics discovered", "services", len(services), "characteristics", len(chars))

	return &conn{chars: chars, disconnect: dev.Disconnect}, nil
}

// characteristic is the part of bluetooth.DeviceCharacteristic used here.
type characteristic interface {
	EnableNotifications(callback func(buf []byte)) error
	WriteWithoutResponse(p []byte) (int, error)
}

// conn is an acquisition.Conn over one connected device.
type conn struct {
	chars      map[bluetooth.UUID]characteristic
	disconnect func() error

	closeOnce sync.Once
	closeErr  error
}

func (c *conn) lookup(uuid string) (characteristic, error) {
	id, err := bluetooth.ParseUUID(uuid)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic %q: %w", uuid, err)
	}
	ch, ok := c.chars[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, uuid)
	}
	return ch, nil
}

func (c *conn) Subscribe(uuid string, handler func(frame []byte)) error {
	ch, err := c.lookup(uuid)
	if err != nil {
		return err
	}
	if err := ch.EnableNotifications(handler); err != nil {
		return fmt.Errorf("enable notifications on %s: %w", uuid, err)
	}
	return nil
}

func (c *conn) Write(uuid string, payload []byte) error {
	ch, err := c.lookup(uuid)
	if err != nil {
		return err
	}
	n, err := ch.WriteWithoutResponse(payload)
	if err != nil {
		return fmt.Errorf("write %s: %w", uuid, err)
	}
	if n != len(payload) {
		return fmt.Errorf("write %s: short write %d of %d bytes", uuid, n, len(payload))
	}
	return nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.disconnect() })
	return c.closeErr
}
