package domain

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// UT353BT frame layout.
const (
	deviceMarkerOffset = 4
	unitsMarkerOffset  = 14
	payloadOffset      = 5
	minFrameLen        = unitsMarkerOffset + 1

	DeviceMarkerUT353BT byte = 0x3b
	UnitsMarkerDBA      byte = 0x3d

	unitToken = "dBA"

	// Plausible dB(A) range. The meter itself measures 30–130 dB(A).
	minPlausibleDBA = 0.0
	maxPlausibleDBA = 200.0
)

// RequestMeasurement is written to the request characteristic to trigger one notification.
var RequestMeasurement = []byte{0x5e}

var (
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrUnsupportedDevice = errors.New("unsupported device")
	ErrUnsupportedUnits  = errors.New("unsupported units")
)

// DecodeFrame validates a notification frame and extracts its level. The
// returned Reading is stamped with capturedAt; the frame carries no time.
func DecodeFrame(frame []byte, capturedAt time.Time) (Reading, error) {
	if len(frame) < minFrameLen {
		return Reading{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedFrame, len(frame), minFrameLen)
	}
	if frame[deviceMarkerOffset] != DeviceMarkerUT353BT {
		return Reading{}, fmt.Errorf("%w: device marker 0x%02x", ErrUnsupportedDevice, frame[deviceMarkerOffset])
	}
	if frame[unitsMarkerOffset] != UnitsMarkerDBA {
		return Reading{}, fmt.Errorf("%w: units marker 0x%02x", ErrUnsupportedUnits, frame[unitsMarkerOffset])
	}

	payload := frame[payloadOffset:]
	end := bytes.IndexByte(payload, '=')
	if end < 0 {
		return Reading{}, fmt.Errorf("%w: no '=' delimiter", ErrMalformedFrame)
	}
	payload = payload[:end]

	unit := bytes.Index(payload, []byte(unitToken))
	if unit < 0 {
		return Reading{}, fmt.Errorf("%w: unit token %q missing in %q", ErrMalformedFrame, unitToken, payload)
	}

	raw := strings.TrimSpace(string(payload[:unit]))
	if !isDecimal(raw) {
		return Reading{}, fmt.Errorf("%w: level %q is not a decimal number", ErrMalformedFrame, raw)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: level %q is not numeric", ErrMalformedFrame, raw)
	}
	if math.IsNaN(value) || value < minPlausibleDBA || value > maxPlausibleDBA {
		return Reading{}, fmt.Errorf("%w: level %g outside plausible range", ErrMalformedFrame, value)
	}

	return Reading{Timestamp: capturedAt, ValueDBA: value}, nil
}

// isDecimal accepts an optional sign, digits and at most one '.'. It rules
// out the hex, exponent, underscore and Inf forms ParseFloat also takes.
func isDecimal(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "+"), "-")
	digits, dots := 0, 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// DecodeErrorReason maps a decode error to a short label for metrics.
func DecodeErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedDevice):
		return "unsupported_device"
	case errors.Is(err, ErrUnsupportedUnits):
		return "unsupported_units"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	default:
		return "unknown"
	}
}
