package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCapturedAt = time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

// frame builds a UT353BT notification with the given payload at offset 5.
func frame(payload string) []byte {
	f := []byte{0xaa, 0xbb, 0x10, 0x01, DeviceMarkerUT353BT}
	f = append(f, payload...)
	for len(f) < minFrameLen+4 {
		f = append(f, 0x00)
	}
	return f
}

func TestDecodeFrame_Valid(t *testing.T) {
	f := frame("  42.7dBA=4")
	require.Equal(t, UnitsMarkerDBA, f[unitsMarkerOffset])

	r, err := DecodeFrame(f, testCapturedAt)
	require.NoError(t, err)
	assert.InDelta(t, 42.7, r.ValueDBA, 1e-9)
	assert.Equal(t, testCapturedAt, r.Timestamp)
}

func TestDecodeFrame_ThreeDigitLevel(t *testing.T) {
	r, err := DecodeFrame(frame(" 102.3dBA=4"), testCapturedAt)
	require.NoError(t, err)
	assert.InDelta(t, 102.3, r.ValueDBA, 1e-9)
}

func TestDecodeFrame_ShortFrames(t *testing.T) {
	full := frame("  42.7dBA=4")
	for n := 0; n < minFrameLen; n++ {
		_, err := DecodeFrame(full[:n], testCapturedAt)
		require.ErrorIs(t, err, ErrMalformedFrame, "length %d", n)
	}
	_, err := DecodeFrame(nil, testCapturedAt)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeFrame_UnsupportedDevice(t *testing.T) {
	f := frame("  42.7dBA=4")
	f[deviceMarkerOffset] = 0x3c

	_, err := DecodeFrame(f, testCapturedAt)
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
}

func TestDecodeFrame_UnsupportedUnits(t *testing.T) {
	f := frame("  42.7dBA=4")
	f[unitsMarkerOffset] = 0x3e

	_, err := DecodeFrame(f, testCapturedAt)
	assert.ErrorIs(t, err, ErrUnsupportedUnits)
}

func TestDecodeFrame_Malformed(t *testing.T) {
	// Every payload ends with '=' at the units offset, so only the level
	// text differs between cases.
	tests := []struct {
		name    string
		payload string
	}{
		{"missing unit token", "  42.7dBC=4"},
		{"non-numeric level", "  4x.7dBA=4"},
		{"empty level", "      dBA=4"},
		{"negative level", "  -5.0dBA=4"},
		{"implausible level", "   999dBA=4"},
		{"not a number", "   NaNdBA=4"},
		{"hex float", " 0x1p5dBA=4"},
		{"digit separator", "   4_2dBA=4"},
		{"exponent", "   1e2dBA=4"},
		{"two points", " 4.2.7dBA=4"},
		{"lone point", "     .dBA=4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frame(tt.payload)
			require.Equal(t, UnitsMarkerDBA, f[unitsMarkerOffset])

			_, err := DecodeFrame(f, testCapturedAt)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestIsDecimal(t *testing.T) {
	for _, s := range []string{"42", "42.7", "0.5", ".5", "5.", "+42.7", "-0"} {
		assert.True(t, isDecimal(s), s)
	}
	for _, s := range []string{"", ".", "+", "0x1p5", "4_2", "1e2", "4.2.7", "Inf", "NaN", "4 2"} {
		assert.False(t, isDecimal(s), s)
	}
}

func TestDecodeFrame_EarlyDelimiter(t *testing.T) {
	r, err := DecodeFrame(frame("  55.0dBA=1.0dBA="), testCapturedAt)
	require.NoError(t, err)
	assert.InDelta(t, 55.0, r.ValueDBA, 1e-9)
}

func TestDecodeErrorReason(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2, 3}, testCapturedAt)
	assert.Equal(t, "malformed_frame", DecodeErrorReason(err))

	f := frame("  42.7dBA=4")
	f[unitsMarkerOffset] = 0
	_, err = DecodeFrame(f, testCapturedAt)
	assert.Equal(t, "unsupported_units", DecodeErrorReason(err))

	f = frame("  42.7dBA=4")
	f[deviceMarkerOffset] = 0
	_, err = DecodeFrame(f, testCapturedAt)
	assert.Equal(t, "unsupported_device", DecodeErrorReason(err))
}
