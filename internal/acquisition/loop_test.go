package acquisition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/noise-monitor-service/internal/domain"
	"github.com/couchcryptid/noise-monitor-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddress    = "A1:B2:C3:D4:E5:F6"
	testWriteChar  = "0000ff01-0000-1000-8000-00805f9b34fb"
	testNotifyChar = "0000ff02-0000-1000-8000-00805f9b34fb"
)

// --- mocks ---

type fakeConn struct {
	mu           sync.Mutex
	frames       [][]byte
	next         int
	handler      func([]byte)
	subscribeErr error
	writeErr     error
	writes       int
	closed       bool
}

func (c *fakeConn) Subscribe(characteristic string, handler func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if characteristic != testNotifyChar {
		return errors.New("unknown characteristic")
	}
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.handler = handler
	return nil
}

// Write answers each request with the next queued frame, as the meter does.
func (c *fakeConn) Write(characteristic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if characteristic != testWriteChar || len(payload) != 1 || payload[0] != 0x5e {
		return errors.New("unexpected request")
	}
	c.writes++
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.next < len(c.frames) {
		f := c.frames[c.next]
		c.next++
		c.handler(f)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeTransport hands out the queued results in order; once exhausted it
// keeps returning errNoMoreConns.
type fakeTransport struct {
	mu      sync.Mutex
	results []any // *fakeConn or error
	calls   int
}

var errNoMoreConns = errors.New("device unreachable")

func (t *fakeTransport) Connect(_ context.Context, address string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if address != testAddress {
		return nil, errors.New("wrong address")
	}
	i := t.calls
	t.calls++
	if i >= len(t.results) {
		return nil, errNoMoreConns
	}
	switch r := t.results[i].(type) {
	case *fakeConn:
		return r, nil
	case error:
		return nil, r
	}
	return nil, errNoMoreConns
}

func (t *fakeTransport) connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type memorySink struct {
	mu       sync.Mutex
	readings []domain.Reading
	err      error
}

func (s *memorySink) Append(r domain.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.readings = append(s.readings, r)
	return nil
}

func (s *memorySink) snapshot() []domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Reading(nil), s.readings...)
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validFrame(level string) []byte {
	f := []byte{0xaa, 0xbb, 0x10, 0x01, 0x3b}
	f = append(f, level...)
	return append(f, 0x34, 0x00)
}

func testOptions(clock clockwork.Clock) Options {
	return Options{
		Address:              testAddress,
		WriteCharacteristic:  testWriteChar,
		NotifyCharacteristic: testNotifyChar,
		ReplyTimeout:         time.Hour,
		Clock:                clock,
	}
}

func runLoop(t *testing.T, l *Loop) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop after cancel")
		}
	}
}

// --- tests ---

func TestLoop_AppendsDecodedReadings(t *testing.T) {
	at := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(at)
	conn := &fakeConn{frames: [][]byte{
		validFrame("  42.7dBA="),
		validFrame("  43.1dBA="),
		validFrame("  44.0dBA="),
	}}
	transport := &fakeTransport{results: []any{conn}}
	sink := &memorySink{}
	metrics := observability.NewMetricsForTesting()

	l := New(transport, sink, testOptions(clock), discardLogger(), metrics)
	stop := runLoop(t, l)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Streaming, l.State())
	assert.NoError(t, l.CheckReadiness(context.Background()))

	stop()

	got := sink.snapshot()
	assert.InDelta(t, 42.7, got[0].ValueDBA, 1e-9)
	assert.InDelta(t, 44.0, got[2].ValueDBA, 1e-9)
	assert.Equal(t, at, got[0].Timestamp, "stamped with the receipt time")
	assert.Equal(t, 1, transport.connects())
	assert.True(t, conn.isClosed())
	assert.Equal(t, Disconnected, l.State())
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.ReadingsAppended), 0)
	assert.InDelta(t, 44.0, testutil.ToFloat64(metrics.LastLevel), 1e-9)
}

func TestLoop_DecodeErrorKeepsSession(t *testing.T) {
	bad := validFrame("  42.7dBA=")
	bad[4] = 0x00
	conn := &fakeConn{frames: [][]byte{bad, []byte{0x01}, validFrame("  50.0dBA=")}}
	transport := &fakeTransport{results: []any{conn}}
	sink := &memorySink{}
	metrics := observability.NewMetricsForTesting()

	l := New(transport, sink, testOptions(clockwork.NewFakeClock()), discardLogger(), metrics)
	stop := runLoop(t, l)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 1, transport.connects())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.DecodeErrors.WithLabelValues("unsupported_device")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.DecodeErrors.WithLabelValues("malformed_frame")), 0)
}

func TestLoop_AppendErrorKeepsSession(t *testing.T) {
	conn := &fakeConn{frames: [][]byte{validFrame("  42.7dBA="), validFrame("  43.7dBA=")}}
	transport := &fakeTransport{results: []any{conn}}
	sink := &memorySink{err: errors.New("disk full")}
	metrics := observability.NewMetricsForTesting()

	l := New(transport, sink, testOptions(clockwork.NewFakeClock()), discardLogger(), metrics)
	stop := runLoop(t, l)
	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.AppendErrors) == 2 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 1, transport.connects())
	assert.Empty(t, sink.snapshot())
}

func TestLoop_ReconnectsAfterConnectFailure(t *testing.T) {
	conn := &fakeConn{frames: [][]byte{validFrame("  42.7dBA=")}}
	transport := &fakeTransport{results: []any{errors.New("adapter busy"), errors.New("adapter busy"), conn}}
	sink := &memorySink{}
	metrics := observability.NewMetricsForTesting()

	opts := testOptions(clockwork.NewRealClock())
	opts.ReconnectInterval = time.Millisecond

	l := New(transport, sink, opts, discardLogger(), metrics)
	stop := runLoop(t, l)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 3, transport.connects())
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.ConnectionFailures.WithLabelValues("connect")), 0)
}

func TestLoop_ReconnectWaitsFixedInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := &fakeTransport{}
	opts := testOptions(clock)
	opts.ReconnectInterval = 5 * time.Second

	l := New(transport, &memorySink{}, opts, discardLogger(), observability.NewMetricsForTesting())
	stop := runLoop(t, l)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for attempt := 1; attempt <= 3; attempt++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, attempt, transport.connects())
		clock.Advance(5 * time.Second)
	}
	require.Eventually(t, func() bool { return transport.connects() == 4 }, time.Second, time.Millisecond)
}

func TestLoop_ReconnectsAfterWriteFailure(t *testing.T) {
	broken := &fakeConn{writeErr: errors.New("link lost")}
	healthy := &fakeConn{frames: [][]byte{validFrame("  42.7dBA=")}}
	transport := &fakeTransport{results: []any{broken, healthy}}
	sink := &memorySink{}
	metrics := observability.NewMetricsForTesting()

	l := New(transport, sink, testOptions(clockwork.NewRealClock()), discardLogger(), metrics)
	stop := runLoop(t, l)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	assert.True(t, broken.isClosed())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ConnectionFailures.WithLabelValues("write")), 0)
}

func TestLoop_ReconnectsAfterSubscribeFailure(t *testing.T) {
	broken := &fakeConn{subscribeErr: errors.New("characteristic not found")}
	healthy := &fakeConn{frames: [][]byte{validFrame("  42.7dBA=")}}
	transport := &fakeTransport{results: []any{broken, healthy}}
	sink := &memorySink{}
	metrics := observability.NewMetricsForTesting()

	l := New(transport, sink, testOptions(clockwork.NewRealClock()), discardLogger(), metrics)
	stop := runLoop(t, l)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	assert.True(t, broken.isClosed())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ConnectionFailures.WithLabelValues("subscribe")), 0)
}

func TestLoop_ReplyTimeoutReconnects(t *testing.T) {
	silent := &fakeConn{}
	healthy := &fakeConn{frames: [][]byte{validFrame("  42.7dBA=")}}
	transport := &fakeTransport{results: []any{silent, healthy}}
	sink := &memorySink{}
	metrics := observability.NewMetricsForTesting()

	opts := testOptions(clockwork.NewRealClock())
	opts.ReplyTimeout = 10 * time.Millisecond

	l := New(transport, sink, opts, discardLogger(), metrics)
	stop := runLoop(t, l)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	stop()

	assert.True(t, silent.isClosed())
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.ConnectionFailures.WithLabelValues("reply")), 1.0)
}

func TestLoop_NotReadyBeforeStreaming(t *testing.T) {
	l := New(&fakeTransport{}, &memorySink{}, testOptions(nil), discardLogger(), observability.NewMetricsForTesting())

	err := l.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disconnected")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "State(9)", State(9).String())
}
