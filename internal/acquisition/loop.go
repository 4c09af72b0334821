// Package acquisition runs the device session: connect, subscribe, then
// request one reading at a time and append every decoded level to the
// partition store. Any transport failure ends the session and the loop
// reconnects after a fixed interval, forever.
package acquisition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/noise-monitor-service/internal/domain"
	"github.com/couchcryptid/noise-monitor-service/internal/observability"
	"github.com/couchcryptid/noise-monitor-service/internal/retry"
	"github.com/jonboulle/clockwork"
)

// Transport opens connections to the meter.
type Transport interface {
	Connect(ctx context.Context, address string) (Conn, error)
}

// Conn is one open device connection.
type Conn interface {
	// Subscribe registers handler for notifications on a characteristic.
	// The handler may run on a transport goroutine and must not block.
	Subscribe(characteristic string, handler func(frame []byte)) error
	Write(characteristic string, payload []byte) error
	Close() error
}

// Sink persists decoded readings.
type Sink interface {
	Append(r domain.Reading) error
}

// ErrReplyTimeout ends a session when the meter stops answering requests.
var ErrReplyTimeout = errors.New("no notification before reply timeout")

// notificationBuffer bounds frames queued between the transport callback and
// the loop. Frames beyond it are dropped.
const notificationBuffer = 16

// Options configures the loop. Zero intervals mean "do not wait".
type Options struct {
	Address              string
	WriteCharacteristic  string
	NotifyCharacteristic string

	SampleInterval    time.Duration
	ReplyTimeout      time.Duration
	ReconnectInterval time.Duration

	Clock clockwork.Clock
}

// Loop is the acquisition state machine.
type Loop struct {
	transport Transport
	sink      Sink
	opts      Options
	clock     clockwork.Clock
	reconnect retry.Fixed
	pause     retry.Fixed
	logger    *slog.Logger
	metrics   *observability.Metrics
	state     atomic.Int32
}

// New creates a Loop in the Disconnected state.
func New(t Transport, sink Sink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Loop {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Loop{
		transport: t,
		sink:      sink,
		opts:      opts,
		clock:     clock,
		reconnect: retry.NewFixed(opts.ReconnectInterval, clock),
		pause:     retry.NewFixed(opts.SampleInterval, clock),
		logger:    logger,
		metrics:   metrics,
	}
}

// State returns the current connection state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	if State(l.state.Swap(int32(s))) != s {
		l.logger.Debug("acquisition state changed", "state", s.String())
	}
	l.metrics.ConnectionState.Set(float64(s))
}

// CheckReadiness reports ready while the device is streaming.
func (l *Loop) CheckReadiness(_ context.Context) error {
	if s := l.State(); s != Streaming {
		return fmt.Errorf("device not streaming (state %s)", s)
	}
	return nil
}

// Run drives sessions until ctx is cancelled. It never returns a transport
// error; those are logged and followed by a reconnect.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("acquisition started",
		"address", l.opts.Address,
		"sample_interval", l.opts.SampleInterval,
		"reconnect_interval", l.opts.ReconnectInterval,
	)
	defer l.setState(Disconnected)

	for {
		err := l.session(ctx)
		l.setState(Disconnected)
		if ctx.Err() != nil {
			l.logger.Info("acquisition stopping", "reason", ctx.Err())
			return nil
		}

		var se *sessionError
		if errors.As(err, &se) {
			l.metrics.ConnectionFailures.WithLabelValues(se.stage).Inc()
		}
		l.logger.Error("device session failed, reconnecting",
			"error", err,
			"retry_in", l.opts.ReconnectInterval,
		)
		if !l.reconnect.Wait(ctx) {
			l.logger.Info("acquisition stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// session runs one connection from Connecting to its failure.
func (l *Loop) session(ctx context.Context) error {
	l.setState(Connecting)
	l.metrics.ConnectionAttempts.Inc()

	conn, err := l.transport.Connect(ctx, l.opts.Address)
	if err != nil {
		return &sessionError{stage: stageConnect, err: err}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			l.logger.Warn("device close failed", "error", err)
		}
	}()
	l.setState(Connected)

	frames := make(chan notification, notificationBuffer)
	handler := func(frame []byte) {
		n := notification{frame: bytes.Clone(frame), at: l.clock.Now()}
		select {
		case frames <- n:
		default:
			l.metrics.NotificationsDrop.Inc()
		}
	}
	if err := conn.Subscribe(l.opts.NotifyCharacteristic, handler); err != nil {
		return &sessionError{stage: stageSubscribe, err: err}
	}

	l.setState(Streaming)
	l.logger.Info("device streaming", "address", l.opts.Address)

	for {
		if err := conn.Write(l.opts.WriteCharacteristic, domain.RequestMeasurement); err != nil {
			return &sessionError{stage: stageWrite, err: err}
		}
		if err := l.awaitReply(ctx, frames); err != nil {
			return err
		}
		if !l.pause.Wait(ctx) {
			return ctx.Err()
		}
	}
}

// awaitReply blocks for the next notification, then handles it together
// with any others already queued.
func (l *Loop) awaitReply(ctx context.Context, frames <-chan notification) error {
	var timeout <-chan time.Time
	if l.opts.ReplyTimeout > 0 {
		timer := l.clock.NewTimer(l.opts.ReplyTimeout)
		defer timer.Stop()
		timeout = timer.Chan()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return &sessionError{stage: stageReply, err: ErrReplyTimeout}
	case n := <-frames:
		l.handle(n)
	}

	for {
		select {
		case n := <-frames:
			l.handle(n)
		default:
			return nil
		}
	}
}

// handle decodes and appends one frame. Neither failure affects the session.
func (l *Loop) handle(n notification) {
	reading, err := domain.DecodeFrame(n.frame, n.at)
	if err != nil {
		l.metrics.DecodeErrors.WithLabelValues(domain.DecodeErrorReason(err)).Inc()
		l.logger.Warn("frame rejected", "error", err, "frame", fmt.Sprintf("%x", n.frame))
		return
	}

	if err := l.sink.Append(reading); err != nil {
		l.metrics.AppendErrors.Inc()
		l.logger.Error("append reading failed", "error", err, "value_dba", reading.ValueDBA)
		return
	}

	l.metrics.ReadingsAppended.Inc()
	l.metrics.LastLevel.Set(reading.ValueDBA)
	l.logger.Debug("reading appended",
		"timestamp", reading.Timestamp.Format(time.RFC3339),
		"value_dba", reading.ValueDBA,
	)
}

type notification struct {
	frame []byte
	at    time.Time
}
