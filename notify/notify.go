// Package notify delivers engine events to users. Delivery is best effort:
// a failed send is logged and recorded but never undoes the state change
// the event describes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/metrics"
	"github.com/rustyeddy/trailguard/model"
	"go.uber.org/zap"
)

type EventType string

const (
	EventNewSignal        EventType = "new_signal"
	EventTrailingUpdate   EventType = "trailing_update"
	EventBreakevenHit     EventType = "breakeven_hit"
	EventTPHit            EventType = "tp_hit"
	EventSLHit            EventType = "sl_hit"
	EventConnectionStatus EventType = "connection_status"
)

const (
	SeverityInfo = "info"
	SeverityWarn = "warn"
)

// Event carries a snapshot of the trade or connection it is about. LogID,
// when set, names the trailing log row whose NotifySent flag records the
// delivery.
type Event struct {
	Type         EventType         `json:"type"`
	Severity     string            `json:"severity"`
	ConnectionID string            `json:"connection_id"`
	Message      string            `json:"message"`
	Trade        *model.Trade      `json:"trade,omitempty"`
	Connection   *model.Connection `json:"connection,omitempty"`
	Meta         map[string]any    `json:"meta,omitempty"`
	LogID        string            `json:"log_id,omitempty"`
	At           time.Time         `json:"at"`
}

// Sink delivers one event.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// LogMarker records successful delivery on the trailing log.
type LogMarker interface {
	MarkLogNotified(ctx context.Context, id string) error
}

// Result is the delivery outcome for one event.
type Result struct {
	Event Event
	Sent  bool
	Err   error
}

// Dispatcher sends events through a Sink with bounded retries.
type Dispatcher struct {
	sink     Sink
	marker   LogMarker
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

type Option func(*Dispatcher)

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.attempts = attempts
		}
		d.backoff = backoff
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher returns a dispatcher; marker may be nil.
func NewDispatcher(sink Sink, marker LogMarker, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sink:     sink,
		marker:   marker,
		logger:   logger,
		attempts: 1,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers events in order and reports each outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) []Result {
	out := make([]Result, 0, len(events))
	for _, e := range events {
		err := d.send(ctx, e)
		sent := err == nil
		metrics.RecordNotification(string(e.Type), sent)

		if !sent {
			d.logger.Warn("notification not sent",
				zap.String("type", string(e.Type)),
				zap.String("connection", e.ConnectionID),
				zap.Error(err))
		} else if e.LogID != "" && d.marker != nil {
			if merr := d.marker.MarkLogNotified(ctx, e.LogID); merr != nil {
				d.logger.Warn("mark trailing log notified",
					zap.String("log_id", e.LogID), zap.Error(merr))
			}
		}
		out = append(out, Result{Event: e, Sent: sent, Err: err})
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, e Event) error {
	if d.sink == nil {
		return errors.New("no notification sink configured")
	}
	var err error
	for i := 0; i < d.attempts; i++ {
		if i > 0 && d.backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff * time.Duration(i)):
			}
		}
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err = d.sink.Send(sctx, e)
		cancel()
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", d.attempts, err)
}

// Multi fans an event out to several sinks. It fails if any sink fails.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
