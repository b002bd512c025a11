package alert

import (
	"context"
	"log/slog"
)

// Channel delivers one rendered message. Implementations are nil-safe:
// calling Send on a nil concrete channel is a no-op.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans a message out to every configured channel, fail-open.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher over the non-nil channels.
func NewDispatcher(channels ...Channel) *Dispatcher {
	d := &Dispatcher{logger: slog.Default().With("component", "alert-dispatcher")}
	for _, ch := range channels {
		if ch != nil {
			d.channels = append(d.channels, ch)
		}
	}
	return d
}

// Dispatch sends msg over every channel and reports how many deliveries
// succeeded. Channel errors are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) int {
	sent := 0
	for _, ch := range d.channels {
		if err := ch.Send(ctx, msg); err != nil {
			d.logger.Error("Alert delivery failed",
				"channel", ch.Name(),
				"monitor", msg.Summary.MonitorName,
				"error", err)
			continue
		}
		sent++
	}
	return sent
}

// Channels returns the number of active channels.
func (d *Dispatcher) Channels() int { return len(d.channels) }
