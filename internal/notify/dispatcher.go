package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/metrics"
)

// Dispatcher moves notification delivery off the ingesting goroutine.
// Enqueue never blocks; alerts that do not fit in the queue are dropped.
type Dispatcher struct {
	notifier Notifier
	queue    chan alert.Alert
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher holding up to size pending alerts.
func NewDispatcher(n Notifier, size int, logger *zap.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		notifier: n,
		queue:    make(chan alert.Alert, size),
		logger:   logger,
	}
}

// Enqueue schedules a for delivery. Its signature matches session.Subscribe.
func (d *Dispatcher) Enqueue(a alert.Alert) {
	select {
	case d.queue <- a:
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn("notification queue full, dropping alert",
			zap.String("kind", string(a.Kind)),
			zap.Uint64("seq", a.Seq),
		)
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-d.queue:
			err := d.notifier.Notify(ctx, a)
			if err != nil && !errors.Is(err, ErrThrottled) && ctx.Err() == nil {
				d.logger.Warn("alert notification failed",
					zap.String("kind", string(a.Kind)),
					zap.Uint64("seq", a.Seq),
					zap.Error(err),
				)
			}
		}
	}
}
