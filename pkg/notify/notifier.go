package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Notifier delivers a notification to one sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info(n.Title,
		zap.String("notification_id", n.ID),
		zap.String("body", n.Body),
		zap.Strings("flights", n.IDs()),
		zap.String("image", n.ImageURL))
	return nil
}

// DeliveryError reports sinks that failed during a Multi fan-out.
type DeliveryError struct {
	Delivered int
	Failed    int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%d of %d sinks failed: %v", e.Failed, e.Delivered+e.Failed, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Reached reports whether at least one sink took the notification. A
// reached notification counts as delivered; the failed sinks are not
// retried.
func (e *DeliveryError) Reached() bool { return e.Delivered > 0 }

// Multi fans a notification out to every sink. All sinks are attempted;
// any failure is returned as a *DeliveryError.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", sink, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &DeliveryError{
		Delivered: len(m) - len(errs),
		Failed:    len(errs),
		Err:       errors.Join(errs...),
	}
}

// History keeps the most recent notifications in memory.
type History struct {
	mu    sync.RWMutex
	size  int
	items []Notification
}

// NewHistory keeps up to size notifications.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 50
	}
	return &History{size: size}
}

func (h *History) Notify(_ context.Context, n Notification) error {
	h.mu.Lock()
	h.items = append(h.items, n)
	if over := len(h.items) - h.size; over > 0 {
		h.items = append([]Notification(nil), h.items[over:]...)
	}
	h.mu.Unlock()
	return nil
}

// Recent returns up to limit notifications, newest first. limit <= 0
// returns everything held.
func (h *History) Recent(limit int) []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.items) {
		limit = len(h.items)
	}
	out := make([]Notification, 0, limit)
	for i := len(h.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.items[i])
	}
	return out
}
