package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Decision is the throttle's answer for one batch of new flights.
type Decision struct {
	// IDs are the flights that may be notified now
	IDs []string

	// Suppressed were already notified within the notified TTL
	Suppressed []string

	// Blocked is true when IDs is non-empty but the last delivery was
	// less than the minimum interval ago. Nothing is consumed.
	Blocked bool

	// RetryIn is how long until the gate opens, when Blocked
	RetryIn time.Duration
}

// Throttle gates notification delivery. Two deliveries are never closer
// than minInterval, and a flight is not notified again until notifiedTTL
// has passed since its last notification.
type Throttle struct {
	mu            sync.Mutex
	minInterval   time.Duration
	notifiedTTL   time.Duration
	lastDelivered time.Time

	// notified maps flight ID to delivery time. ttlcache bounds memory in
	// wall-clock time; the caller-supplied now decides suppression.
	notified *ttlcache.Cache[string, time.Time]
}

// NewThrottle creates a Throttle.
func NewThrottle(minInterval, notifiedTTL time.Duration) *Throttle {
	return &Throttle{
		minInterval: minInterval,
		notifiedTTL: notifiedTTL,
		notified: ttlcache.New[string, time.Time](
			ttlcache.WithTTL[string, time.Time](notifiedTTL),
			ttlcache.WithDisableTouchOnHit[string, time.Time](),
		),
	}
}

// Admit filters ids down to those that may be notified at now.
func (t *Throttle) Admit(ids []string, now time.Time) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.notified.DeleteExpired()

	var d Decision
	for _, id := range ids {
		if t.recentlyNotifiedLocked(id, now) {
			d.Suppressed = append(d.Suppressed, id)
			continue
		}
		d.IDs = append(d.IDs, id)
	}

	if len(d.IDs) > 0 && !t.lastDelivered.IsZero() {
		if since := now.Sub(t.lastDelivered); since < t.minInterval {
			d.Blocked = true
			d.RetryIn = t.minInterval - since
		}
	}
	return d
}

// MarkDelivered records a delivery at now for ids.
func (t *Throttle) MarkDelivered(ids []string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.After(t.lastDelivered) {
		t.lastDelivered = now
	}
	for _, id := range ids {
		t.notified.Set(id, now, t.notifiedTTL)
	}
}

// Reset clears the notified set and the delivery gate.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastDelivered = time.Time{}
	t.notified.DeleteAll()
}

// SetLimits changes the interval and TTL. Already notified flights keep
// their recorded delivery time and are held in memory for the new TTL.
func (t *Throttle) SetLimits(minInterval, notifiedTTL time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minInterval = minInterval
	if notifiedTTL == t.notifiedTTL {
		return
	}
	t.notifiedTTL = notifiedTTL
	for id, item := range t.notified.Items() {
		t.notified.Set(id, item.Value(), notifiedTTL)
	}
}

// LastDelivered returns the time of the most recent delivery.
func (t *Throttle) LastDelivered() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastDelivered
}

// Notified returns the flights currently in the notified set, sorted.
func (t *Throttle) Notified() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := t.notified.Keys()
	sort.Strings(keys)
	return keys
}

func (t *Throttle) recentlyNotifiedLocked(id string, now time.Time) bool {
	item := t.notified.Get(id)
	if item == nil {
		return false
	}
	if now.Sub(item.Value()) >= t.notifiedTTL {
		t.notified.Delete(id)
		return false
	}
	return true
}
