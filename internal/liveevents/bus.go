package liveevents

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railboard/railboard_core/internal/models"
)

// Config bounds the per-station event window and subscriber delivery
type Config struct {
	// RingSize is the number of events kept per station (FIFO eviction)
	RingSize int
	// SnapshotLimit caps the events returned by Snapshot
	SnapshotLimit int
	// SubscriberBuffer is the per-subscriber delivery queue depth. When a
	// consumer stalls and the queue fills, the oldest queued event is
	// dropped so ingestion never blocks.
	SubscriberBuffer int
}

// DefaultConfig returns the standard event window bounds
func DefaultConfig() Config {
	return Config{RingSize: 200, SnapshotLimit: 50, SubscriberBuffer: 32}
}

// Predicate filters delivered events per subscriber
type Predicate func(models.LiveEvent) bool

// AllEvents accepts every event
func AllEvents(models.LiveEvent) bool { return true }

// StationFilter accepts only events for the given station code
func StationFilter(crs string) Predicate {
	crs = strings.ToUpper(crs)
	return func(ev models.LiveEvent) bool { return ev.StationCode == crs }
}

// Bus keeps a bounded ring of recent normalized events per station and
// fans new events out to subscribers. Safe for concurrent append and
// read; ingestion is never blocked by a slow consumer.
type Bus struct {
	cfg Config

	mu    sync.RWMutex
	rings map[string]*ring
	subs  map[string]*Subscription
}

// NewBus creates an event bus with the given bounds (zero fields fall
// back to DefaultConfig values).
func NewBus(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.RingSize <= 0 {
		cfg.RingSize = def.RingSize
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = def.SnapshotLimit
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	return &Bus{
		cfg:   cfg,
		rings: make(map[string]*ring),
		subs:  make(map[string]*Subscription),
	}
}

// Upsert normalizes an event, appends it to its station's ring and
// notifies all matching subscribers. Events without a station code are
// dropped.
func (b *Bus) Upsert(ev models.LiveEvent) {
	ev.StationCode = strings.ToUpper(strings.TrimSpace(ev.StationCode))
	if ev.StationCode == "" {
		return
	}
	if ev.Type == "" {
		ev.Type = "service-update"
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[ev.StationCode]
	if !ok {
		r = newRing(b.cfg.RingSize)
		b.rings[ev.StationCode] = r
	}
	r.push(ev)

	for _, sub := range b.subs {
		if sub.pred(ev) {
			sub.deliver(ev)
		}
	}
}

// Snapshot returns up to limit recent events for the station, NEWEST
// FIRST. limit is capped at the configured snapshot bound; a station with
// no events yields an empty slice, not an error.
func (b *Bus) Snapshot(stationCode string, limit int) []models.LiveEvent {
	stationCode = strings.ToUpper(strings.TrimSpace(stationCode))
	if limit <= 0 || limit > b.cfg.SnapshotLimit {
		limit = b.cfg.SnapshotLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[stationCode]
	if !ok {
		return []models.LiveEvent{}
	}
	return r.newest(limit)
}

// Subscribe registers a subscriber for events matching pred. The handle's
// Unsubscribe is idempotent and stops delivery without leaking the
// channel.
func (b *Bus) Subscribe(pred Predicate) *Subscription {
	if pred == nil {
		pred = AllEvents
	}
	sub := &Subscription{
		id:   uuid.NewString(),
		pred: pred,
		ch:   make(chan models.LiveEvent, b.cfg.SubscriberBuffer),
		bus:  b,
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// SubscriberCount reports the number of live subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscription is a live event delivery handle
type Subscription struct {
	id   string
	pred Predicate
	ch   chan models.LiveEvent
	bus  *Bus
	once sync.Once
}

// Events is the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Events() <-chan models.LiveEvent { return s.ch }

// Unsubscribe stops delivery and releases the channel. Safe to call any
// number of times, from any point in the handle's lifetime.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

// deliver enqueues without blocking; on overflow the oldest queued event
// is dropped. Called with the bus lock held, which also serializes
// delivery against channel close.
func (s *Subscription) deliver(ev models.LiveEvent) {
	select {
	case s.ch <- ev:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// ring is a fixed-capacity FIFO of events
type ring struct {
	buf  []models.LiveEvent
	next int
	full bool
}

func newRing(size int) *ring {
	return &ring{buf: make([]models.LiveEvent, size)}
}

func (r *ring) push(ev models.LiveEvent) {
	r.buf[r.next] = ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) size() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// newest returns up to limit events, most recent first
func (r *ring) newest(limit int) []models.LiveEvent {
	n := r.size()
	if limit > n {
		limit = n
	}
	out := make([]models.LiveEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
