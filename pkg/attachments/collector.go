package attachments

import (
	"log/slog"
	"sync"
	"time"
)

// Collector coalesces album items that arrive as separate updates sharing a
// media group id. Each add resets the group's sliding-window timer; when the
// window elapses with no new items, the group moves to the ready slot and the
// OnReady callback (if any) fires.
//
// Items without a group id bypass buffering: Add returns them immediately as
// a one-element batch.
type Collector[T any] struct {
	window  time.Duration
	onReady func(groupID string)
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string][]T
	ready   map[string][]T
	timers  map[string]*time.Timer
}

// NewCollector creates a collector with the given quiet window. onReady may
// be nil when callers poll PopReady instead.
func NewCollector[T any](window time.Duration, onReady func(groupID string)) *Collector[T] {
	return &Collector[T]{
		window:  window,
		onReady: onReady,
		log:     slog.With("component", "album_collector"),
		pending: make(map[string][]T),
		ready:   make(map[string][]T),
		timers:  make(map[string]*time.Timer),
	}
}

// Add ingests one item. A non-empty groupID buffers the item and returns nil;
// an empty groupID returns the item as an immediate single-element batch.
func (c *Collector[T]) Add(groupID string, item T) []T {
	if groupID == "" {
		return []T{item}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[groupID] = append(c.pending[groupID], item)

	if timer, ok := c.timers[groupID]; ok {
		timer.Reset(c.window)
	} else {
		c.timers[groupID] = time.AfterFunc(c.window, func() {
			c.release(groupID)
		})
	}
	return nil
}

// release moves a quiet group from pending to ready.
func (c *Collector[T]) release(groupID string) {
	c.mu.Lock()
	items := c.pending[groupID]
	delete(c.pending, groupID)
	delete(c.timers, groupID)
	if len(items) > 0 {
		c.ready[groupID] = items
	}
	c.mu.Unlock()

	if len(items) > 0 {
		c.log.Debug("Album ready", "group_id", groupID, "items", len(items))
		if c.onReady != nil {
			c.onReady(groupID)
		}
	}
}

// PopReady removes and returns the ready batch for groupID, or nil when no
// batch is ready.
func (c *Collector[T]) PopReady(groupID string) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.ready[groupID]
	delete(c.ready, groupID)
	return items
}

// Stop cancels all pending timers and drops buffered items.
func (c *Collector[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
	c.pending = make(map[string][]T)
}
