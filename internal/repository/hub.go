package repository

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"shared-planner/internal/metrics"
)

// Hub fans change notifications out to live queries. Each live query owns a
// goroutine that re-runs its query whenever the watched collection changes
// and hands the full result to the subscriber callback.
//
// Change signals are coalesced: a watcher whose signal channel is already
// full will re-run once for all pending changes, so a slow callback never
// blocks writers.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
	logger   zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		watchers: make(map[string]map[*watcher]struct{}),
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// Notify marks every live query on collection as dirty.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers[collection] {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

// Count returns the number of live queries on collection.
func (h *Hub) Count(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[collection])
}

func (h *Hub) add(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[w.collection]
	if !ok {
		set = make(map[*watcher]struct{})
		h.watchers[w.collection] = set
	}
	set[w] = struct{}{}
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.watchers[w.collection]
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, w.collection)
	}
}

// watcher is one live query. It implements store.Subscription.
type watcher struct {
	hub        *Hub
	collection string
	notify     chan struct{}
	done       chan struct{}
	stopOnce   sync.Once

	// deliverMu is held while the callback runs, so Unsubscribe waits for
	// an in-flight delivery and no delivery starts after it returns.
	deliverMu sync.Mutex
	stopped   bool
}

// watch registers a live query on collection. The first snapshot is
// delivered asynchronously right away.
func watch[T any](ctx context.Context, h *Hub, collection string, query func(context.Context) ([]T, error), fn func([]T, error)) *watcher {
	w := &watcher{
		hub:        h,
		collection: collection,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	w.notify <- struct{}{}
	h.add(w)
	metrics.SubscriptionsOpen.WithLabelValues(collection).Inc()

	refresh := func() {
		items, err := query(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			metrics.StoreErrors.WithLabelValues(collection).Inc()
			h.logger.Error().
				Err(err).
				Str("collection", collection).
				Msg("live query failed")
		}
		w.deliver(func() {
			metrics.SnapshotsDelivered.WithLabelValues(collection).Inc()
			fn(items, err)
		})
	}

	go w.loop(ctx, refresh)
	return w
}

func (w *watcher) loop(ctx context.Context, refresh func()) {
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-w.notify:
			select {
			case <-w.done:
				return
			default:
			}
			refresh()
		}
	}
}

func (w *watcher) deliver(fn func()) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	if w.stopped {
		return
	}
	fn()
}

// Unsubscribe stops the live query. It is safe to call more than once.
func (w *watcher) Unsubscribe() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.hub.remove(w)

		w.deliverMu.Lock()
		w.stopped = true
		w.deliverMu.Unlock()

		metrics.SubscriptionsOpen.WithLabelValues(w.collection).Dec()
	})
}
