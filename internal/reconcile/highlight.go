package reconcile

import (
	"sync"
	"time"

	"github.com/Veraticus/shopcompare/internal/clock"
)

// DefaultHighlightWindow is how long a newly arrived entity stays flagged.
const DefaultHighlightWindow = time.Second

// highlightTask is one scheduled expiry. Tasks are compared by pointer so a
// stale timer cannot remove a newer mark for the same id.
type highlightTask struct {
	timer clock.Timer
}

// Highlighter tracks ids inside the recently-arrived window. Each id owns an
// independent cancellable expiry task.
type Highlighter struct {
	clock    clock.Clock
	onExpire func(id string)
	tasks    map[string]*highlightTask
	window   time.Duration
	mu       sync.Mutex
	closed   bool
}

// NewHighlighter creates a highlighter. onExpire runs after an id leaves the
// window; it is never called while the highlighter's lock is held.
func NewHighlighter(clk clock.Clock, window time.Duration, onExpire func(id string)) *Highlighter {
	if clk == nil {
		clk = clock.NewReal()
	}
	if window <= 0 {
		window = DefaultHighlightWindow
	}
	return &Highlighter{
		clock:    clk,
		window:   window,
		onExpire: onExpire,
		tasks:    make(map[string]*highlightTask),
	}
}

// Mark flags id for one window. Marking an id that is already flagged
// restarts its window without touching any other id.
func (h *Highlighter) Mark(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if existing, ok := h.tasks[id]; ok {
		existing.timer.Stop()
	}

	task := &highlightTask{}
	task.timer = h.clock.AfterFunc(h.window, func() { h.expire(id, task) })
	h.tasks[id] = task
}

func (h *Highlighter) expire(id string, task *highlightTask) {
	h.mu.Lock()
	if h.closed || h.tasks[id] != task {
		h.mu.Unlock()
		return
	}
	delete(h.tasks, id)
	h.mu.Unlock()

	if h.onExpire != nil {
		h.onExpire(id)
	}
}

// Set returns the flagged ids as a set.
func (h *Highlighter) Set() map[string]struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := make(map[string]struct{}, len(h.tasks))
	for id := range h.tasks {
		set[id] = struct{}{}
	}
	return set
}

// Close cancels every pending task. No expiry callback runs afterwards.
func (h *Highlighter) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, task := range h.tasks {
		task.timer.Stop()
		delete(h.tasks, id)
	}
}
