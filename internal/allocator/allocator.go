// Package allocator ranks submitted work items for a bounded compute
// pool. The queue is kept sorted by (priority desc, submittedAt asc);
// equal-priority items dispatch in submission order, so none starve.
package allocator

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openpantry/gatekeeper/internal/model"
)

// WorkItemInput is the caller-supplied submission payload.
type WorkItemInput struct {
	SubmitterID string             `json:"submitter_id"`
	Attributes  map[string]float64 `json:"attributes"`
}

// entry wraps a stored item with an insertion sequence used as the
// final tie-break so ordering stays deterministic even for identical
// timestamps.
type entry struct {
	item *model.WorkItem
	seq  uint64
}

// Allocator owns the work item store and the priority queue. All
// operations share one mutex; contention is bounded by submission rate,
// not request rate.
type Allocator struct {
	mu    sync.Mutex
	cfg   *Config
	queue []*entry
	items map[string]*entry
	seq   uint64

	now func() time.Time
}

// New creates an allocator with the given factor-weight table. A nil
// config falls back to defaults.
func New(cfg *Config) *Allocator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Allocator{
		cfg:   cfg,
		items: make(map[string]*entry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Capacity returns the configured default dispatch capacity.
func (a *Allocator) Capacity() int {
	return a.cfg.Capacity
}

// Submit validates the input, computes the item's priority as the
// configured weighted sum, and inserts it into the queue. Required
// factors must be present; every supplied value must be in [0,1].
// Returns a copy of the stored item with status queued.
func (a *Allocator) Submit(in WorkItemInput) (*model.WorkItem, error) {
	attrs := make(map[string]float64, len(in.Attributes))
	for name, value := range in.Attributes {
		if value < 0 || value > 1 {
			return nil, &ValidationError{Factor: name, Reason: "must be in [0,1]"}
		}
		attrs[name] = value
	}

	priority := 0.0
	for _, f := range a.cfg.Factors {
		value, ok := attrs[f.Name]
		if !ok {
			if f.Required {
				return nil, &ValidationError{Factor: f.Name, Reason: "is required"}
			}
			continue
		}
		priority += f.Weight * value
	}

	item := &model.WorkItem{
		ID:          uuid.NewString(),
		SubmitterID: in.SubmitterID,
		SubmittedAt: a.now(),
		Attributes:  attrs,
		Priority:    priority,
		Status:      model.StatusQueued,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	e := &entry{item: item, seq: a.seq}
	a.insert(e)
	a.items[item.ID] = e
	return item.Clone(), nil
}

// insert keeps the queue sorted: priority descending, then submission
// time ascending, then insertion sequence. Runs under a.mu.
func (a *Allocator) insert(e *entry) {
	i := sort.Search(len(a.queue), func(i int) bool {
		return e.less(a.queue[i])
	})
	a.queue = append(a.queue, nil)
	copy(a.queue[i+1:], a.queue[i:])
	a.queue[i] = e
}

// less reports whether e dispatches before other.
func (e *entry) less(other *entry) bool {
	if e.item.Priority != other.item.Priority {
		return e.item.Priority > other.item.Priority
	}
	if !e.item.SubmittedAt.Equal(other.item.SubmittedAt) {
		return e.item.SubmittedAt.Before(other.item.SubmittedAt)
	}
	return e.seq < other.seq
}

// DispatchNext pops up to capacity items from the front of the queue,
// marks them dispatched, and returns copies in dispatch order. An empty
// queue yields an empty result, never an error.
func (a *Allocator) DispatchNext(capacity int) []*model.WorkItem {
	if capacity <= 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	n := capacity
	if n > len(a.queue) {
		n = len(a.queue)
	}

	dispatched := make([]*model.WorkItem, 0, n)
	for _, e := range a.queue[:n] {
		e.item.Status = model.StatusDispatched
		dispatched = append(dispatched, e.item.Clone())
	}
	a.queue = append([]*entry(nil), a.queue[n:]...)
	return dispatched
}

// Reject marks a queued item rejected and removes it from the queue.
// Non-queued ids (unknown, dispatched, or already rejected) return a
// NotFoundError and leave the queue unchanged.
func (a *Allocator) Reject(id, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.items[id]
	if !ok || e.item.Status != model.StatusQueued {
		return &NotFoundError{ID: id}
	}

	e.item.Status = model.StatusRejected
	e.item.RejectReason = reason
	for i, qe := range a.queue {
		if qe == e {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			break
		}
	}
	return nil
}

// Item returns a copy of the stored item, if known.
func (a *Allocator) Item(id string) (*model.WorkItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.items[id]
	if !ok {
		return nil, false
	}
	return e.item.Clone(), true
}

// Queued returns copies of all queued items in dispatch order.
func (a *Allocator) Queued() []*model.WorkItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*model.WorkItem, 0, len(a.queue))
	for _, e := range a.queue {
		out = append(out, e.item.Clone())
	}
	return out
}
