package gatekeeper

import (
	"fmt"
	"time"

	"github.com/openpantry/gatekeeper/internal/allocator"
	"github.com/openpantry/gatekeeper/internal/classify"
	"github.com/openpantry/gatekeeper/internal/events"
	"github.com/openpantry/gatekeeper/internal/gate"
	"github.com/openpantry/gatekeeper/internal/model"
	"github.com/openpantry/gatekeeper/internal/rules"
	"github.com/openpantry/gatekeeper/internal/tracker"
)

// Client holds the classification gate and project allocator for
// in-process enforcement. Thread-safe for concurrent requests.
type Client struct {
	cfg     clientConfig
	g       *gate.Gate
	tracker *tracker.Tracker
	alloc   *allocator.Allocator
}

// New creates a Client with the given options. Missing rule or weight
// paths fall back to the built-in defaults.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{sink: events.NopSink{}}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.sink == nil {
		cfg.sink = events.NopSink{}
	}

	rulesCfg, err := rules.Load(cfg.rulesPath)
	if err != nil {
		return nil, fmt.Errorf("gatekeeper: failed to load rules: %w", err)
	}
	weights, err := allocator.LoadConfig(cfg.weightsPath)
	if err != nil {
		return nil, fmt.Errorf("gatekeeper: failed to load weights: %w", err)
	}

	tr := tracker.New(rulesCfg)
	return &Client{
		cfg:     cfg,
		g:       gate.New(classify.New(rulesCfg), tr, cfg.sink),
		tracker: tr,
		alloc:   allocator.New(weights),
	}, nil
}

// Evaluate runs one request through the gate. Bot traffic updates the
// source's standing; human traffic passes through untracked.
func (c *Client) Evaluate(req Request) Result {
	return toResult(c.g.Evaluate(toFacts(req)))
}

// Submit queues a project for allocation and returns the stored item
// with its computed priority.
func (c *Client) Submit(submitterID string, attributes map[string]float64) (*model.WorkItem, error) {
	item, err := c.alloc.Submit(allocator.WorkItemInput{
		SubmitterID: submitterID,
		Attributes:  attributes,
	})
	if err != nil {
		return nil, err
	}
	c.cfg.sink.Emit(events.Event{
		Time:     item.SubmittedAt,
		Category: events.CategorySubmit,
		ItemID:   item.ID,
		Fields:   map[string]any{"submitter_id": item.SubmitterID, "priority": item.Priority},
	})
	return item, nil
}

// DispatchNext marks up to capacity queued items dispatched, highest
// priority first. capacity <= 0 uses the configured default.
func (c *Client) DispatchNext(capacity int) []*model.WorkItem {
	if capacity <= 0 {
		capacity = c.alloc.Capacity()
	}
	items := c.alloc.DispatchNext(capacity)
	now := time.Now().UTC()
	for _, item := range items {
		c.cfg.sink.Emit(events.Event{
			Time:     now,
			Category: events.CategoryDispatch,
			ItemID:   item.ID,
			Fields:   map[string]any{"submitter_id": item.SubmitterID, "priority": item.Priority},
		})
	}
	return items
}

// Reject removes a queued item from contention.
func (c *Client) Reject(id, reason string) error {
	if err := c.alloc.Reject(id, reason); err != nil {
		return err
	}
	c.cfg.sink.Emit(events.Event{
		Time:     time.Now().UTC(),
		Category: events.CategoryReject,
		ItemID:   id,
		Fields:   map[string]any{"reason": reason},
	})
	return nil
}

// ResetSource clears a source's accumulated standing. Administrative
// override; the only way a standing ever goes down.
func (c *Client) ResetSource(sourceID string) bool {
	if !c.tracker.Reset(sourceID) {
		return false
	}
	c.cfg.sink.Emit(events.Event{
		Time:     time.Now().UTC(),
		Category: events.CategoryReset,
		SourceID: sourceID,
	})
	return true
}

// Sweep evicts sources idle past the configured TTL and returns the
// number evicted. Call periodically; the SDK does not run its own timer.
func (c *Client) Sweep() int {
	now := time.Now().UTC()
	evicted := c.tracker.Sweep(now)
	c.cfg.sink.Emit(events.Event{
		Time:     now,
		Category: events.CategorySweep,
		Fields:   map[string]any{"evicted": evicted, "tracked": c.tracker.Len()},
	})
	return evicted
}
