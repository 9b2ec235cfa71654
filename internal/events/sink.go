// Package events is the core's only outbound boundary for telemetry.
// Every classification, fold, submit, and dispatch emits one structured
// event through a caller-supplied sink; the core never writes files.
package events

import (
	"log/slog"
	"time"
)

// Event categories emitted by the core.
const (
	CategoryClassify = "classify"
	CategoryFold     = "fold"
	CategorySubmit   = "submit"
	CategoryDispatch = "dispatch"
	CategoryReject   = "reject"
	CategorySweep    = "sweep"
	CategoryReset    = "reset"
)

// Event is one structured core event.
type Event struct {
	Time     time.Time      `json:"time"`
	Category string         `json:"category"`
	SourceID string         `json:"source_id,omitempty"`
	ItemID   string         `json:"item_id,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Sink receives core events. Implementations must be safe for
// concurrent use and must not block the caller.
type Sink interface {
	Emit(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// SlogSink forwards events to a structured logger.
type SlogSink struct {
	Logger *slog.Logger
}

// Emit logs the event at info level with flattened attributes.
func (s SlogSink) Emit(e Event) {
	if s.Logger == nil {
		return
	}
	attrs := make([]any, 0, 2+2*len(e.Fields))
	if e.SourceID != "" {
		attrs = append(attrs, "source_id", e.SourceID)
	}
	if e.ItemID != "" {
		attrs = append(attrs, "item_id", e.ItemID)
	}
	for k, v := range e.Fields {
		attrs = append(attrs, k, v)
	}
	s.Logger.Info(e.Category, attrs...)
}

// Multi fans one event out to several sinks.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}
