package allocator

import "fmt"

// ValidationError reports a bad work item submission: a required factor
// is missing or a value is outside [0,1]. The caller must correct the
// input; nothing is defaulted silently for required factors.
type ValidationError struct {
	Factor string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid work item: factor %q %s", e.Factor, e.Reason)
}

// NotFoundError reports a reject against an id that is not currently
// queued: unknown, already dispatched, or already rejected.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no queued work item with id %q", e.ID)
}
