package gatekeeper

import (
	"context"
	"errors"
	"testing"
)

func TestWrapBlocksAfterEscalation(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	wrapped := c.Wrap(func(ctx context.Context, req Request) (any, error) {
		calls++
		return "ok", nil
	})

	req := scraperRequest("203.0.113.9")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := wrapped(ctx, req); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	_, err = wrapped(ctx, req)
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *BlockedError, got %v", err)
	}
	if blocked.Decision != Block || blocked.Result.Escalation != "blocked" {
		t.Errorf("unexpected error detail: %+v", blocked)
	}
	if calls != 2 {
		t.Errorf("handler must not run for blocked requests, got %d calls", calls)
	}
}
