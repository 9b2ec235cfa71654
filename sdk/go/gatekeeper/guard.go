package gatekeeper

import "context"

// HandlerFunc is the function signature that Wrap guards. The caller
// provides a Request describing the inbound traffic.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Wrap returns a new HandlerFunc that runs the gate before calling fn.
// If the gate blocks the request, returns a *BlockedError without
// calling fn. Warned requests still reach fn; the warning is visible in
// the result returned by Evaluate for callers that need it.
func (c *Client) Wrap(fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		result := c.Evaluate(req)
		if result.Decision == Block {
			return nil, &BlockedError{
				Request:  req,
				Decision: result.Decision,
				Result:   result,
			}
		}
		return fn(ctx, req)
	}
}
