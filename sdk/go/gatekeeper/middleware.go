package gatekeeper

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// Middleware returns an http.Handler that runs each request through the
// gate before passing to the next handler. Blocked requests receive a
// 403 with a JSON body; warned requests pass through with an
// X-Gate-Warning header.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := c.Evaluate(requestFromHTTP(r, c.sourceID(r)))

		switch result.Decision {
		case Block:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"blocked":    true,
				"decision":   string(result.Decision),
				"escalation": result.Escalation,
			})
			return
		case WarnAndMonitor:
			w.Header().Set("X-Gate-Warning", result.Escalation)
		}

		next.ServeHTTP(w, r)
	})
}

func (c *Client) sourceID(r *http.Request) string {
	if c.cfg.sourceFunc != nil {
		return c.cfg.sourceFunc(r)
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// requestFromHTTP flattens an HTTP request into the SDK Request shape.
// The body is not read; body rules only apply to callers that populate
// Request.Body themselves.
func requestFromHTTP(r *http.Request, sourceID string) Request {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	query := map[string]string{}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}
	return Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Headers:  headers,
		Query:    query,
		SourceID: sourceID,
	}
}
