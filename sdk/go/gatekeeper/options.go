package gatekeeper

import (
	"net/http"

	"github.com/openpantry/gatekeeper/internal/events"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	rulesPath   string
	weightsPath string
	sink        events.Sink
	sourceFunc  func(*http.Request) string
}

// WithRules sets the path to a rule table YAML file.
func WithRules(path string) Option {
	return func(c *clientConfig) { c.rulesPath = path }
}

// WithWeights sets the path to an allocation weights YAML file.
func WithWeights(path string) Option {
	return func(c *clientConfig) { c.weightsPath = path }
}

// WithSink sets the event sink for decision events.
func WithSink(sink events.Sink) Option {
	return func(c *clientConfig) { c.sink = sink }
}

// WithSourceFunc overrides how the middleware derives the source
// identifier from an HTTP request. The default uses the remote host,
// preferring X-Forwarded-For when present.
func WithSourceFunc(fn func(*http.Request) string) Option {
	return func(c *clientConfig) { c.sourceFunc = fn }
}
