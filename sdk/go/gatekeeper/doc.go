// Package gatekeeper provides in-process traffic gating for Go services.
// It classifies inbound requests as bot or human, scores commercial
// intent, tracks repeat offenders with time decay, and enforces the
// resulting action (allow, warn-and-monitor, block) before the request
// reaches application handlers.
//
// Usage:
//
//	gk, err := gatekeeper.New(gatekeeper.WithRules("rules.yaml"))
//	http.ListenAndServe(":8080", gk.Middleware(mux))
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/openpantry/gatekeeper/sdk/go/gatekeeper.
package gatekeeper
