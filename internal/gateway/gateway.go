// Package gateway defines the interface for learner-facing entry points.
package gateway

import "context"

// Gateway is a learner-facing interface (terminal REPL, HTTP API).
type Gateway interface {
	// Start runs the gateway and blocks until it exits or ctx is
	// canceled. Returns an error only on failure.
	Start(ctx context.Context) error

	// Stop performs graceful shutdown. The context carries a deadline
	// for the grace period.
	Stop(ctx context.Context) error
}
