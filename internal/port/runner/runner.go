// Package runner defines the content-generation runner port. One
// implementation exists per phase kind; its prompt/response mechanics are
// opaque to the orchestrator.
package runner

import (
	"context"

	"github.com/inkforge/weaver/internal/domain/phase"
)

// Runner executes one phase kind. Run may perform long network I/O; it must
// honor ctx cancellation and report blocked preconditions through the result
// status rather than an error.
type Runner interface {
	// Kind declares the phase this runner is capable of executing.
	Kind() phase.Kind

	// Run executes the phase for the given execution context.
	Run(ctx context.Context, ec phase.ExecutionContext) (*phase.Result, error)
}
