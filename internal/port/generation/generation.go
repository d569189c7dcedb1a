// Package generation defines the port to the content-generation workers. The
// orchestrator owns budgets and scheduling; the workers own prompts and model
// calls.
package generation

import (
	"context"

	"github.com/inkforge/weaver/internal/domain/critique"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/domain/planner"
)

// SubjectPrefix is the request subject prefix for generation workers; the
// full subject is weaver.generate.<phase kind>.
const SubjectPrefix = "weaver.generate"

// Request is the wire schema sent to a generation worker. The critique budget
// travels with the request; the worker enforces it during its planning loop.
type Request struct {
	Kind     phase.Kind             `json:"kind"`
	Context  phase.ExecutionContext `json:"context"`
	Critique critique.Config        `json:"critique"`
}

// Backend executes one generation request against a worker and returns its
// structured planning result.
type Backend interface {
	Generate(ctx context.Context, req Request) (*planner.Result, error)
}
