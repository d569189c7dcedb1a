package service

import (
	"fmt"

	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/port/runner"
)

// RunnerRegistry is the capability-indexed set of phase runners, built once
// at startup. A missing or duplicate registration is a configuration error
// surfaced at construction, not at dispatch time.
type RunnerRegistry struct {
	runners map[phase.Kind]runner.Runner
}

// NewRunnerRegistry builds a registry from capability-declaring runners and
// verifies every phase kind is covered exactly once.
func NewRunnerRegistry(runners ...runner.Runner) (*RunnerRegistry, error) {
	byKind := make(map[phase.Kind]runner.Runner, len(runners))
	for _, r := range runners {
		kind := r.Kind()
		if _, dup := byKind[kind]; dup {
			return nil, fmt.Errorf("duplicate runner for phase %s", kind)
		}
		byKind[kind] = r
	}
	for _, kind := range phase.Kinds {
		if _, ok := byKind[kind]; !ok {
			return nil, fmt.Errorf("no runner registered for phase %s", kind)
		}
	}
	return &RunnerRegistry{runners: byKind}, nil
}

// Resolve returns the runner for a phase kind.
func (r *RunnerRegistry) Resolve(kind phase.Kind) (runner.Runner, error) {
	ru, ok := r.runners[kind]
	if !ok {
		return nil, fmt.Errorf("no runner registered for phase %s", kind)
	}
	return ru, nil
}
