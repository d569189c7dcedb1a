// Package quota resolves iteration, queue and token limits per planner key
// and persona, with persona-level overrides layered over planner defaults.
package quota

import "fmt"

// Limits holds the nullable caps for one scope. A nil field leaves the value
// resolved by broader scopes untouched; a value <= 0 explicitly disables the
// cap at that scope.
type Limits struct {
	MaxIterations *int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	MaxQueuedJobs *int `yaml:"max_queued_jobs,omitempty" json:"max_queued_jobs,omitempty"`
	MaxTokens     *int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// overlay returns l with o's non-nil fields written over it.
func (l Limits) overlay(o Limits) Limits {
	if o.MaxIterations != nil {
		l.MaxIterations = o.MaxIterations
	}
	if o.MaxQueuedJobs != nil {
		l.MaxQueuedJobs = o.MaxQueuedJobs
	}
	if o.MaxTokens != nil {
		l.MaxTokens = o.MaxTokens
	}
	return l
}

// PersonaPolicy holds persona-scoped defaults and per-planner overrides.
type PersonaPolicy struct {
	Defaults Limits            `yaml:"defaults"`
	Planners map[string]Limits `yaml:"planners,omitempty"`
}

// Policy is the full quota document: global defaults, planner overrides,
// persona policies.
type Policy struct {
	Defaults Limits                   `yaml:"defaults"`
	Planners map[string]Limits        `yaml:"planners,omitempty"`
	Personas map[string]PersonaPolicy `yaml:"personas,omitempty"`
}

// Resolve layers the policy for (plannerKey, personaID): global defaults,
// then planner override, then persona defaults, then persona+planner
// override. Later layers overwrite only the fields they explicitly set.
func (p Policy) Resolve(plannerKey, personaID string) Limits {
	l := p.Defaults
	if o, ok := p.Planners[plannerKey]; ok {
		l = l.overlay(o)
	}
	if personaID != "" {
		if pp, ok := p.Personas[personaID]; ok {
			l = l.overlay(pp.Defaults)
			if o, ok := pp.Planners[plannerKey]; ok {
				l = l.overlay(o)
			}
		}
	}
	return l
}

// Check carries the usage figures the caller wants evaluated. Nil fields skip
// that dimension.
type Check struct {
	Iteration       *int `json:"iteration,omitempty"`
	QueuedJobs      *int `json:"queued_jobs,omitempty"`
	RequestedTokens *int `json:"requested_tokens,omitempty"`
}

// Decision is the outcome of a quota evaluation. It is not an error; callers
// branch on Allowed explicitly.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	LimitKind string `json:"limit_kind,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Limit kinds reported in blocked decisions.
const (
	LimitIterations = "max_iterations"
	LimitQueuedJobs = "max_queued_jobs"
	LimitTokens     = "max_tokens"
)

// Evaluate checks the supplied usage against resolved limits. Iteration
// blocks at index >= limit (the limit counts attempts), queue depth blocks at
// pending >= limit, tokens block at requested > limit. Limits <= 0 are unset.
func Evaluate(l Limits, c Check) Decision {
	if c.Iteration != nil && capped(l.MaxIterations) && *c.Iteration >= *l.MaxIterations {
		return blocked(LimitIterations, *l.MaxIterations,
			fmt.Sprintf("iteration %d reached the limit of %d", *c.Iteration, *l.MaxIterations))
	}
	if c.QueuedJobs != nil && capped(l.MaxQueuedJobs) && *c.QueuedJobs >= *l.MaxQueuedJobs {
		return blocked(LimitQueuedJobs, *l.MaxQueuedJobs,
			fmt.Sprintf("%d jobs pending, limit is %d", *c.QueuedJobs, *l.MaxQueuedJobs))
	}
	if c.RequestedTokens != nil && capped(l.MaxTokens) && *c.RequestedTokens > *l.MaxTokens {
		return blocked(LimitTokens, *l.MaxTokens,
			fmt.Sprintf("%d tokens requested, limit is %d", *c.RequestedTokens, *l.MaxTokens))
	}
	return Decision{Allowed: true}
}

func capped(v *int) bool {
	return v != nil && *v > 0
}

func blocked(kind string, limit int, reason string) Decision {
	return Decision{LimitKind: kind, Limit: limit, Reason: reason}
}

// Int is a convenience for building nullable limit values in literals.
func Int(v int) *int { return &v }
