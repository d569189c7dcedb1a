// Package planner defines the structured result object produced by one
// planner-framework execution.
package planner

import "time"

// Outcome classifies a planner run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// StepStatus classifies one recorded planning step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepRecord is one completed step of a planning loop.
type StepRecord struct {
	ID       string        `json:"id"`
	Status   StepStatus    `json:"status"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Entry is one role-tagged transcript line.
type Entry struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// CritiquePass is one self-review pass a planning loop spent, reported per
// step with the tokens it consumed.
type CritiquePass struct {
	StepID string `json:"step_id"`
	Tokens int    `json:"tokens"`
}

// BacklogDraft is a backlog item emitted by a planner (vision planning emits
// the initial backlog this way).
type BacklogDraft struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Inputs      []string `json:"inputs,omitempty"`
	Outputs     []string `json:"outputs,omitempty"`
}

// Result is produced once per planner invocation. It is mutated only through
// its own methods and never persisted directly; the transcript store
// translates it into transcript records.
type Result struct {
	Outcome        Outcome            `json:"outcome"`
	Artifacts      map[string]string  `json:"artifacts,omitempty"`
	Steps          []StepRecord       `json:"steps,omitempty"`
	Transcript     []Entry            `json:"transcript,omitempty"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	Diagnostics    map[string]string  `json:"diagnostics,omitempty"`
	BacklogDrafts  []BacklogDraft     `json:"backlog_drafts,omitempty"`
	CritiquePasses []CritiquePass     `json:"critique_passes,omitempty"`
}

// NewResult returns an empty result with the given outcome.
func NewResult(outcome Outcome) *Result {
	return &Result{Outcome: outcome}
}

// AddStep appends a step record.
func (r *Result) AddStep(id string, status StepStatus, output string, d time.Duration) *Result {
	r.Steps = append(r.Steps, StepRecord{ID: id, Status: status, Output: output, Duration: d})
	return r
}

// Say appends a transcript entry.
func (r *Result) Say(role, content string) *Result {
	r.Transcript = append(r.Transcript, Entry{Role: role, Content: content, At: time.Now().UTC()})
	return r
}

// SetArtifact records a named artifact.
func (r *Result) SetArtifact(name, value string) *Result {
	if r.Artifacts == nil {
		r.Artifacts = make(map[string]string)
	}
	r.Artifacts[name] = value
	return r
}

// SetMetric records a numeric metric.
func (r *Result) SetMetric(name string, value float64) *Result {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	r.Metrics[name] = value
	return r
}

// AddMetric increments a numeric metric.
func (r *Result) AddMetric(name string, delta float64) *Result {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	r.Metrics[name] += delta
	return r
}

// SetDiagnostic records a string diagnostic.
func (r *Result) SetDiagnostic(name, value string) *Result {
	if r.Diagnostics == nil {
		r.Diagnostics = make(map[string]string)
	}
	r.Diagnostics[name] = value
	return r
}

// AddBacklogDraft appends an emitted backlog item.
func (r *Result) AddBacklogDraft(d BacklogDraft) *Result {
	r.BacklogDrafts = append(r.BacklogDrafts, d)
	return r
}

// AddCritiquePass records one spent self-review pass.
func (r *Result) AddCritiquePass(stepID string, tokens int) *Result {
	r.CritiquePasses = append(r.CritiquePasses, CritiquePass{StepID: stepID, Tokens: tokens})
	return r
}
