// Package critique bounds how many self-review passes a planning loop may
// spend, per step and in total, against a token budget.
package critique

import (
	"sync"

	"github.com/inkforge/weaver/internal/domain/planner"
)

// DenyReason explains why a critique attempt was not allowed.
type DenyReason string

const (
	DenyNone                DenyReason = ""
	DenyDisabled            DenyReason = "disabled"
	DenyTotalLimitReached   DenyReason = "total_limit_reached"
	DenyStepLimitReached    DenyReason = "step_limit_reached"
	DenyTokenBudgetExceeded DenyReason = "token_budget_exceeded"
)

// Config bounds one planning run's critique spending. Zero limits mean
// unlimited for that dimension.
type Config struct {
	Enabled    bool `yaml:"enabled"`
	MaxTotal   int  `yaml:"max_total"`
	MaxPerStep int  `yaml:"max_per_step"`
	MaxTokens  int  `yaml:"max_tokens"`
}

// Manager tracks critique spending for one planning-run instance.
// Count budgets are reserved at Begin so concurrent or abandoned attempts
// cannot over-spend; token spending is recorded at Complete.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	total   int
	perStep map[string]int
	tokens  int
	denials map[DenyReason]int
	tokenHi bool // a token-budget denial occurred
	countHi bool // the total-count ceiling was hit
}

// NewManager creates a Manager for one planning run.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		perStep: make(map[string]int),
		denials: make(map[DenyReason]int),
	}
}

// Attempt is one critique attempt. Callers must call Complete or Close on
// every allowed attempt; an attempt closed without completion still counts
// against the count budget with zero additional tokens.
type Attempt struct {
	m       *Manager
	allowed bool
	reason  DenyReason
	done    bool
}

// Allowed reports whether this attempt may proceed.
func (a *Attempt) Allowed() bool { return a.allowed }

// Reason returns the denial reason for a disallowed attempt.
func (a *Attempt) Reason() DenyReason { return a.reason }

// Complete records the tokens actually consumed by an allowed attempt.
func (a *Attempt) Complete(tokensUsed int) {
	if !a.allowed || a.done {
		return
	}
	a.done = true
	a.m.mu.Lock()
	a.m.tokens += tokensUsed
	a.m.mu.Unlock()
}

// Close marks an allowed attempt as abandoned. The count reservation made at
// Begin stands; no tokens are added.
func (a *Attempt) Close() {
	a.done = true
}

// Begin evaluates one critique attempt against, in order: feature flag, total
// ceiling, per-step ceiling, projected token budget. Allowed attempts reserve
// their count immediately.
func (m *Manager) Begin(stepID string, estimatedTokens int) *Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()

	deny := func(reason DenyReason) *Attempt {
		m.denials[reason]++
		return &Attempt{m: m, reason: reason}
	}

	if !m.cfg.Enabled {
		return deny(DenyDisabled)
	}
	if m.cfg.MaxTotal > 0 && m.total >= m.cfg.MaxTotal {
		m.countHi = true
		return deny(DenyTotalLimitReached)
	}
	if m.cfg.MaxPerStep > 0 && m.perStep[stepID] >= m.cfg.MaxPerStep {
		return deny(DenyStepLimitReached)
	}
	if m.cfg.MaxTokens > 0 && m.tokens+estimatedTokens > m.cfg.MaxTokens {
		m.tokenHi = true
		return deny(DenyTokenBudgetExceeded)
	}

	m.total++
	m.perStep[stepID]++
	return &Attempt{m: m, allowed: true}
}

// Diagnostic summary values written by ApplyMetrics.
const (
	SummaryDisabled       = "disabled"
	SummaryTokenExhausted = "token-exhausted"
	SummaryCountExhausted = "count-exhausted"
	SummaryUsed           = "used"
	SummaryIdle           = "idle"
)

// ApplyMetrics writes the critique summary diagnostic and numeric metrics
// onto a planner result.
func (m *Manager) ApplyMetrics(r *planner.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := SummaryIdle
	switch {
	case !m.cfg.Enabled:
		summary = SummaryDisabled
	case m.tokenHi:
		summary = SummaryTokenExhausted
	case m.countHi:
		summary = SummaryCountExhausted
	case m.total > 0:
		summary = SummaryUsed
	}
	r.SetDiagnostic("critique", summary)

	denials := 0
	for _, n := range m.denials {
		denials += n
	}
	r.SetMetric("critique_count", float64(m.total))
	r.SetMetric("critique_tokens", float64(m.tokens))
	r.SetMetric("critique_denials", float64(denials))
}
