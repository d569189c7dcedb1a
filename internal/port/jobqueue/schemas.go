package jobqueue

import "time"

// PhaseJobPayload is the wire schema for weaver.jobs.<phase> messages.
type PhaseJobPayload struct {
	JobID          string            `json:"job_id"`
	Phase          string            `json:"phase"`
	StoryID        string            `json:"story_id"`
	AgentID        string            `json:"agent_id"`
	ConversationID string            `json:"conversation_id"`
	TargetID       string            `json:"target_id,omitempty"`
	ProviderID     string            `json:"provider_id"`
	ModelID        string            `json:"model_id,omitempty"`
	Branch         string            `json:"branch"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
}

// ProgressEventPayload is the wire schema for weaver.progress.<phase>
// messages. Consumers assume at-least-once delivery.
type ProgressEventPayload struct {
	StoryID        string         `json:"story_id"`
	ConversationID string         `json:"conversation_id"`
	AgentID        string         `json:"agent_id"`
	Branch         string         `json:"branch"`
	Phase          string         `json:"phase"`
	Status         string         `json:"status"`
	Summary        string         `json:"summary,omitempty"`
	CheckpointID   string         `json:"checkpoint_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data,omitempty"`
}
