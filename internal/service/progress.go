package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkforge/weaver/internal/domain/checkpoint"
	"github.com/inkforge/weaver/internal/domain/entity"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/port/jobqueue"
)

// EventPhaseProgress is the websocket event type for phase progress pushes.
const EventPhaseProgress = "phase.progress"

// publishProgress emits one progress transition on all three channels: the
// NATS event stream, the conversation-scoped websocket channel, and the
// workflow audit log. All three are best-effort and never affect
// orchestration state.
func (s *PhaseEngineService) publishProgress(
	ctx context.Context,
	ec phase.ExecutionContext,
	kind phase.Kind,
	cp *checkpoint.Checkpoint,
	status, summary string,
	data map[string]any,
) {
	payload := jobqueue.ProgressEventPayload{
		StoryID:        ec.StoryID,
		ConversationID: ec.ConversationID,
		AgentID:        ec.AgentID,
		Branch:         ec.Branch,
		Phase:          string(kind),
		Status:         status,
		Summary:        summary,
		CheckpointID:   cp.ID,
		Timestamp:      time.Now().UTC(),
		Data:           data,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal progress event", "phase", kind, "error", err)
		return
	}
	subject := jobqueue.SubjectProgress + "." + string(kind)
	if err := s.queue.Publish(ctx, subject, raw); err != nil {
		slog.Warn("publish progress event", "subject", subject, "error", err)
	}

	s.hub.BroadcastEvent(ctx, ec.ConversationID, EventPhaseProgress, payload)
	s.audit.Append(ctx, ec.ConversationID, "phase."+status, payload)
}

// transcriptRecord builds one persisted transcript row for a runner entry.
func transcriptRecord(cp *checkpoint.Checkpoint, ec phase.ExecutionContext, role, content string) *entity.TranscriptRecord {
	return &entity.TranscriptRecord{
		ID:           uuid.NewString(),
		CheckpointID: cp.ID,
		StoryID:      ec.StoryID,
		Branch:       ec.Branch,
		PhaseKey:     cp.PhaseKey,
		TargetID:     ec.TargetID(),
		Role:         role,
		Content:      content,
		CreatedAt:    time.Now().UTC(),
	}
}
