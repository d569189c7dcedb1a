package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkforge/weaver/internal/domain/entity"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/port/database"
	"github.com/inkforge/weaver/internal/port/jobqueue"
)

// LoreService watches unfulfilled lore requirements and requests automatic
// fulfillment for any requirement blocked longer than the configured SLA.
// Each requirement is stamped before its job is enqueued so it is requested
// at most once.
type LoreService struct {
	store    database.Store
	enqueuer jobqueue.Enqueuer
	sla      time.Duration
	interval time.Duration
}

// NewLoreService creates a LoreService with all dependencies.
func NewLoreService(store database.Store, enqueuer jobqueue.Enqueuer, sla, interval time.Duration) *LoreService {
	return &LoreService{store: store, enqueuer: enqueuer, sla: sla, interval: interval}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *LoreService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, time.Now().UTC()); err != nil {
				slog.Error("lore sweep", "error", err)
			}
		}
	}
}

// Sweep enqueues one fulfillment job per requirement older than the SLA that
// has not already been requested. Returns the number of jobs enqueued.
func (s *LoreService) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.sla)
	reqs, err := s.store.ListUnfulfilledLore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list unfulfilled lore: %w", err)
	}

	enqueued := 0
	for i := range reqs {
		req := &reqs[i]
		if req.Metadata[entity.MetaAutoFulfillRequestedAt] != "" {
			continue
		}

		providerID := req.Metadata[phase.MetaProviderID]
		if providerID == "" {
			slog.Warn("lore requirement has no provider id, skipping",
				"lore_id", req.ID, "story_id", req.StoryID)
			continue
		}

		metadata := make(map[string]string, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		metadata[entity.MetaAutoFulfillRequestedAt] = now.Format(time.RFC3339)

		// Stamp first so a failed enqueue is retried manually rather than
		// risking duplicate requests on redelivery.
		if err := s.store.UpdateLoreMetadata(ctx, req.ID, metadata); err != nil {
			slog.Error("stamp lore requirement", "lore_id", req.ID, "error", err)
			continue
		}

		jobID, err := s.enqueuer.EnqueueLoreFulfillment(ctx, jobqueue.Job{
			StoryID:        req.StoryID,
			AgentID:        req.Metadata["agentId"],
			ConversationID: req.Metadata["conversationId"],
			TargetID:       req.ID,
			ProviderID:     providerID,
			ModelID:        req.Metadata[phase.MetaModelID],
			Branch:         req.Branch,
			Metadata:       metadata,
		})
		if err != nil {
			slog.Error("enqueue lore fulfillment", "lore_id", req.ID, "error", err)
			continue
		}
		enqueued++

		slog.Info("lore fulfillment requested",
			"lore_id", req.ID,
			"story_id", req.StoryID,
			"job_id", jobID,
			"blocked_for", now.Sub(req.CreatedAt),
		)
	}
	return enqueued, nil
}
