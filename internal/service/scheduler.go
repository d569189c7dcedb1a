package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	wotel "github.com/inkforge/weaver/internal/adapter/otel"
	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/backlog"
	"github.com/inkforge/weaver/internal/domain/entity"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/domain/story"
	"github.com/inkforge/weaver/internal/port/database"
	"github.com/inkforge/weaver/internal/port/jobqueue"
)

// SchedulerService advances the backlog: after each phase completion it finds
// the next ready item, materializes any missing downstream entities, and
// enqueues exactly one job for the corresponding phase.
//
// Mutual exclusion per phase key comes from only ever advancing one
// Pending item to InProgress per call and never re-scanning items already
// InProgress. Two racing invocations may still pick the same item; backlog
// status is last-write-wins by design.
type SchedulerService struct {
	store    database.Store
	enqueuer jobqueue.Enqueuer
	metrics  *wotel.Metrics
}

// NewSchedulerService creates a SchedulerService with all dependencies.
func NewSchedulerService(store database.Store, enqueuer jobqueue.Enqueuer, metrics *wotel.Metrics) *SchedulerService {
	return &SchedulerService{store: store, enqueuer: enqueuer, metrics: metrics}
}

// Schedule enqueues at most one job for the next ready backlog item of the
// story. A missing provider id aborts scheduling with a warning, not an
// error.
func (s *SchedulerService) Schedule(ctx context.Context, st *story.Story, ec phase.ExecutionContext) error {
	ctx, span := wotel.StartScheduleSpan(ctx, st.ID)
	defer span.End()

	items, err := s.store.ListBacklog(ctx, st.ID)
	if err != nil {
		return fmt.Errorf("list backlog for story %s: %w", st.ID, err)
	}

	item := backlog.NextReady(items)
	if item == nil {
		return nil
	}
	kind, _ := backlog.PhaseFor(item)

	providerID := ec.Meta(phase.MetaProviderID)
	if providerID == "" {
		slog.Warn("scheduling aborted, no provider id in metadata",
			"story_id", st.ID, "backlog_id", item.ID)
		return nil
	}
	modelID := ec.Meta(phase.MetaModelID)

	branch := ec.Branch
	if branch == "" {
		branch = st.Branch()
	}

	resolved, targetID, err := s.ensureTargets(ctx, st, item, kind, branch)
	if err != nil {
		return fmt.Errorf("materialize targets for backlog %s: %w", item.ID, err)
	}

	item.Status = backlog.StatusInProgress
	if item.StartedAt == nil {
		now := time.Now().UTC()
		item.StartedAt = &now
	}
	if err := s.store.UpdateBacklogItem(ctx, item); err != nil {
		return fmt.Errorf("mark backlog %s in progress: %w", item.ID, err)
	}

	metadata := s.jobMetadata(ctx, st, item, ec, resolved)

	job := jobqueue.Job{
		StoryID:        st.ID,
		AgentID:        ec.AgentID,
		ConversationID: ec.ConversationID,
		TargetID:       targetID,
		ProviderID:     providerID,
		ModelID:        modelID,
		Branch:         branch,
		Metadata:       metadata,
	}

	jobID, err := s.enqueue(ctx, kind, job)
	if err != nil {
		return fmt.Errorf("enqueue %s for backlog %s: %w", kind, item.ID, err)
	}
	s.metrics.JobsEnqueued.Add(ctx, 1)

	slog.Info("backlog item scheduled",
		"story_id", st.ID,
		"backlog_id", item.ID,
		"phase", kind,
		"job_id", jobID,
		"target_id", targetID,
	)
	return nil
}

// ensureTargets creates stub records for any target entities the phase needs
// and back-fills their ids onto the backlog item's output tokens. It returns
// the resolved id set and the primary target id for the job.
func (s *SchedulerService) ensureTargets(
	ctx context.Context,
	st *story.Story,
	item *backlog.Item,
	kind phase.Kind,
	branch string,
) (map[string]string, string, error) {
	resolved := make(map[string]string)

	switch kind {
	case phase.KindChapterArchitect:
		id, err := s.ensureBlueprint(ctx, st, item, branch)
		if err != nil {
			return nil, "", err
		}
		resolved[phase.MetaBlueprintID] = id
		return resolved, id, nil

	case phase.KindScrollRefiner:
		id, err := s.ensureScroll(ctx, st, item, branch, resolved)
		if err != nil {
			return nil, "", err
		}
		resolved[phase.MetaScrollID] = id
		return resolved, id, nil

	case phase.KindSceneWeaver:
		id, err := s.ensureScene(ctx, st, item, branch, resolved)
		if err != nil {
			return nil, "", err
		}
		resolved[phase.MetaSceneID] = id
		return resolved, id, nil

	case phase.KindWorldBible:
		id, err := s.ensureWorldBible(ctx, st, item, branch)
		if err != nil {
			return nil, "", err
		}
		resolved[phase.MetaWorldBibleID] = id
		return resolved, id, nil

	case phase.KindIterativePlanner:
		idx, err := s.ensureIteration(ctx, st, item)
		if err != nil {
			return nil, "", err
		}
		resolved[phase.MetaIterationIndex] = strconv.Itoa(idx)
		return resolved, "", nil
	}

	return resolved, "", nil
}

func (s *SchedulerService) ensureBlueprint(ctx context.Context, st *story.Story, item *backlog.Item, branch string) (string, error) {
	if id, ok := backlog.OutputValue(item, phase.MetaBlueprintID); ok {
		if _, err := s.store.GetBlueprint(ctx, id); err == nil {
			return id, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("load blueprint %s: %w", id, err)
		}
		// Token points at a row that no longer exists; re-materialize.
		slog.Warn("stale blueprint token on backlog item", "backlog_id", item.ID, "blueprint_id", id)
	}

	index, err := s.store.NextChapterIndex(ctx, st.ID)
	if err != nil {
		return "", fmt.Errorf("next chapter index: %w", err)
	}
	bp := &entity.ChapterBlueprint{
		ID:           uuid.NewString(),
		StoryID:      st.ID,
		Branch:       branch,
		Slug:         "chapter-" + item.ID,
		ChapterIndex: index,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateBlueprint(ctx, bp); err != nil {
		return "", fmt.Errorf("create blueprint: %w", err)
	}
	backlog.SetOutputValue(item, phase.MetaBlueprintID, bp.ID)
	return bp.ID, nil
}

func (s *SchedulerService) ensureScroll(ctx context.Context, st *story.Story, item *backlog.Item, branch string, resolved map[string]string) (string, error) {
	if id, ok := backlog.OutputValue(item, phase.MetaScrollID); ok {
		if _, err := s.store.GetScroll(ctx, id); err == nil {
			return id, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("load scroll %s: %w", id, err)
		}
		slog.Warn("stale scroll token on backlog item", "backlog_id", item.ID, "scroll_id", id)
	}

	bpID, err := s.ensureBlueprint(ctx, st, item, branch)
	if err != nil {
		return "", err
	}
	resolved[phase.MetaBlueprintID] = bpID

	sc := &entity.Scroll{
		ID:          uuid.NewString(),
		StoryID:     st.ID,
		BlueprintID: bpID,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateScroll(ctx, sc); err != nil {
		return "", fmt.Errorf("create scroll: %w", err)
	}
	sec := &entity.Section{
		ID:        uuid.NewString(),
		ScrollID:  sc.ID,
		Index:     1,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateSection(ctx, sec); err != nil {
		return "", fmt.Errorf("create section: %w", err)
	}
	backlog.SetOutputValue(item, phase.MetaScrollID, sc.ID)
	backlog.SetOutputValue(item, phase.MetaSectionID, sec.ID)
	resolved[phase.MetaSectionID] = sec.ID
	return sc.ID, nil
}

func (s *SchedulerService) ensureScene(ctx context.Context, st *story.Story, item *backlog.Item, branch string, resolved map[string]string) (string, error) {
	if id, ok := backlog.OutputValue(item, phase.MetaSceneID); ok {
		return id, nil
	}

	scrollID, err := s.ensureScroll(ctx, st, item, branch, resolved)
	if err != nil {
		return "", err
	}
	resolved[phase.MetaScrollID] = scrollID

	sec, err := s.store.FirstSection(ctx, scrollID)
	if errors.Is(err, domain.ErrNotFound) {
		sec = &entity.Section{
			ID:        uuid.NewString(),
			ScrollID:  scrollID,
			Index:     1,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.CreateSection(ctx, sec); err != nil {
			return "", fmt.Errorf("create section: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("resolve section: %w", err)
	}
	resolved[phase.MetaSectionID] = sec.ID

	index, err := s.store.NextSceneIndex(ctx, sec.ID)
	if err != nil {
		return "", fmt.Errorf("next scene index: %w", err)
	}
	sn := &entity.Scene{
		ID:        uuid.NewString(),
		SectionID: sec.ID,
		Index:     index,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateScene(ctx, sn); err != nil {
		return "", fmt.Errorf("create scene: %w", err)
	}
	backlog.SetOutputValue(item, phase.MetaSceneID, sn.ID)
	return sn.ID, nil
}

func (s *SchedulerService) ensureWorldBible(ctx context.Context, st *story.Story, item *backlog.Item, branch string) (string, error) {
	if id, ok := backlog.OutputValue(item, phase.MetaWorldBibleID); ok {
		return id, nil
	}

	// A NULL branch on an existing entry is equivalent to the default branch.
	wbBranch := branch
	if wbBranch == story.DefaultBranch {
		wbBranch = ""
	}

	wb, err := s.store.FindWorldBible(ctx, st.ID, entity.WorldBibleDomainCore, wbBranch)
	if errors.Is(err, domain.ErrNotFound) {
		wb = &entity.WorldBible{
			ID:        uuid.NewString(),
			StoryID:   st.ID,
			Domain:    entity.WorldBibleDomainCore,
			Branch:    wbBranch,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.CreateWorldBible(ctx, wb); err != nil {
			return "", fmt.Errorf("create world bible: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("find world bible: %w", err)
	}
	backlog.SetOutputValue(item, phase.MetaWorldBibleID, wb.ID)
	return wb.ID, nil
}

func (s *SchedulerService) ensureIteration(ctx context.Context, st *story.Story, item *backlog.Item) (int, error) {
	if v, ok := backlog.OutputValue(item, phase.MetaIterationIndex); ok {
		idx, err := strconv.Atoi(v)
		if err == nil {
			return idx, nil
		}
	}

	maxIndex, err := s.store.MaxIterationIndex(ctx, st.ID)
	if err != nil {
		return 0, fmt.Errorf("max iteration index: %w", err)
	}
	idx := maxIndex + 1
	backlog.SetOutputValue(item, phase.MetaIterationIndex, strconv.Itoa(idx))
	return idx, nil
}

// perInvocationMeta are metadata keys scoped to a single phase invocation.
// Cancel and resume flags target one phase key, and entity ids belong to one
// backlog item; none of them carry over into the next scheduled job.
var perInvocationMeta = map[string]struct{}{
	phase.MetaCancel:             {},
	phase.MetaResume:             {},
	phase.MetaBacklogItemID:      {},
	phase.MetaConversationTaskID: {},
	phase.MetaBlueprintID:        {},
	phase.MetaScrollID:           {},
	phase.MetaSectionID:          {},
	phase.MetaSceneID:            {},
	phase.MetaWorldBibleID:       {},
	phase.MetaIterationIndex:     {},
}

// jobMetadata merges the carryover context metadata with the backlog item id,
// the resolved entity ids, and the conversation-plan pairing when resolvable.
func (s *SchedulerService) jobMetadata(
	ctx context.Context,
	st *story.Story,
	item *backlog.Item,
	ec phase.ExecutionContext,
	resolved map[string]string,
) map[string]string {
	metadata := make(map[string]string, len(ec.Metadata)+len(resolved)+3)
	for k, v := range ec.Metadata {
		if _, scoped := perInvocationMeta[k]; scoped {
			continue
		}
		metadata[k] = v
	}
	metadata[phase.MetaBacklogItemID] = item.ID
	for k, v := range resolved {
		metadata[k] = v
	}

	if st.ConversationPlanID != "" {
		metadata[phase.MetaConversationPlanID] = st.ConversationPlanID
		task, err := s.store.FindConversationTask(ctx, st.ConversationPlanID, item.ID)
		if err == nil {
			metadata[phase.MetaConversationTaskID] = task.ID
		} else if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("resolve conversation task", "backlog_id", item.ID, "error", err)
		}
	}
	return metadata
}

func (s *SchedulerService) enqueue(ctx context.Context, kind phase.Kind, job jobqueue.Job) (string, error) {
	switch kind {
	case phase.KindVisionPlanner:
		return s.enqueuer.EnqueueVisionPlanning(ctx, job)
	case phase.KindWorldBible:
		return s.enqueuer.EnqueueWorldBible(ctx, job)
	case phase.KindIterativePlanner:
		return s.enqueuer.EnqueueIterativePlanning(ctx, job)
	case phase.KindChapterArchitect:
		return s.enqueuer.EnqueueChapterArchitect(ctx, job)
	case phase.KindScrollRefiner:
		return s.enqueuer.EnqueueScrollRefiner(ctx, job)
	case phase.KindSceneWeaver:
		return s.enqueuer.EnqueueSceneWeaver(ctx, job)
	case phase.KindLoreFulfillment:
		return s.enqueuer.EnqueueLoreFulfillment(ctx, job)
	}
	return "", fmt.Errorf("no enqueue method for phase %s", kind)
}
