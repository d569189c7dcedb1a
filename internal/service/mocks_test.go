package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/backlog"
	"github.com/inkforge/weaver/internal/domain/checkpoint"
	"github.com/inkforge/weaver/internal/domain/entity"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/domain/planner"
	"github.com/inkforge/weaver/internal/domain/story"
	"github.com/inkforge/weaver/internal/port/generation"
	"github.com/inkforge/weaver/internal/port/jobqueue"
)

// mockStore is an in-memory database.Store for service tests.
type mockStore struct {
	mu sync.Mutex

	stories     map[string]*story.Story
	checkpoints map[string]*checkpoint.Checkpoint
	items       []*backlog.Item
	blueprints  map[string]*entity.ChapterBlueprint
	scrolls     map[string]*entity.Scroll
	sections    []*entity.Section
	scenes      []*entity.Scene
	worldBibles []*entity.WorldBible
	iterPasses  []*entity.IterationPass
	lore        []*entity.LoreRequirement
	convTasks   []*entity.ConversationTask
	transcripts []entity.TranscriptRecord

	updateCheckpointErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		stories:     make(map[string]*story.Story),
		checkpoints: make(map[string]*checkpoint.Checkpoint),
		blueprints:  make(map[string]*entity.ChapterBlueprint),
		scrolls:     make(map[string]*entity.Scroll),
	}
}

func cpKey(storyID, phaseKey string) string { return storyID + "|" + phaseKey }

func (m *mockStore) CreateStory(_ context.Context, req story.CreateRequest) (*story.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &story.Story{
		ID:            fmt.Sprintf("story-%d", len(m.stories)+1),
		Title:         req.Title,
		Status:        story.StatusDraft,
		PrimaryBranch: req.PrimaryBranch,
		Version:       1,
		CreatedAt:     time.Now().UTC(),
	}
	if st.PrimaryBranch == "" {
		st.PrimaryBranch = story.DefaultBranch
	}
	m.stories[st.ID] = st
	clone := *st
	return &clone, nil
}

func (m *mockStore) GetStory(_ context.Context, id string) (*story.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stories[id]
	if !ok {
		return nil, fmt.Errorf("story %s: %w", id, domain.ErrNotFound)
	}
	clone := *st
	return &clone, nil
}

func (m *mockStore) UpdateStoryStatus(_ context.Context, id string, status story.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stories[id]
	if !ok {
		return domain.ErrNotFound
	}
	st.Status = status
	return nil
}

func (m *mockStore) TouchStory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.stories[id]; ok {
		st.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *mockStore) GetCheckpoint(_ context.Context, storyID, phaseKey string) (*checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[cpKey(storyID, phaseKey)]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", phaseKey, domain.ErrNotFound)
	}
	clone := *cp
	return &clone, nil
}

func (m *mockStore) CreateCheckpoint(_ context.Context, cp *checkpoint.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *cp
	m.checkpoints[cpKey(cp.StoryID, cp.PhaseKey)] = &clone
	return nil
}

func (m *mockStore) UpdateCheckpoint(_ context.Context, cp *checkpoint.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateCheckpointErr != nil {
		return m.updateCheckpointErr
	}
	clone := *cp
	clone.Version++
	m.checkpoints[cpKey(cp.StoryID, cp.PhaseKey)] = &clone
	cp.Version++
	return nil
}

// storedCheckpoint reads checkpoint state for assertions.
func (m *mockStore) storedCheckpoint(storyID, phaseKey string) *checkpoint.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[cpKey(storyID, phaseKey)]
	if !ok {
		return nil
	}
	clone := *cp
	return &clone
}

func (m *mockStore) ListBacklog(_ context.Context, storyID string) ([]backlog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []backlog.Item
	for _, item := range m.items {
		if item.StoryID == storyID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *mockStore) GetBacklogItem(_ context.Context, storyID, itemID string) (*backlog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.StoryID == storyID && item.ID == itemID {
			clone := *item
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("backlog %s: %w", itemID, domain.ErrNotFound)
}

func (m *mockStore) CreateBacklogItem(_ context.Context, item *backlog.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *item
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	m.items = append(m.items, &clone)
	return nil
}

func (m *mockStore) UpdateBacklogItem(_ context.Context, item *backlog.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.items {
		if existing.ID == item.ID {
			clone := *item
			m.items[i] = &clone
			return nil
		}
	}
	return fmt.Errorf("backlog %s: %w", item.ID, domain.ErrNotFound)
}

func (m *mockStore) storedItem(itemID string) *backlog.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ID == itemID {
			clone := *item
			return &clone
		}
	}
	return nil
}

func (m *mockStore) GetBlueprint(_ context.Context, id string) (*entity.ChapterBlueprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bp, ok := m.blueprints[id]
	if !ok {
		return nil, fmt.Errorf("blueprint %s: %w", id, domain.ErrNotFound)
	}
	clone := *bp
	return &clone, nil
}

func (m *mockStore) CreateBlueprint(_ context.Context, bp *entity.ChapterBlueprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *bp
	m.blueprints[bp.ID] = &clone
	return nil
}

func (m *mockStore) NextChapterIndex(_ context.Context, storyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, bp := range m.blueprints {
		if bp.StoryID == storyID && bp.ChapterIndex > max {
			max = bp.ChapterIndex
		}
	}
	return max + 1, nil
}

func (m *mockStore) CreateScroll(_ context.Context, sc *entity.Scroll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *sc
	m.scrolls[sc.ID] = &clone
	return nil
}

func (m *mockStore) GetScroll(_ context.Context, id string) (*entity.Scroll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scrolls[id]
	if !ok {
		return nil, fmt.Errorf("scroll %s: %w", id, domain.ErrNotFound)
	}
	clone := *sc
	return &clone, nil
}

func (m *mockStore) CreateSection(_ context.Context, sec *entity.Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *sec
	m.sections = append(m.sections, &clone)
	return nil
}

func (m *mockStore) FirstSection(_ context.Context, scrollID string) (*entity.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first *entity.Section
	for _, sec := range m.sections {
		if sec.ScrollID != scrollID {
			continue
		}
		if first == nil || sec.Index < first.Index {
			first = sec
		}
	}
	if first == nil {
		return nil, fmt.Errorf("sections of %s: %w", scrollID, domain.ErrNotFound)
	}
	clone := *first
	return &clone, nil
}

func (m *mockStore) CreateScene(_ context.Context, sn *entity.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *sn
	m.scenes = append(m.scenes, &clone)
	return nil
}

func (m *mockStore) NextSceneIndex(_ context.Context, sectionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, sn := range m.scenes {
		if sn.SectionID == sectionID && sn.Index > max {
			max = sn.Index
		}
	}
	return max + 1, nil
}

func (m *mockStore) FindWorldBible(_ context.Context, storyID, bibleDomain, branch string) (*entity.WorldBible, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wb := range m.worldBibles {
		if wb.StoryID == storyID && wb.Domain == bibleDomain && wb.Branch == branch {
			clone := *wb
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("world bible %s/%s: %w", bibleDomain, branch, domain.ErrNotFound)
}

func (m *mockStore) CreateWorldBible(_ context.Context, wb *entity.WorldBible) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *wb
	m.worldBibles = append(m.worldBibles, &clone)
	return nil
}

func (m *mockStore) MaxIterationIndex(_ context.Context, storyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, ip := range m.iterPasses {
		if ip.StoryID == storyID && ip.Index > max {
			max = ip.Index
		}
	}
	return max, nil
}

func (m *mockStore) CreateIterationPass(_ context.Context, ip *entity.IterationPass) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *ip
	m.iterPasses = append(m.iterPasses, &clone)
	return nil
}

func (m *mockStore) ListUnfulfilledLore(_ context.Context, olderThan time.Time) ([]entity.LoreRequirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.LoreRequirement
	for _, req := range m.lore {
		if !req.Fulfilled && req.CreatedAt.Before(olderThan) {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateLoreMetadata(_ context.Context, id string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.lore {
		if req.ID == id {
			req.Metadata = metadata
			return nil
		}
	}
	return fmt.Errorf("lore %s: %w", id, domain.ErrNotFound)
}

func (m *mockStore) FindConversationTask(_ context.Context, planID, itemID string) (*entity.ConversationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ct := range m.convTasks {
		if ct.ConversationPlanID == planID && ct.BacklogItemID == itemID {
			clone := *ct
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("conversation task: %w", domain.ErrNotFound)
}

func (m *mockStore) AppendTranscript(_ context.Context, rec *entity.TranscriptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts = append(m.transcripts, *rec)
	return nil
}

func (m *mockStore) ListTranscripts(_ context.Context, checkpointID string) ([]entity.TranscriptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.TranscriptRecord
	for _, rec := range m.transcripts {
		if rec.CheckpointID == checkpointID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// mockQueue records published messages and satisfies jobqueue.Queue.
type mockQueue struct {
	mu        sync.Mutex
	published []capturedPublish
}

type capturedPublish struct {
	subject string
	data    []byte
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, capturedPublish{subject: subject, data: data})
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, jobqueue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.published))
	for i, p := range q.published {
		out[i] = p.subject
	}
	return out
}

// mockHub records broadcast events and satisfies broadcast.Broadcaster.
type mockHub struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	conversationID string
	eventType      string
	payload        any
}

func (h *mockHub) BroadcastEvent(_ context.Context, conversationID, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, capturedEvent{conversationID, eventType, payload})
}

// mockAudit records worklog entries and satisfies worklog.Log.
type mockAudit struct {
	mu      sync.Mutex
	entries []capturedAudit
}

type capturedAudit struct {
	conversationID string
	kind           string
}

func (a *mockAudit) Append(_ context.Context, conversationID, kind string, _ any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, capturedAudit{conversationID, kind})
}

func (a *mockAudit) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.kind
	}
	return out
}

// mockEnqueuer records enqueued jobs per phase and satisfies jobqueue.Enqueuer.
type mockEnqueuer struct {
	mu   sync.Mutex
	jobs []capturedJob
	err  error
}

type capturedJob struct {
	kind phase.Kind
	job  jobqueue.Job
}

func (e *mockEnqueuer) record(kind phase.Kind, job jobqueue.Job) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.jobs = append(e.jobs, capturedJob{kind: kind, job: job})
	return fmt.Sprintf("job-%d", len(e.jobs)), nil
}

func (e *mockEnqueuer) EnqueueVisionPlanning(_ context.Context, j jobqueue.Job) (string, error) {
	return e.record(phase.KindVisionPlanner, j)
}

func (e *mockEnqueuer) EnqueueWorldBible(_ context.Context, j jobqueue.Job) (string, error) {
	return e.record(phase.KindWorldBible, j)
}

func (e *mockEnqueuer) EnqueueIterativePlanning(_ context.Context, j jobqueue.Job) (string, error) {
	return e.record(phase.KindIterativePlanner, j)
}

func (e *mockEnqueuer) EnqueueChapterArchitect(_ context.Context, j jobqueue.Job) (string, error) {
	return e.record(phase.KindChapterArchitect, j)
}

func (e *mockEnqueuer) EnqueueScrollRefiner(_ context.Context, j jobqueue.Job) (string, error) {
	return e.record(phase.KindScrollRefiner, j)
}

func (e *mockEnqueuer) EnqueueSceneWeaver(_ context.Context, j jobqueue.Job) (string, error) {
	return e.record(phase.KindSceneWeaver, j)
}

func (e *mockEnqueuer) EnqueueLoreFulfillment(_ context.Context, j jobqueue.Job) (string, error) {
	return e.record(phase.KindLoreFulfillment, j)
}

func (e *mockEnqueuer) captured() []capturedJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]capturedJob, len(e.jobs))
	copy(out, e.jobs)
	return out
}

// stubRunner executes one phase kind with a fixed result or error.
type stubRunner struct {
	kind   phase.Kind
	result *phase.Result
	err    error
	run    func(ctx context.Context, ec phase.ExecutionContext) (*phase.Result, error)
	calls  int
}

func (r *stubRunner) Kind() phase.Kind { return r.kind }

func (r *stubRunner) Run(ctx context.Context, ec phase.ExecutionContext) (*phase.Result, error) {
	r.calls++
	if r.run != nil {
		return r.run(ctx, ec)
	}
	return r.result, r.err
}

// stubBackend satisfies generation.Backend with a fixed planner result.
type stubBackend struct {
	result   *planner.Result
	err      error
	requests []generation.Request
}

func (b *stubBackend) Generate(_ context.Context, req generation.Request) (*planner.Result, error) {
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	return b.result, nil
}
