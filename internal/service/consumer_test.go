package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	wotel "github.com/inkforge/weaver/internal/adapter/otel"
	"github.com/inkforge/weaver/internal/domain/backlog"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/port/jobqueue"
	"github.com/inkforge/weaver/internal/service"
)

func newConsumerFixture(t *testing.T) (*engineFixture, *mockEnqueuer, *service.JobConsumer) {
	t.Helper()
	f := newEngineFixture(t)

	metrics, err := wotel.NewMetrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	enqueuer := &mockEnqueuer{}
	scheduler := service.NewSchedulerService(f.store, enqueuer, metrics)
	consumer := service.NewJobConsumer(f.engine, scheduler, f.queue)
	return f, enqueuer, consumer
}

func marshalJob(t *testing.T, payload jobqueue.PhaseJobPayload) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// Handling a job runs the phase and then schedules the next ready item.
func TestHandleExecutesAndChains(t *testing.T) {
	f, enqueuer, consumer := newConsumerFixture(t)
	st := f.seedStory(t)
	ctx := context.Background()

	if err := f.store.CreateBacklogItem(ctx, &backlog.Item{
		ID:      "v1",
		StoryID: st.ID,
		Status:  backlog.StatusInProgress,
		Outputs: []string{"vision-plan"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.CreateBacklogItem(ctx, &backlog.Item{
		ID:      "b1",
		StoryID: st.ID,
		Status:  backlog.StatusPending,
		Inputs:  []string{"vision-plan"},
		Outputs: []string{"chapter-blueprint"},
	}); err != nil {
		t.Fatal(err)
	}

	data := marshalJob(t, jobqueue.PhaseJobPayload{
		JobID:      "job-1",
		Phase:      "vision_planner",
		StoryID:    st.ID,
		AgentID:    "agent-1",
		ProviderID: "openai",
		Branch:     "main",
		Metadata: map[string]string{
			phase.MetaProviderID:    "openai",
			phase.MetaBacklogItemID: "v1",
		},
	})

	if err := consumer.Handle(ctx, "weaver.jobs.vision_planner", data); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := f.store.storedItem("v1").Status; got != backlog.StatusComplete {
		t.Errorf("v1 status = %s, want complete", got)
	}

	jobs := enqueuer.captured()
	if len(jobs) != 1 {
		t.Fatalf("chained jobs = %d, want 1", len(jobs))
	}
	if jobs[0].kind != phase.KindChapterArchitect {
		t.Errorf("chained kind = %s, want chapter_architect", jobs[0].kind)
	}
}

// An engine failure propagates so the queue NAKs and redelivers.
func TestHandleReturnsEngineError(t *testing.T) {
	f, _, consumer := newConsumerFixture(t)
	st := f.seedStory(t)

	cause := errors.New("worker unreachable")
	stub := f.runners[phase.KindSceneWeaver]
	stub.result, stub.err = nil, cause

	data := marshalJob(t, jobqueue.PhaseJobPayload{
		JobID:   "job-1",
		Phase:   "scene_weaver",
		StoryID: st.ID,
		Branch:  "main",
	})

	err := consumer.Handle(context.Background(), "weaver.jobs.scene_weaver", data)
	if !errors.Is(err, cause) {
		t.Fatalf("error = %v, want engine cause", err)
	}
}

// Undecodable payloads and unknown phases are dropped, not redelivered
// forever.
func TestHandleDropsPoisonMessages(t *testing.T) {
	_, _, consumer := newConsumerFixture(t)
	ctx := context.Background()

	if err := consumer.Handle(ctx, "weaver.jobs.scene_weaver", []byte("{not json")); err != nil {
		t.Errorf("malformed payload should be dropped, got %v", err)
	}

	data := []byte(`{"job_id":"j","phase":"unknown_phase","story_id":"s"}`)
	if err := consumer.Handle(ctx, "weaver.jobs.unknown_phase", data); err != nil {
		t.Errorf("unknown phase should be dropped, got %v", err)
	}
}

func TestHandleRebuildsExecutionContext(t *testing.T) {
	f, _, consumer := newConsumerFixture(t)
	st := f.seedStory(t)

	var seen phase.ExecutionContext
	stub := f.runners[phase.KindScrollRefiner]
	stub.run = func(_ context.Context, ec phase.ExecutionContext) (*phase.Result, error) {
		seen = ec
		return &phase.Result{Status: phase.OutcomeCompleted}, nil
	}

	data := marshalJob(t, jobqueue.PhaseJobPayload{
		JobID:   "job-7",
		Phase:   "scroll_refiner",
		StoryID: st.ID,
		AgentID: "agent-1",
		Branch:  "alt-ending",
		Metadata: map[string]string{
			phase.MetaScrollID:       "scroll-3",
			phase.MetaBlueprintID:    "bp-1",
			phase.MetaIterationIndex: "2",
		},
	})
	if err := consumer.Handle(context.Background(), "weaver.jobs.scroll_refiner", data); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if seen.Branch != "alt-ending" {
		t.Errorf("branch = %q", seen.Branch)
	}
	if seen.ScrollID != "scroll-3" || seen.BlueprintID != "bp-1" {
		t.Errorf("target ids not rebuilt: %+v", seen)
	}
	if seen.Iteration == nil || *seen.Iteration != 2 {
		t.Errorf("iteration = %v, want 2", seen.Iteration)
	}
	if seen.InvokedByJobID != "job-7" {
		t.Errorf("job id = %q", seen.InvokedByJobID)
	}

	cp := f.store.storedCheckpoint(st.ID, "scroll_refiner:alt-ending:iter2:scroll-3")
	if cp == nil {
		t.Error("checkpoint key should carry branch, iteration and target")
	}
}

// A blocked run leaves its item for a later scheduling pass instead of
// re-enqueueing it immediately.
func TestHandleDoesNotChainAfterBlockedRun(t *testing.T) {
	f, enqueuer, consumer := newConsumerFixture(t)
	st := f.seedStory(t)
	ctx := context.Background()

	if err := f.store.CreateBacklogItem(ctx, &backlog.Item{
		ID:      "v1",
		StoryID: st.ID,
		Status:  backlog.StatusInProgress,
		Outputs: []string{"vision-plan"},
	}); err != nil {
		t.Fatal(err)
	}

	stub := f.runners[phase.KindVisionPlanner]
	stub.result = &phase.Result{Status: phase.OutcomeBlocked, Summary: "iteration quota reached"}

	data := marshalJob(t, jobqueue.PhaseJobPayload{
		JobID:   "job-1",
		Phase:   "vision_planner",
		StoryID: st.ID,
		Branch:  "main",
		Metadata: map[string]string{
			phase.MetaProviderID:    "openai",
			phase.MetaBacklogItemID: "v1",
		},
	})
	if err := consumer.Handle(ctx, "weaver.jobs.vision_planner", data); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if jobs := enqueuer.captured(); len(jobs) != 0 {
		t.Errorf("jobs chained after blocked run: %d, want 0", len(jobs))
	}
	if got := f.store.storedItem("v1").Status; got != backlog.StatusPending {
		t.Errorf("item status = %s, want pending for a later pass", got)
	}
}

// A cancel-flagged job cancels its own phase only; nothing is chained and no
// other item inherits the flag.
func TestHandleDoesNotChainAfterCancelledRun(t *testing.T) {
	f, enqueuer, consumer := newConsumerFixture(t)
	st := f.seedStory(t)
	ctx := context.Background()

	if err := f.store.CreateBacklogItem(ctx, &backlog.Item{
		ID:      "w1",
		StoryID: st.ID,
		Status:  backlog.StatusPending,
		Outputs: []string{"world-bible"},
	}); err != nil {
		t.Fatal(err)
	}

	data := marshalJob(t, jobqueue.PhaseJobPayload{
		JobID:   "job-1",
		Phase:   "vision_planner",
		StoryID: st.ID,
		Branch:  "main",
		Metadata: map[string]string{
			phase.MetaProviderID: "openai",
			phase.MetaCancel:     "true",
		},
	})
	if err := consumer.Handle(ctx, "weaver.jobs.vision_planner", data); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if jobs := enqueuer.captured(); len(jobs) != 0 {
		t.Errorf("jobs chained after cancelled run: %d, want 0", len(jobs))
	}
	if got := f.store.storedItem("w1").Status; got != backlog.StatusPending {
		t.Errorf("unrelated item status = %s, want untouched pending", got)
	}
}
