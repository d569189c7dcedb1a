package nats_test

import (
	"context"
	"encoding/json"
	"testing"

	natsadapter "github.com/inkforge/weaver/internal/adapter/nats"
	"github.com/inkforge/weaver/internal/port/jobqueue"
)

type capturedMessage struct {
	subject string
	data    []byte
}

type fakeQueue struct {
	published []capturedMessage
	failNext  bool
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.failNext {
		q.failNext = false
		return context.DeadlineExceeded
	}
	q.published = append(q.published, capturedMessage{subject: subject, data: data})
	return nil
}

func (q *fakeQueue) Subscribe(context.Context, string, jobqueue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func TestEnqueuerPublishesPhaseJob(t *testing.T) {
	queue := &fakeQueue{}
	enq := natsadapter.NewEnqueuer(queue)

	jobID, err := enq.EnqueueSceneWeaver(context.Background(), jobqueue.Job{
		StoryID:        "story-1",
		AgentID:        "agent-1",
		ConversationID: "conv-1",
		TargetID:       "scene-1",
		ProviderID:     "openai",
		ModelID:        "gpt-4.1",
		Branch:         "main",
		Metadata:       map[string]string{"backlogItemId": "item-1"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected non-empty job id")
	}

	if len(queue.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(queue.published))
	}
	msg := queue.published[0]
	if want := "weaver.jobs.scene_weaver"; msg.subject != want {
		t.Errorf("subject = %q, want %q", msg.subject, want)
	}

	var payload jobqueue.PhaseJobPayload
	if err := json.Unmarshal(msg.data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.JobID != jobID {
		t.Errorf("payload job id = %q, want %q", payload.JobID, jobID)
	}
	if payload.Phase != "scene_weaver" {
		t.Errorf("payload phase = %q", payload.Phase)
	}
	if payload.StoryID != "story-1" || payload.TargetID != "scene-1" {
		t.Errorf("payload identity fields wrong: %+v", payload)
	}
	if payload.Metadata["backlogItemId"] != "item-1" {
		t.Errorf("metadata not carried: %+v", payload.Metadata)
	}
	if payload.EnqueuedAt.IsZero() {
		t.Error("enqueued_at not stamped")
	}
}

func TestEnqueuerSubjectPerPhase(t *testing.T) {
	queue := &fakeQueue{}
	enq := natsadapter.NewEnqueuer(queue)
	ctx := context.Background()
	job := jobqueue.Job{StoryID: "s", ProviderID: "p", Branch: "main"}

	calls := []struct {
		name    string
		call    func() (string, error)
		subject string
	}{
		{"vision", func() (string, error) { return enq.EnqueueVisionPlanning(ctx, job) }, "weaver.jobs.vision_planner"},
		{"world bible", func() (string, error) { return enq.EnqueueWorldBible(ctx, job) }, "weaver.jobs.world_bible_manager"},
		{"iterative", func() (string, error) { return enq.EnqueueIterativePlanning(ctx, job) }, "weaver.jobs.iterative_planner"},
		{"architect", func() (string, error) { return enq.EnqueueChapterArchitect(ctx, job) }, "weaver.jobs.chapter_architect"},
		{"refiner", func() (string, error) { return enq.EnqueueScrollRefiner(ctx, job) }, "weaver.jobs.scroll_refiner"},
		{"weaver", func() (string, error) { return enq.EnqueueSceneWeaver(ctx, job) }, "weaver.jobs.scene_weaver"},
		{"lore", func() (string, error) { return enq.EnqueueLoreFulfillment(ctx, job) }, "weaver.jobs.lore_fulfillment"},
	}

	for i, c := range calls {
		if _, err := c.call(); err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got := queue.published[i].subject; got != c.subject {
			t.Errorf("%s: subject = %q, want %q", c.name, got, c.subject)
		}
	}
}

func TestEnqueuerPublishError(t *testing.T) {
	queue := &fakeQueue{failNext: true}
	enq := natsadapter.NewEnqueuer(queue)

	if _, err := enq.EnqueueVisionPlanning(context.Background(), jobqueue.Job{StoryID: "s"}); err == nil {
		t.Fatal("expected error when publish fails")
	}
	if len(queue.published) != 0 {
		t.Errorf("expected no published messages, got %d", len(queue.published))
	}
}
