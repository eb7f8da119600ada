package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/internal/config"
	"github.com/gerrot/api/internal/model"
)

var testRequest = model.RenderRequest{ProjectID: "p1", VersionID: "v1", RequestingUserID: "u1"}

func deadClient() *Client {
	return NewClient(config.RedisConfig{Addr: "127.0.0.1:1"}, Options{}, zerolog.Nop())
}

// liveClient connects to REDIS_ADDR (default localhost:6379) and skips the
// test when nothing answers.
func liveClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c := NewClient(config.RedisConfig{Addr: addr, DB: 15}, Options{Queue: "pdf-generation-test", MaxAttempts: 2}, zerolog.Nop())
	if !c.Probe(context.Background()) {
		c.Close()
		t.Skipf("redis not available at %s", addr)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRenderTaskRoundTrip(t *testing.T) {
	task, err := NewRenderTask("job-1", testRequest)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskTypeRender {
		t.Errorf("unexpected type %q", task.Type())
	}
	p, err := ParseRenderTask(task)
	if err != nil {
		t.Fatal(err)
	}
	if p.JobID != "job-1" || p.Request != testRequest {
		t.Errorf("unexpected payload %+v", p)
	}

	if _, err := ParseRenderTask(asynq.NewTask(TaskTypeRender, []byte(`{"payload":{}}`))); err == nil {
		t.Error("expected error for missing job id")
	}
	if _, err := ParseRenderTask(asynq.NewTask(TaskTypeRender, []byte(`not json`))); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestProbeDeadBroker(t *testing.T) {
	c := deadClient()
	defer c.Close()

	start := time.Now()
	if c.Probe(context.Background()) {
		t.Fatal("probe must fail against a closed port")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("probe took %s", elapsed)
	}
}

func TestEnqueueDeadBroker(t *testing.T) {
	c := deadClient()
	defer c.Close()

	start := time.Now()
	_, err := c.Enqueue(context.Background(), testRequest)
	if !apperr.IsQueueUnavailable(err) {
		t.Fatalf("expected queue unavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("enqueue took %s", elapsed)
	}
}

func TestEnqueueRejectsIncompleteRequest(t *testing.T) {
	c := deadClient()
	defer c.Close()

	_, err := c.Enqueue(context.Background(), model.RenderRequest{ProjectID: "p1"})
	if !apperr.IsInvalidInput(err) {
		t.Fatalf("expected invalid input before any broker call, got %v", err)
	}
}

func TestGetStatusDeadBroker(t *testing.T) {
	c := deadClient()
	defer c.Close()

	if _, err := c.GetStatus(context.Background(), "anything"); !apperr.IsJobNotFound(err) {
		t.Fatalf("expected job not found, got %v", err)
	}
	if _, err := c.GetStatus(context.Background(), ""); !apperr.IsJobNotFound(err) {
		t.Fatalf("expected job not found for empty id, got %v", err)
	}
}

func TestEnqueueAndStatus(t *testing.T) {
	c := liveClient(t)
	ctx := context.Background()

	jobID, err := c.Enqueue(ctx, testRequest)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	t.Cleanup(func() {
		c.Jobs().Delete(context.Background(), jobID)
		c.inspector.DeleteTask(c.opts.Queue, jobID)
	})

	job, err := c.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if job.State != model.JobStatePending || job.Payload != testRequest || job.MaxAttempts != 2 {
		t.Errorf("unexpected job %+v", job)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending < 1 {
		t.Errorf("expected a pending task, got %+v", stats)
	}

	if _, err := c.GetStatus(ctx, "does-not-exist"); !apperr.IsJobNotFound(err) {
		t.Errorf("expected job not found, got %v", err)
	}
}

func TestJobStoreUpdate(t *testing.T) {
	c := liveClient(t)
	ctx := context.Background()
	store := c.Jobs()

	job := model.NewJob("store-test-job", testRequest, 3, time.Now().UTC())
	if err := store.Save(ctx, job); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Delete(context.Background(), job.ID) })

	updated, err := store.Update(ctx, job.ID, func(j *model.Job) error {
		j.Start(time.Now().UTC())
		j.Advance(model.ProgressLayout)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.State != model.JobStateRunning || updated.Progress != model.ProgressLayout {
		t.Errorf("unexpected job %+v", updated)
	}

	sentinel := errors.New("stop")
	if _, err := store.Update(ctx, job.ID, func(*model.Job) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected callback error, got %v", err)
	}
	if _, err := store.Update(ctx, "missing-job", func(*model.Job) error { return nil }); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
