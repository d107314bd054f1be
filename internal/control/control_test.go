package control_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/pipeline/internal/control"
	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/repos"
)

type fakeTasks struct {
	mu   sync.Mutex
	byID map[string]*domain.PublishTask
}

func newFakeTasks(tasks ...*domain.PublishTask) *fakeTasks {
	m := map[string]*domain.PublishTask{}
	for _, t := range tasks {
		m[t.ID] = t
	}
	return &fakeTasks{byID: m}
}

func (f *fakeTasks) Create(dbc dbctx.Context, t *domain.PublishTask) error { return nil }

func (f *fakeTasks) GetByID(dbc dbctx.Context, id string) (*domain.PublishTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) List(dbc dbctx.Context, filter repos.TaskFilter) ([]*domain.PublishTask, error) {
	return nil, nil
}

func (f *fakeTasks) ClaimNextRunnable(dbc dbctx.Context, workerID string) (*domain.PublishTask, error) {
	return nil, nil
}

func (f *fakeTasks) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil
	}
	apply(t, updates)
	return nil
}

func (f *fakeTasks) UpdateFieldsUnlessStatus(dbc dbctx.Context, id string, disallowed []domain.TaskStatus, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	for _, s := range disallowed {
		if t.Status == s {
			return false, nil
		}
	}
	apply(t, updates)
	return true, nil
}

func (f *fakeTasks) Heartbeat(dbc dbctx.Context, id, workerID string) error { return nil }

func (f *fakeTasks) StaleProcessing(dbc dbctx.Context, cutoff time.Time) ([]*domain.PublishTask, error) {
	return nil, nil
}

func (f *fakeTasks) StaleQueued(dbc dbctx.Context, cutoff time.Time) ([]*domain.PublishTask, error) {
	return nil, nil
}

func (f *fakeTasks) RecentPublishedTopicSignatures(dbc dbctx.Context, projectID, destination string, n int) ([]string, error) {
	return nil, nil
}

func apply(t *domain.PublishTask, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			t.Status = v.(domain.TaskStatus)
		case "pause_requested_at":
			if v == nil {
				t.PauseRequestedAt = nil
			} else {
				tm := v.(time.Time)
				t.PauseRequestedAt = &tm
			}
		case "paused_at":
			if v == nil {
				t.PausedAt = nil
			} else {
				tm := v.(time.Time)
				t.PausedAt = &tm
			}
		case "pause_reason":
			t.PauseReason, _ = v.(string)
		case "cancel_requested_at":
			if v == nil {
				t.CancelRequestedAt = nil
			} else {
				tm := v.(time.Time)
				t.CancelRequestedAt = &tm
			}
		case "cancel_reason":
			t.CancelReason, _ = v.(string)
		}
	}
}

func TestResumeRefusesAwaitingModeration(t *testing.T) {
	tasks := newFakeTasks(&domain.PublishTask{ID: "t1", Status: domain.TaskAwaitingModeration})
	s := &control.Surface{Tasks: tasks}
	if err := s.Resume(context.Background(), "t1"); err == nil {
		t.Fatal("expected resume to refuse a task awaiting moderation")
	}
}

func TestResumeRefusesNonResumableStatus(t *testing.T) {
	tasks := newFakeTasks(&domain.PublishTask{ID: "t1", Status: domain.TaskProcessing})
	s := &control.Surface{Tasks: tasks}
	if err := s.Resume(context.Background(), "t1"); err == nil {
		t.Fatal("expected resume to refuse a processing task")
	}
}

func TestResumeRequeuesPausedTask(t *testing.T) {
	now := time.Now()
	tasks := newFakeTasks(&domain.PublishTask{
		ID: "t1", Status: domain.TaskPaused, PausedAt: &now, Priority: 7,
	})
	s := &control.Surface{Tasks: tasks}
	if err := s.Resume(context.Background(), "t1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	fresh, _ := tasks.GetByID(dbctx.Context{}, "t1")
	if fresh.Status != domain.TaskQueued {
		t.Fatalf("expected status queued, got %s", fresh.Status)
	}
	if fresh.PausedAt != nil || fresh.PauseRequestedAt != nil {
		t.Fatal("expected pause fields cleared")
	}
	if fresh.Priority != 7 {
		t.Fatalf("resume must not mutate priority, got %d", fresh.Priority)
	}
}

func TestResumeRefusesCanceledTask(t *testing.T) {
	tasks := newFakeTasks(&domain.PublishTask{ID: "t1", Status: domain.TaskCanceled})
	s := &control.Surface{Tasks: tasks}
	// TaskCanceled is not Resumable(), so Resume should refuse before even
	// reaching the optimistic guard.
	if err := s.Resume(context.Background(), "t1"); err == nil {
		t.Fatal("expected resume to refuse a canceled task")
	}
}

func TestRequestPauseAndCancelSetFields(t *testing.T) {
	tasks := newFakeTasks(&domain.PublishTask{ID: "t1", Status: domain.TaskProcessing})
	s := &control.Surface{Tasks: tasks}
	if err := s.RequestPause(context.Background(), "t1", "operator break"); err != nil {
		t.Fatalf("request pause: %v", err)
	}
	fresh, _ := tasks.GetByID(dbctx.Context{}, "t1")
	if fresh.PauseRequestedAt == nil || fresh.PauseReason != "operator break" {
		t.Fatal("expected pause_requested_at/pause_reason to be set")
	}

	if err := s.RequestCancel(context.Background(), "t1", "duplicate upload"); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	fresh, _ = tasks.GetByID(dbctx.Context{}, "t1")
	if fresh.CancelRequestedAt == nil || fresh.CancelReason != "duplicate upload" {
		t.Fatal("expected cancel_requested_at/cancel_reason to be set")
	}
}
