// Package control implements the control surface (spec.md §4.4): three
// idempotent operations the executor observes cooperatively at the next
// inter-step check_control_flags call. No HTTP is implemented here
// (explicitly out of scope); this is the library surface an admin layer
// would call.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/repos"
)

type Surface struct {
	Tasks repos.PublishTaskRepo
}

// RequestPause sets pause_requested_at/pause_reason. Idempotent: calling it
// again before the next checkpoint simply overwrites the reason.
func (s *Surface) RequestPause(ctx context.Context, taskID, reason string) error {
	now := time.Now()
	return s.Tasks.UpdateFields(dbctx.Context{Ctx: ctx}, taskID, map[string]interface{}{
		"pause_requested_at": now,
		"pause_reason":       reason,
	})
}

// RequestCancel sets cancel_requested_at/cancel_reason. Cancel wins over
// pause if both are set (spec.md §4.4) — enforced by the executor's
// checkControlFlags ordering, not here.
func (s *Surface) RequestCancel(ctx context.Context, taskID, reason string) error {
	now := time.Now()
	return s.Tasks.UpdateFields(dbctx.Context{Ctx: ctx}, taskID, map[string]interface{}{
		"cancel_requested_at": now,
		"cancel_reason":       reason,
	})
}

// Resume clears pause_requested_at/paused_at, sets status -> queued, and
// re-enqueues with the task's original priority. A bare Resume must never
// clear awaiting_moderation (SPEC_FULL.md §3, Open Question (a)) — that
// requires a separate moderation-approval action, so Resume refuses to act
// on a task in that status.
func (s *Surface) Resume(ctx context.Context, taskID string) error {
	dbc := dbctx.Context{Ctx: ctx}
	task, err := s.Tasks.GetByID(dbc, taskID)
	if err != nil {
		return fmt.Errorf("control: load task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("control: task %s not found", taskID)
	}
	if task.Status == domain.TaskAwaitingModeration {
		return fmt.Errorf("control: task %s is awaiting moderation, resume() does not apply", taskID)
	}
	if !task.Status.Resumable() {
		return fmt.Errorf("control: task %s in status %s is not resumable", taskID, task.Status)
	}
	ok, err := s.Tasks.UpdateFieldsUnlessStatus(dbc, taskID, []domain.TaskStatus{domain.TaskCanceled}, map[string]interface{}{
		"status":              domain.TaskQueued,
		"pause_requested_at":  nil,
		"paused_at":           nil,
	})
	if err != nil {
		return fmt.Errorf("control: resume: %w", err)
	}
	if !ok {
		return fmt.Errorf("control: task %s was canceled concurrently, resume rejected", taskID)
	}
	return nil
}
