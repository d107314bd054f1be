// Package watchdog implements the periodic stuck-state scanner
// (spec.md §4.6), using the same time.NewTicker idiom as the dispatcher
// (internal/jobs/worker/worker.go's runLoop).
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/notifier"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
	"github.com/clipforge/pipeline/internal/repos"
)

type Watchdog struct {
	Tasks  repos.PublishTaskRepo
	Steps  repos.StepResultRepo
	Notify *notifier.Notifier
	Log    *logger.Logger

	Interval       time.Duration
	MaxStepWallClock time.Duration
	Grace          time.Duration
	QueueSLA       time.Duration
}

// Start runs the scan on Interval until ctx is canceled.
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Scan(ctx, false); err != nil {
				w.Log.Warn("watchdog scan failed", "error", err)
			}
		}
	}
}

// Diff describes what a scan found or changed.
type Diff struct {
	StuckProcessing []string
	StuckQueued     []string
}

// Scan implements spec.md §4.6's two stuck-state classes. In dry_run mode it
// returns the diff without mutating (idempotent either way: re-running a
// real scan after a prior one simply finds nothing new). A processing task
// is selected by its processing_started_at alone; StepResult recency and
// heartbeats are not consulted.
func (w *Watchdog) Scan(ctx context.Context, dryRun bool) (Diff, error) {
	dbc := dbctx.Context{Ctx: ctx}
	var diff Diff

	processingCutoff := time.Now().Add(-(w.MaxStepWallClock + w.Grace))
	stuckProcessing, err := w.Tasks.StaleProcessing(dbc, processingCutoff)
	if err != nil {
		return diff, fmt.Errorf("watchdog: scan stale processing: %w", err)
	}
	for _, task := range stuckProcessing {
		diff.StuckProcessing = append(diff.StuckProcessing, task.ID)
		if dryRun {
			continue
		}
		if err := w.reconcileStuckProcessing(dbc, task); err != nil {
			w.Log.Warn("watchdog: reconcile stuck processing failed", "task_id", task.ID, "error", err)
		}
	}

	queuedCutoff := time.Now().Add(-w.QueueSLA)
	stuckQueued, err := w.Tasks.StaleQueued(dbc, queuedCutoff)
	if err != nil {
		return diff, fmt.Errorf("watchdog: scan stale queued: %w", err)
	}
	for _, task := range stuckQueued {
		diff.StuckQueued = append(diff.StuckQueued, task.ID)
		if dryRun {
			continue
		}
		if w.Notify != nil {
			w.Notify.Notify("task stuck in queue", fmt.Sprintf("task %s has waited past queue SLA", task.ID), notifier.SeverityWarning)
		}
	}

	return diff, nil
}

// reconcileStuckProcessing marks a wedged task as error and writes a
// sentinel StepResult, then notifies (spec.md §4.6).
func (w *Watchdog) reconcileStuckProcessing(dbc dbctx.Context, task *domain.PublishTask) error {
	now := time.Now()
	msg := "watchdog: processing exceeded max_step_wall_clock+grace"
	if err := w.Steps.Append(dbc, &domain.StepResult{
		TaskID:       task.ID,
		StepIndex:    domain.StepIndexWorkerFailure,
		ToolID:       "WATCHDOG",
		Status:       domain.StepError,
		StartedAt:    now,
		CompletedAt:  &now,
		ErrorMessage: msg,
	}); err != nil {
		return err
	}
	if err := w.Tasks.UpdateFields(dbc, task.ID, map[string]interface{}{
		"status":          domain.TaskError,
		"error_message":   msg,
		"worker_lease_id": "",
	}); err != nil {
		return err
	}
	if w.Notify != nil {
		w.Notify.Notify("task stuck in processing", fmt.Sprintf("task %s reclaimed by watchdog", task.ID), notifier.SeverityWarning)
	}
	return nil
}
