// Package dispatcher implements the task dispatcher (spec.md §4.3),
// grounded on internal/jobs/worker/worker.go: a fixed-size goroutine pool
// ticks, claims the highest-priority runnable task via
// SELECT ... FOR UPDATE SKIP LOCKED, and hands it to the executor.
// Heartbeats, panic recovery, and the "no handler" fatal path carry over the
// teacher's structure; the retry policy and wall-clock limits are
// spec.md's, not the teacher's.
package dispatcher

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/executor"
	"github.com/clipforge/pipeline/internal/notifier"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
	"github.com/clipforge/pipeline/internal/repos"
)

var tracer = otel.Tracer("github.com/clipforge/pipeline/internal/dispatcher")

const maxRetries = 3

type Dispatcher struct {
	Tasks    repos.PublishTaskRepo
	Steps    repos.StepResultRepo
	Executor *executor.Executor
	Notify   *notifier.Notifier
	Log      *logger.Logger

	Concurrency   int
	PollInterval  time.Duration
	HardWallClock time.Duration // spec.md §4.3: 6h
	SoftWallClock time.Duration // spec.md §4.3: 5h
}

// Start launches the worker pool (teacher's Worker.Start idiom: spawn N
// runLoop goroutines, each independently claiming and executing tasks).
func (d *Dispatcher) Start(ctx context.Context) {
	concurrency := d.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	pollInterval := d.PollInterval
	if pollInterval <= 0 {
		pollInterval = 1 * time.Second
	}
	d.Log.Info("starting task dispatcher pool", "concurrency", concurrency)
	for i := 0; i < concurrency; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i+1, uuid.NewString()[:8])
		go d.runLoop(ctx, workerID, pollInterval)
	}
}

func (d *Dispatcher) runLoop(ctx context.Context, workerID string, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Log.Info("dispatcher worker stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			d.tick(ctx, workerID)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context, workerID string) {
	dbc := dbctx.Context{Ctx: ctx}
	task, err := d.Tasks.ClaimNextRunnable(dbc, workerID)
	if err != nil {
		d.Log.Warn("claim next runnable failed", "worker_id", workerID, "error", err)
		return
	}
	if task == nil {
		return
	}

	stepCtx, span := tracer.Start(ctx, "dispatcher.run_task",
		attribute.String("task_id", task.ID),
		attribute.String("worker_id", workerID),
	)
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(stepCtx, d.HardWallClock)
	defer cancel()

	stopHB := d.startHeartbeat(attemptCtx, task.ID, workerID)
	defer stopHB()

	d.runAttempt(attemptCtx, task, workerID)
}

// runAttempt invokes the executor and catches the four sentinel error
// classes (spec.md §4.3 step 2), applying the retry policy on any
// transient/unknown failure.
func (d *Dispatcher) runAttempt(ctx context.Context, task *domain.PublishTask, workerID string) {
	defer func() {
		if r := recover(); r != nil {
			d.Log.Error("task executor panic", "task_id", task.ID, "worker_id", workerID, "panic", r)
			d.failTerminal(ctx, task, fmt.Errorf("panic: %v", r))
		}
	}()

	_, err := d.Executor.Run(ctx, task.ID)
	if err == nil {
		return
	}

	switch executor.Classify(err) {
	case executor.ClassCanceled, executor.ClassPaused:
		// Already persisted terminal/suspended status by the executor;
		// nothing further to do.
		return
	case executor.ClassPermanent:
		d.failTerminal(ctx, task, err)
	default: // Transient or degraded-Unknown
		d.retryOrFail(ctx, task, err)
	}
}

func (d *Dispatcher) retryOrFail(ctx context.Context, task *domain.PublishTask, cause error) {
	dbc := dbctx.Context{Ctx: ctx}
	fresh, err := d.Tasks.GetByID(dbc, task.ID)
	if err != nil || fresh == nil {
		d.Log.Warn("retry policy: could not reload task", "task_id", task.ID, "error", err)
		return
	}
	if fresh.Attempts >= maxRetries {
		d.failTerminal(ctx, fresh, cause)
		return
	}
	attempts := fresh.Attempts + 1
	backoff := computeBackoff(attempts)
	d.Log.Warn("transient failure, re-enqueuing", "task_id", task.ID, "attempt", attempts, "backoff", backoff, "error", cause)
	_ = d.Tasks.UpdateFields(dbc, task.ID, map[string]interface{}{
		"status":          domain.TaskQueued,
		"attempts":        attempts,
		"worker_lease_id": "",
	})
}

// failTerminal emits the terminal WORKER-level StepResult at sentinel index
// 9997 and notifies (spec.md §4.3).
func (d *Dispatcher) failTerminal(ctx context.Context, task *domain.PublishTask, cause error) {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now()
	msg := domain.TruncateError(cause.Error())
	_ = d.Steps.Append(dbc, &domain.StepResult{
		TaskID:       task.ID,
		StepIndex:    domain.StepIndexWorkerFailure,
		ToolID:       "WORKER",
		Status:       domain.StepError,
		StartedAt:    now,
		CompletedAt:  &now,
		ErrorMessage: msg,
	})
	_ = d.Tasks.UpdateFields(dbc, task.ID, map[string]interface{}{
		"status":          domain.TaskError,
		"error_message":   msg,
		"worker_lease_id": "",
	})
	if d.Notify != nil {
		d.Notify.Notify("task failed", fmt.Sprintf("task %s: %s", task.ID, msg), notifier.SeverityCritical)
	}
}

func (d *Dispatcher) startHeartbeat(ctx context.Context, taskID, workerID string) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = d.Tasks.Heartbeat(dbctx.Context{Ctx: ctx}, taskID, workerID)
			}
		}
	}()
	return func() { close(done) }
}

// computeBackoff mirrors the exponential-with-jitter idiom used by
// internal/semaphore (itself grounded on the teacher's computeBackoff), with
// a 30s cap instead of the semaphore's 5s. retryOrFail only logs the value:
// the task is set back to queued at once, and the claim query does not wait
// for the backoff to pass.
func computeBackoff(attempt int) time.Duration {
	const (
		minBackoff = 1 * time.Second
		maxBackoff = 30 * time.Second
		jitterFrac = 0.20
	)
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(minBackoff) * math.Pow(2, float64(attempt-1)))
	if d > maxBackoff {
		d = maxBackoff
	}
	delta := float64(d) * jitterFrac
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}
