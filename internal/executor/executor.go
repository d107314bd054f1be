// Package executor implements the step-wise pipeline executor (spec.md
// §4.2), grounded on internal/jobs/orchestrator/engine.go's stage loop and
// internal/jobs/runtime/context.go's capability-scoped execution handle.
// Advances exactly one task from its current step index to a terminal
// status, using one database session per step, never holding a transaction
// across a tool invocation or a semaphore acquire.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/clipforge/pipeline/internal/artifact"
	"github.com/clipforge/pipeline/internal/domain"
	"github.com/clipforge/pipeline/internal/platform/dbctx"
	"github.com/clipforge/pipeline/internal/platform/logger"
	"github.com/clipforge/pipeline/internal/repos"
	"github.com/clipforge/pipeline/internal/semaphore"
	"github.com/clipforge/pipeline/internal/tools"
)

var tracer = otel.Tracer("github.com/clipforge/pipeline/internal/executor")

// ObjectStore is the narrow content-addressed put/get contract consumed
// here for promoting oversize inline text artifacts (spec.md §4.7); the
// concrete implementation lives in internal/platform/object.
type ObjectStore interface {
	Put(ctx context.Context, mime string, data []byte) (artifact.Descriptor, error)
}

// InlineTextSizeCap is the implementation-defined size cap (spec.md §4.7)
// above which a text artifact is promoted to the object store.
const InlineTextSizeCap = 32 * 1024

// Outcome is the terminal (or suspension) result of one Run call.
type Outcome struct {
	Status       domain.TaskStatus
	StepsExecuted int
}

type Executor struct {
	Tasks       repos.PublishTaskRepo
	Steps       repos.StepResultRepo
	Presets     repos.PresetRepo
	Candidates  repos.CandidateRepo
	Registry    *tools.Registry
	Semaphore   *semaphore.Semaphore
	Objects     ObjectStore
	Log         *logger.Logger

	SemaphoreTTL         time.Duration
	SemaphoreWaitTimeout time.Duration
}

// Run implements the step loop of spec.md §4.2 for the given task id.
func (e *Executor) Run(ctx context.Context, taskID string) (Outcome, error) {
	dbc := dbctx.Context{Ctx: ctx}

	task, err := e.Tasks.GetByID(dbc, taskID)
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: load task: %w", err)
	}
	if task == nil {
		return Outcome{}, Permanent(fmt.Errorf("executor: task %s not found", taskID))
	}

	preset, err := e.Presets.GetByID(dbc, task.PresetID)
	if err != nil || preset == nil {
		return Outcome{}, Permanent(fmt.Errorf("executor: load preset %s: %w", task.PresetID, err))
	}
	steps, err := e.Presets.StepsByPresetID(dbc, preset.ID)
	if err != nil {
		return Outcome{}, Permanent(fmt.Errorf("executor: load preset steps: %w", err))
	}

	// Resume point: smallest step index with no committed ok StepResult
	// (spec.md §4.2, "On resume from paused").
	lastOK, err := e.Steps.LastOKStepIndex(dbc, taskID)
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: resolve resume point: %w", err)
	}
	startIdx := lastOK + 1

	executed := 0
	for i := startIdx; i < len(steps); i++ {
		step := steps[i]

		if err := e.checkControlFlags(dbc, task); err != nil {
			return e.outcomeFor(task.Status), err
		}

		descriptor, ok := e.Registry.Get(step.ToolID)
		if !ok {
			return e.finishPermanent(dbc, task, step, fmt.Errorf("executor: no handler registered for tool %q", step.ToolID))
		}

		if step.RequiresModeration && !moderationApproved(task, step) {
			if err := e.transitionAwaitingModeration(dbc, task); err != nil {
				return Outcome{}, err
			}
			return Outcome{Status: domain.TaskAwaitingModeration, StepsExecuted: executed}, ErrModeration
		}

		projected, err := task.Artifacts.Project(descriptor.Inputs)
		if err != nil {
			return e.finishPermanent(dbc, task, step, err)
		}

		var tok semaphore.Token
		haveToken := false
		if descriptor.ResourceClass != tools.ResourceClassNone {
			tok, err = e.Semaphore.Acquire(ctx, string(descriptor.ResourceClass), resourceLimit(descriptor.ResourceClass), e.SemaphoreTTL, e.SemaphoreWaitTimeout)
			if err != nil {
				return e.retryStep(dbc, task, step, i, fmt.Errorf("executor: semaphore acquire: %w", err))
			}
			haveToken = true
		}

		outputs, runErr := e.invokeHandler(ctx, descriptor, projected, step, i)

		if haveToken {
			e.Semaphore.Release(ctx, tok)
		}

		if runErr != nil {
			class := Classify(runErr)
			if class == ClassUnknown {
				// Wrap unknown as transient; later failures follow the
				// dispatcher's retry cap like any transient error.
				runErr = Transient(runErr)
				class = ClassTransient
			}
			switch class {
			case ClassPermanent:
				return e.finishPermanent(dbc, task, step, runErr)
			default:
				return e.retryStep(dbc, task, step, i, runErr)
			}
		}

		if err := e.commitStepSuccess(dbc, task, step, i, projected, outputs); err != nil {
			return Outcome{}, fmt.Errorf("executor: commit step success: %w", err)
		}
		executed++
	}

	if err := e.finishPublished(dbc, task); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: domain.TaskPublished, StepsExecuted: executed}, nil
}

func (e *Executor) invokeHandler(ctx context.Context, descriptor tools.Descriptor, inputs artifact.Map, step *domain.PresetStep, stepIndex int) (artifact.Map, error) {
	spanCtx, span := tracer.Start(ctx, "executor.step",
		attribute.String("tool_id", step.ToolID),
		attribute.Int("step_index", stepIndex),
	)
	defer span.End()

	params := mergeParams(descriptor.DefaultParams, decodeParams(step.ParamOverrides))
	return descriptor.Handler.Handle(spanCtx, inputs, params)
}

func (e *Executor) checkControlFlags(dbc dbctx.Context, task *domain.PublishTask) error {
	fresh, err := e.Tasks.GetByID(dbc, task.ID)
	if err != nil {
		return fmt.Errorf("executor: refresh task for control check: %w", err)
	}
	if fresh == nil {
		return Permanent(fmt.Errorf("executor: task %s disappeared", task.ID))
	}
	*task = *fresh

	// Cancel wins over pause when both are set (spec.md §4.4).
	if task.CancelRequestedAt != nil {
		return e.transitionControl(dbc, task, domain.TaskCanceled, domain.StepCanceled)
	}
	if task.PauseRequestedAt != nil {
		return e.transitionControl(dbc, task, domain.TaskPaused, domain.StepPaused)
	}
	return nil
}

func (e *Executor) transitionControl(dbc dbctx.Context, task *domain.PublishTask, status domain.TaskStatus, stepStatus domain.StepStatus) error {
	now := time.Now()
	updates := map[string]interface{}{"status": status}
	if status == domain.TaskCanceled {
		updates["canceled_at"] = now
	} else {
		updates["paused_at"] = now
	}
	if _, err := e.Tasks.UpdateFieldsUnlessStatus(dbc, task.ID, []domain.TaskStatus{domain.TaskCanceled}, updates); err != nil {
		return fmt.Errorf("executor: control transition: %w", err)
	}
	task.Status = status
	if err := e.Steps.Append(dbc, &domain.StepResult{
		TaskID:    task.ID,
		StepIndex: domain.StepIndexControlEvent,
		ToolID:    domain.ToolIDControl,
		Status:    stepStatus,
		StartedAt: now,
		CompletedAt: &now,
	}); err != nil {
		return fmt.Errorf("executor: append control StepResult: %w", err)
	}
	if status == domain.TaskCanceled {
		return ErrCanceled
	}
	return ErrPaused
}

func (e *Executor) transitionAwaitingModeration(dbc dbctx.Context, task *domain.PublishTask) error {
	now := time.Now()
	_, err := e.Tasks.UpdateFieldsUnlessStatus(dbc, task.ID, []domain.TaskStatus{domain.TaskCanceled}, map[string]interface{}{
		"status":    domain.TaskAwaitingModeration,
		"paused_at": now,
	})
	return err
}

func (e *Executor) retryStep(dbc dbctx.Context, task *domain.PublishTask, step *domain.PresetStep, stepIndex int, cause error) (Outcome, error) {
	now := time.Now()
	msg := domain.TruncateError(cause.Error())
	if err := e.Steps.Append(dbc, &domain.StepResult{
		TaskID:       task.ID,
		StepIndex:    stepIndex,
		ToolID:       step.ToolID,
		Status:       domain.StepError,
		StartedAt:    now,
		CompletedAt:  &now,
		ErrorMessage: msg,
	}); err != nil {
		return Outcome{}, fmt.Errorf("executor: append retry StepResult: %w", err)
	}
	if err := e.Tasks.UpdateFields(dbc, task.ID, map[string]interface{}{"error_message": msg}); err != nil {
		return Outcome{}, fmt.Errorf("executor: record error_message: %w", err)
	}
	return Outcome{Status: domain.TaskError}, cause
}

func (e *Executor) finishPermanent(dbc dbctx.Context, task *domain.PublishTask, step *domain.PresetStep, cause error) (Outcome, error) {
	now := time.Now()
	msg := domain.TruncateError(cause.Error())
	if err := e.Steps.Append(dbc, &domain.StepResult{
		TaskID:       task.ID,
		StepIndex:    stepIndexOf(step),
		ToolID:       toolIDOf(step),
		Status:       domain.StepError,
		StartedAt:    now,
		CompletedAt:  &now,
		ErrorMessage: msg,
	}); err != nil {
		return Outcome{}, fmt.Errorf("executor: append permanent StepResult: %w", err)
	}
	if err := e.Tasks.UpdateFields(dbc, task.ID, map[string]interface{}{
		"status":        domain.TaskError,
		"error_message": msg,
	}); err != nil {
		return Outcome{}, fmt.Errorf("executor: mark task error: %w", err)
	}
	return Outcome{Status: domain.TaskError}, Permanent(cause)
}

func (e *Executor) commitStepSuccess(dbc dbctx.Context, task *domain.PublishTask, step *domain.PresetStep, stepIndex int, inputs, outputs artifact.Map) error {
	now := time.Now()
	promoted, err := e.promoteOversizeText(dbc.Ctx, outputs)
	if err != nil {
		return err
	}
	merged := task.Artifacts.Merge(promoted)

	inputJSON, _ := encodeSnapshot(inputs)
	outputJSON, _ := encodeSnapshot(promoted)

	if err := e.Steps.Append(dbc, &domain.StepResult{
		TaskID:      task.ID,
		StepIndex:   stepIndex,
		ToolID:      step.ToolID,
		StepName:    step.ToolID,
		Status:      domain.StepOK,
		StartedAt:   now,
		CompletedAt: &now,
		Input:       inputJSON,
		Output:      outputJSON,
	}); err != nil {
		return err
	}
	return e.Tasks.UpdateFields(dbc, task.ID, map[string]interface{}{"artifacts": merged})
}

func (e *Executor) promoteOversizeText(ctx context.Context, m artifact.Map) (artifact.Map, error) {
	if e.Objects == nil {
		return m, nil
	}
	out := m.Clone()
	for k, v := range m {
		if !v.IsText() || len(v.Text()) <= InlineTextSizeCap {
			continue
		}
		desc, err := e.Objects.Put(ctx, "text/plain", []byte(v.Text()))
		if err != nil {
			return nil, fmt.Errorf("executor: promote oversize text artifact %q: %w", k, err)
		}
		out[k] = artifact.NewBlob(desc)
	}
	return out, nil
}

func (e *Executor) finishPublished(dbc dbctx.Context, task *domain.PublishTask) error {
	now := time.Now()
	url, _ := task.Artifacts["published_url"]
	extID, _ := task.Artifacts["published_external_id"]
	updates := map[string]interface{}{
		"status":       domain.TaskPublished,
		"published_at": now,
	}
	if url.IsScalar() {
		if s, ok := url.Scalar().(string); ok {
			updates["published_url"] = s
		}
	}
	if extID.IsScalar() {
		if s, ok := extID.Scalar().(string); ok {
			updates["published_external_id"] = s
		}
	}
	return e.Tasks.UpdateFields(dbc, task.ID, updates)
}

func (e *Executor) outcomeFor(status domain.TaskStatus) Outcome {
	return Outcome{Status: status}
}

func moderationApproved(task *domain.PublishTask, step *domain.PresetStep) bool {
	v, ok := task.Artifacts[artifact.Kind("moderation_approved/"+step.ID)]
	return ok && v.IsScalar() && v.Scalar() == true
}

func resourceLimit(class tools.ResourceClass) int64 {
	// Every resource class is capped at a single slot; there is no
	// per-class or per-deployment limit setting.
	return 1
}

func stepIndexOf(step *domain.PresetStep) int { return step.OrderIndex }
func toolIDOf(step *domain.PresetStep) string  { return step.ToolID }

func mergeParams(defaults map[string]interface{}, overrides map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func decodeParams(raw datatypes.JSON) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func encodeSnapshot(m artifact.Map) (datatypes.JSON, error) {
	if len(m) == 0 {
		return datatypes.JSON("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
