package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evantahler/botholomew-sub001/internal/agents"
	"github.com/evantahler/botholomew-sub001/internal/logging"
	"github.com/evantahler/botholomew-sub001/internal/prompts"
	"github.com/evantahler/botholomew-sub001/internal/realtime"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// RunsChannel carries run status transitions to realtime subscribers.
const RunsChannel = "runs"

// TickRequest identifies the run to advance and whether the caller's
// ownership must be checked. Queue workers skip the check: the job was
// authorized when it was enqueued.
type TickRequest struct {
	RunID            string
	WorkflowID       string
	RequireOwnership bool
	UserID           string
}

// Processor advances workflow runs one step per tick. It is user-agnostic
// once authorization has passed and operates purely on IDs.
type Processor struct {
	store        store.Store
	runner       agents.Runner
	hub          realtime.Hub
	interpolator *prompts.Interpolator
	selector     *prompts.Selector
	locks        *runLocks
	logger       *slog.Logger
}

// NewProcessor creates a tick Processor. A nil hub disables run status
// broadcasts.
func NewProcessor(s store.Store, runner agents.Runner, hub realtime.Hub, logger *slog.Logger) *Processor {
	return &Processor{
		store:        s,
		runner:       runner,
		hub:          hub,
		interpolator: prompts.NewInterpolator(),
		selector:     prompts.NewSelector(),
		locks:        newRunLocks(),
		logger:       logger,
	}
}

// publishTransition pushes a run status change to the runs channel.
// Broadcast failures are logged, never surfaced: delivery is best-effort.
func (p *Processor) publishTransition(ctx context.Context, run *store.WorkflowRun, status schema.RunStatus) {
	if p.hub == nil {
		return
	}
	err := p.hub.Broadcast(ctx, realtime.Message{
		Channel: RunsChannel,
		Payload: map[string]any{
			"run_id":      run.ID,
			"workflow_id": run.WorkflowID,
			"status":      status,
		},
	})
	if err != nil {
		p.logger.WarnContext(ctx, "failed to broadcast run transition",
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}

// Tick executes at most one pending step of the run and returns the run's
// refreshed state. A tick on a finished run, a stepless workflow, or a run
// already being ticked by another worker is a no-op.
func (p *Processor) Tick(ctx context.Context, req TickRequest) (*store.WorkflowRun, error) {
	ctx = logging.WithRunID(ctx, req.RunID)
	ctx = logging.WithWorkflowID(ctx, req.WorkflowID)

	run, err := p.store.GetRun(ctx, req.RunID, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	wf, err := p.store.GetWorkflow(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}
	if req.RequireOwnership && wf.UserID != req.UserID {
		return nil, schema.NewError(schema.KindNotFound, "workflow not found").WithKey("workflow_id", req.WorkflowID)
	}
	if !wf.Enabled {
		return nil, schema.NewError(schema.KindNotEnabled, "workflow is not enabled").WithKey("workflow_id", wf.ID)
	}

	if run.Status.Terminal() {
		return run, nil
	}

	if !p.locks.tryAcquire(run.ID) {
		p.logger.DebugContext(ctx, "tick already in flight, skipping")
		return run, nil
	}
	defer p.locks.release(run.ID)

	steps, err := p.store.ListSteps(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return run, nil
	}

	if run.CurrentStep >= len(steps) {
		return p.completeRun(ctx, run)
	}

	thisStep := steps[run.CurrentStep]

	agent, err := p.store.GetAgent(ctx, thisStep.AgentID)
	if err != nil {
		// A step pointing at a missing agent is a data-integrity failure,
		// not a business error.
		return nil, fmt.Errorf("step %s references missing agent %s: %w", thisStep.ID, thisStep.AgentID, err)
	}

	input, err := p.stepInput(ctx, run, steps)
	if err != nil {
		return nil, err
	}

	runStep, err := p.freshRunStep(ctx, run, wf, thisStep, agent, input)
	if err != nil {
		return nil, err
	}

	return p.executeStep(ctx, run, wf, thisStep, agent, runStep, input)
}

// stepInput resolves the input for the current step: the preceding step's
// recorded output when one exists, else the run's original input.
func (p *Processor) stepInput(ctx context.Context, run *store.WorkflowRun, steps []*store.WorkflowStep) (string, error) {
	if run.CurrentStep > 0 {
		prev := steps[run.CurrentStep-1]
		prevRecord, err := p.store.GetRunStepForStep(ctx, run.ID, prev.ID)
		if err == nil && prevRecord != nil {
			return prevRecord.Output, nil
		}
		if err != nil && !schema.IsKind(err, schema.KindNotFound) {
			return "", err
		}
	}
	return run.Input, nil
}

// freshRunStep replaces any stale record for (run, step) and inserts a new
// one, pending then running. The replace keeps retried ticks idempotent.
func (p *Processor) freshRunStep(ctx context.Context, run *store.WorkflowRun, wf *store.Workflow, step *store.WorkflowStep, agent *store.Agent, input string) (*store.WorkflowRunStep, error) {
	rs := &store.WorkflowRunStep{
		ID:             uuid.NewString(),
		WorkflowRunID:  run.ID,
		WorkflowStepID: step.ID,
		WorkflowID:     wf.ID,
		SystemPrompt:   agent.SystemPrompt,
		UserPrompt:     agent.UserPrompt,
		Input:          input,
		Status:         schema.RunStepStatusPending,
	}
	if err := p.store.ReplaceRunStep(ctx, rs); err != nil {
		return nil, err
	}

	running := schema.RunStepStatusRunning
	if err := p.store.UpdateRunStep(ctx, rs.ID, store.RunStepUpdate{Status: &running}); err != nil {
		return nil, err
	}
	rs.Status = running
	return rs, nil
}

// executeStep interpolates the agent's prompts, invokes the runner, and
// persists the outcome. On failure the run and run step are failed together
// in one transaction and the error is re-raised as a typed business error.
func (p *Processor) executeStep(ctx context.Context, run *store.WorkflowRun, wf *store.Workflow, step *store.WorkflowStep, agent *store.Agent, runStep *store.WorkflowRunStep, input string) (*store.WorkflowRun, error) {
	scope := &prompts.Scope{
		Input: decodeJSON(input),
		Workflow: map[string]any{
			"id":          wf.ID,
			"name":        wf.Name,
			"description": wf.Description,
		},
		Run: map[string]any{
			"id":           run.ID,
			"input":        run.Input,
			"current_step": run.CurrentStep,
		},
		Step: map[string]any{
			"id":       step.ID,
			"position": step.Position,
		},
	}

	result, err := p.runStep(ctx, agent, step, scope, input)
	if err != nil {
		if ferr := p.store.FailRun(ctx, run.ID, runStep.ID, err.Error()); ferr != nil {
			p.logger.ErrorContext(ctx, "failed to record run failure",
				slog.String("error", ferr.Error()))
		}
		p.logger.WarnContext(ctx, "workflow step failed",
			slog.String("step_id", step.ID),
			slog.String("error", err.Error()))
		p.publishTransition(ctx, run, schema.RunStatusFailed)
		return nil, schema.NewErrorf(schema.KindStepExecution,
			"step %d failed: %s", step.Position, err.Error()).WithCause(err)
	}

	// Success: record the step, then advance the cursor.
	completed := schema.RunStepStatusCompleted
	if err := p.store.UpdateRunStep(ctx, runStep.ID, store.RunStepUpdate{
		Status:    &completed,
		Output:    &result.output,
		Rationale: &result.rationale,
	}); err != nil {
		return nil, err
	}

	next := run.CurrentStep + 1
	update := store.RunUpdate{CurrentStep: &next}
	if run.Status == schema.RunStatusPending {
		running := schema.RunStatusRunning
		startedAt := time.Now().UTC()
		update.Status = &running
		update.StartedAt = &startedAt
	}
	if err := p.store.UpdateRun(ctx, run.ID, update); err != nil {
		return nil, err
	}
	if update.Status != nil {
		p.publishTransition(ctx, run, *update.Status)
	}

	p.logger.InfoContext(ctx, "workflow step completed",
		slog.String("step_id", step.ID),
		slog.Int("position", step.Position))

	return p.store.GetRun(ctx, run.ID, run.WorkflowID)
}

type stepResult struct {
	output    string
	rationale string
}

// runStep invokes the agent collaborator and applies the step's output
// selector to the successful result.
func (p *Processor) runStep(ctx context.Context, agent *store.Agent, step *store.WorkflowStep, scope *prompts.Scope, input string) (*stepResult, error) {
	systemPrompt, err := p.interpolator.Resolve(agent.SystemPrompt, scope)
	if err != nil {
		return nil, err
	}
	userPrompt, err := p.interpolator.Resolve(agent.UserPrompt, scope)
	if err != nil {
		return nil, err
	}

	result, err := p.runner.Run(ctx, agents.Invocation{
		Model:        agent.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Input:        decodeJSON(input),
	})
	if err != nil {
		return nil, err
	}
	if result.Status == "error" {
		msg := result.Error
		if msg == "" {
			msg = "agent returned an error"
		}
		return nil, fmt.Errorf("%s", msg)
	}

	output := result.Result
	if step.OutputSelector != "" {
		output, err = p.selector.Apply(ctx, step.OutputSelector, normalizeJSON(output))
		if err != nil {
			return nil, err
		}
	}

	return &stepResult{
		output:    encodeJSON(output),
		rationale: result.Rationale,
	}, nil
}

// completeRun transitions a run whose cursor is past the last step.
func (p *Processor) completeRun(ctx context.Context, run *store.WorkflowRun) (*store.WorkflowRun, error) {
	completed := schema.RunStatusCompleted
	completedAt := time.Now().UTC()
	update := store.RunUpdate{
		Status:      &completed,
		CompletedAt: &completedAt,
	}

	// The last recorded step output becomes the run output.
	if records, err := p.store.ListRunSteps(ctx, run.ID); err == nil && len(records) > 0 {
		last := records[len(records)-1]
		update.Output = &last.Output
	}

	if err := p.store.UpdateRun(ctx, run.ID, update); err != nil {
		return nil, err
	}
	p.publishTransition(ctx, run, completed)

	p.logger.InfoContext(ctx, "workflow run completed")
	return p.store.GetRun(ctx, run.ID, run.WorkflowID)
}

// decodeJSON turns stored JSON text back into a value, falling back to the
// raw string for non-JSON content.
func decodeJSON(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// encodeJSON renders a value as stored JSON text. Plain strings are stored
// verbatim so step outputs chain without extra quoting.
func encodeJSON(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// normalizeJSON round-trips a value through JSON so gojq sees only the types
// it understands.
func normalizeJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
