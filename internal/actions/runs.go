package actions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/orchestrator"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

const runCreateInputSchema = `{
  "type": "object",
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "input": {}
  },
  "required": ["workflow_id"]
}`

const runListInputSchema = `{
  "type": "object",
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "limit": {"type": "integer", "minimum": 1},
    "offset": {"type": "integer", "minimum": 0}
  },
  "required": ["workflow_id"]
}`

const runViewInputSchema = `{
  "type": "object",
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "id": {"type": "string", "minLength": 1}
  },
  "required": ["workflow_id", "id"]
}`

const runTickInputSchema = `{
  "type": "object",
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "run_id": {"type": "string", "minLength": 1}
  },
  "required": ["workflow_id", "run_id"]
}`

// RunCreateAction starts a new run of an owned, enabled workflow.
type RunCreateAction struct {
	store store.Store
}

// NewRunCreateAction creates the workflow:run:create action.
func NewRunCreateAction(s store.Store) *RunCreateAction {
	return &RunCreateAction{store: s}
}

func (a *RunCreateAction) Name() string        { return "workflow:run:create" }
func (a *RunCreateAction) Description() string { return "Start a new workflow run." }

func (a *RunCreateAction) InputSchema() json.RawMessage {
	return json.RawMessage(runCreateInputSchema)
}

func (a *RunCreateAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *RunCreateAction) Route() action.Route {
	return action.Route{Method: http.MethodPut, Path: "/workflow/:workflow_id/run"}
}

func (a *RunCreateAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	wf, err := getOwnedWorkflow(ctx, a.store, params.String("workflow_id"), conn.UserID)
	if err != nil {
		return nil, err
	}
	if !wf.Enabled {
		return nil, schema.NewError(schema.KindNotEnabled, "workflow is not enabled").WithKey("workflow_id", wf.ID)
	}

	run := &store.WorkflowRun{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Status:     schema.RunStatusPending,
		Input:      params.String("input"),
	}
	if err := a.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	return map[string]any{"run": run}, nil
}

// RunListAction lists runs of an owned workflow, newest first.
type RunListAction struct {
	store store.Store
}

// NewRunListAction creates the workflow:run:list action.
func NewRunListAction(s store.Store) *RunListAction {
	return &RunListAction{store: s}
}

func (a *RunListAction) Name() string        { return "workflow:run:list" }
func (a *RunListAction) Description() string { return "List a workflow's runs." }

func (a *RunListAction) InputSchema() json.RawMessage {
	return json.RawMessage(runListInputSchema)
}

func (a *RunListAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *RunListAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/workflow/:workflow_id/runs"}
}

func (a *RunListAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	wf, err := getOwnedWorkflow(ctx, a.store, params.String("workflow_id"), conn.UserID)
	if err != nil {
		return nil, err
	}

	runs, err := a.store.ListRuns(ctx, store.RunFilter{
		WorkflowID: wf.ID,
		Limit:      params.Int("limit"),
		Offset:     params.Int("offset"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"runs": runs}, nil
}

// RunViewAction fetches one run of an owned workflow with its step records.
type RunViewAction struct {
	store store.Store
}

// NewRunViewAction creates the workflow:run:view action.
func NewRunViewAction(s store.Store) *RunViewAction {
	return &RunViewAction{store: s}
}

func (a *RunViewAction) Name() string        { return "workflow:run:view" }
func (a *RunViewAction) Description() string { return "View a run and its step records." }

func (a *RunViewAction) InputSchema() json.RawMessage {
	return json.RawMessage(runViewInputSchema)
}

func (a *RunViewAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *RunViewAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/workflow/:workflow_id/run/:id"}
}

func (a *RunViewAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	wf, err := getOwnedWorkflow(ctx, a.store, params.String("workflow_id"), conn.UserID)
	if err != nil {
		return nil, err
	}

	run, err := a.store.GetRun(ctx, params.String("id"), wf.ID)
	if err != nil {
		return nil, err
	}
	records, err := a.store.ListRunSteps(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"run": run, "steps": records}, nil
}

// RunTickAction advances a run by at most one step. Called over HTTP it
// enforces ownership; called from a queue job it runs in system context and
// the check is skipped.
type RunTickAction struct {
	processor *orchestrator.Processor
}

// NewRunTickAction creates the workflow:run:tick action.
func NewRunTickAction(p *orchestrator.Processor) *RunTickAction {
	return &RunTickAction{processor: p}
}

func (a *RunTickAction) Name() string        { return "workflow:run:tick" }
func (a *RunTickAction) Description() string { return "Advance a workflow run by one step." }

func (a *RunTickAction) InputSchema() json.RawMessage {
	return json.RawMessage(runTickInputSchema)
}

func (a *RunTickAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *RunTickAction) Route() action.Route {
	return action.Route{Method: http.MethodPost, Path: "/workflow/:workflow_id/run/:run_id/tick"}
}

func (a *RunTickAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	req := orchestrator.TickRequest{
		RunID:      params.String("run_id"),
		WorkflowID: params.String("workflow_id"),
	}
	if conn != nil && conn.Kind != "task" {
		req.RequireOwnership = true
		req.UserID = conn.UserID
	}

	run, err := a.processor.Tick(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{"run": run}, nil
}
