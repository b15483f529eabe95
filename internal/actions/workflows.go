package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/orchestrator"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

const workflowCreateInputSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "enabled": {"type": "boolean", "default": false},
    "schedule": {"type": "string"}
  },
  "required": ["name"]
}`

const workflowEditInputSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "description": {"type": "string"},
    "enabled": {"type": "boolean"},
    "schedule": {"type": "string"}
  },
  "required": ["id"]
}`

const workflowIDInputSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": "string", "minLength": 1}
  },
  "required": ["id"]
}`

// getOwnedWorkflow loads a workflow and enforces caller ownership.
func getOwnedWorkflow(ctx context.Context, s store.Store, id, userID string) (*store.Workflow, error) {
	wf, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.UserID != userID {
		return nil, schema.NewError(schema.KindNotFound, "workflow not found").WithKey("id", id)
	}
	return wf, nil
}

// validateSchedule rejects cron expressions the scheduler could never fire.
func validateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := orchestrator.NextDue(expr, time.Now().UTC()); err != nil {
		return schema.NewError(schema.KindParamValidation, "invalid cron schedule").
			WithKey("schedule", expr).WithCause(err)
	}
	return nil
}

// WorkflowCreateAction creates a workflow owned by the caller.
type WorkflowCreateAction struct {
	store store.Store
}

// NewWorkflowCreateAction creates the workflow:create action.
func NewWorkflowCreateAction(s store.Store) *WorkflowCreateAction {
	return &WorkflowCreateAction{store: s}
}

func (a *WorkflowCreateAction) Name() string        { return "workflow:create" }
func (a *WorkflowCreateAction) Description() string { return "Create a new workflow." }

func (a *WorkflowCreateAction) InputSchema() json.RawMessage {
	return json.RawMessage(workflowCreateInputSchema)
}

func (a *WorkflowCreateAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *WorkflowCreateAction) Route() action.Route {
	return action.Route{Method: http.MethodPut, Path: "/workflow"}
}

func (a *WorkflowCreateAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	schedule := params.String("schedule")
	if err := validateSchedule(schedule); err != nil {
		return nil, err
	}

	wf := &store.Workflow{
		ID:          uuid.NewString(),
		UserID:      conn.UserID,
		Name:        params.String("name"),
		Description: params.String("description"),
		Enabled:     params.Bool("enabled"),
		Schedule:    schedule,
	}
	if err := a.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}

	return map[string]any{"workflow": wf}, nil
}

// WorkflowEditAction updates mutable fields of an owned workflow.
type WorkflowEditAction struct {
	store store.Store
}

// NewWorkflowEditAction creates the workflow:edit action.
func NewWorkflowEditAction(s store.Store) *WorkflowEditAction {
	return &WorkflowEditAction{store: s}
}

func (a *WorkflowEditAction) Name() string        { return "workflow:edit" }
func (a *WorkflowEditAction) Description() string { return "Edit an existing workflow." }

func (a *WorkflowEditAction) InputSchema() json.RawMessage {
	return json.RawMessage(workflowEditInputSchema)
}

func (a *WorkflowEditAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *WorkflowEditAction) Route() action.Route {
	return action.Route{Method: http.MethodPost, Path: "/workflow/:id"}
}

func (a *WorkflowEditAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	id := params.String("id")
	if _, err := getOwnedWorkflow(ctx, a.store, id, conn.UserID); err != nil {
		return nil, err
	}

	var update store.WorkflowUpdate
	if v, ok := params["name"]; ok {
		s, _ := v.(string)
		update.Name = &s
	}
	if v, ok := params["description"]; ok {
		s, _ := v.(string)
		update.Description = &s
	}
	if v, ok := params["enabled"]; ok {
		b, _ := v.(bool)
		update.Enabled = &b
	}
	if v, ok := params["schedule"]; ok {
		s, _ := v.(string)
		if s == "" {
			update.ClearSchedule = true
		} else {
			if err := validateSchedule(s); err != nil {
				return nil, err
			}
			update.Schedule = &s
		}
	}

	if err := a.store.UpdateWorkflow(ctx, id, update); err != nil {
		return nil, err
	}

	wf, err := a.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflow": wf}, nil
}

// WorkflowListAction lists the caller's workflows.
type WorkflowListAction struct {
	store store.Store
}

// NewWorkflowListAction creates the workflow:list action.
func NewWorkflowListAction(s store.Store) *WorkflowListAction {
	return &WorkflowListAction{store: s}
}

func (a *WorkflowListAction) Name() string        { return "workflow:list" }
func (a *WorkflowListAction) Description() string { return "List your workflows." }

func (a *WorkflowListAction) InputSchema() json.RawMessage { return nil }

func (a *WorkflowListAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *WorkflowListAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/workflows"}
}

func (a *WorkflowListAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	workflows, err := a.store.ListWorkflows(ctx, store.WorkflowFilter{UserID: conn.UserID})
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflows": workflows}, nil
}

// WorkflowViewAction fetches one owned workflow with its steps.
type WorkflowViewAction struct {
	store store.Store
}

// NewWorkflowViewAction creates the workflow:view action.
func NewWorkflowViewAction(s store.Store) *WorkflowViewAction {
	return &WorkflowViewAction{store: s}
}

func (a *WorkflowViewAction) Name() string        { return "workflow:view" }
func (a *WorkflowViewAction) Description() string { return "View a workflow and its steps." }

func (a *WorkflowViewAction) InputSchema() json.RawMessage {
	return json.RawMessage(workflowIDInputSchema)
}

func (a *WorkflowViewAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *WorkflowViewAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/workflow/:id"}
}

func (a *WorkflowViewAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	wf, err := getOwnedWorkflow(ctx, a.store, params.String("id"), conn.UserID)
	if err != nil {
		return nil, err
	}
	steps, err := a.store.ListSteps(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"workflow": wf, "steps": steps}, nil
}

// WorkflowDeleteAction removes an owned workflow.
type WorkflowDeleteAction struct {
	store store.Store
}

// NewWorkflowDeleteAction creates the workflow:delete action.
func NewWorkflowDeleteAction(s store.Store) *WorkflowDeleteAction {
	return &WorkflowDeleteAction{store: s}
}

func (a *WorkflowDeleteAction) Name() string        { return "workflow:delete" }
func (a *WorkflowDeleteAction) Description() string { return "Delete a workflow." }

func (a *WorkflowDeleteAction) InputSchema() json.RawMessage {
	return json.RawMessage(workflowIDInputSchema)
}

func (a *WorkflowDeleteAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *WorkflowDeleteAction) Route() action.Route {
	return action.Route{Method: http.MethodDelete, Path: "/workflow/:id"}
}

func (a *WorkflowDeleteAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	id := params.String("id")
	if _, err := getOwnedWorkflow(ctx, a.store, id, conn.UserID); err != nil {
		return nil, err
	}
	if err := a.store.DeleteWorkflow(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}
