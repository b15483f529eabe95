package actions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

const stepCreateInputSchema = `{
  "type": "object",
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "agent_id": {"type": "string", "minLength": 1},
    "position": {"type": "integer", "minimum": 0},
    "output_selector": {"type": "string"}
  },
  "required": ["workflow_id", "agent_id", "position"]
}`

const stepEditInputSchema = `{
  "type": "object",
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "id": {"type": "string", "minLength": 1},
    "agent_id": {"type": "string"},
    "position": {"type": "integer", "minimum": 0},
    "output_selector": {"type": "string"}
  },
  "required": ["workflow_id", "id"]
}`

const stepListInputSchema = `{
  "type": "object",
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1}
  },
  "required": ["workflow_id"]
}`

const stepDeleteInputSchema = `{
  "type": "object",
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "id": {"type": "string", "minLength": 1}
  },
  "required": ["workflow_id", "id"]
}`

// getOwnedStep loads a step after proving the caller owns its workflow.
func getOwnedStep(ctx context.Context, s store.Store, stepID, workflowID, userID string) (*store.WorkflowStep, error) {
	if _, err := getOwnedWorkflow(ctx, s, workflowID, userID); err != nil {
		return nil, err
	}
	step, err := s.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.WorkflowID != workflowID {
		return nil, schema.NewError(schema.KindNotFound, "step not found").WithKey("id", stepID)
	}
	return step, nil
}

// StepCreateAction appends an agent step to an owned workflow.
type StepCreateAction struct {
	store store.Store
}

// NewStepCreateAction creates the workflow:step:create action.
func NewStepCreateAction(s store.Store) *StepCreateAction {
	return &StepCreateAction{store: s}
}

func (a *StepCreateAction) Name() string        { return "workflow:step:create" }
func (a *StepCreateAction) Description() string { return "Add a step to a workflow." }

func (a *StepCreateAction) InputSchema() json.RawMessage {
	return json.RawMessage(stepCreateInputSchema)
}

func (a *StepCreateAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *StepCreateAction) Route() action.Route {
	return action.Route{Method: http.MethodPut, Path: "/workflow/:workflow_id/step"}
}

func (a *StepCreateAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	workflowID := params.String("workflow_id")
	if _, err := getOwnedWorkflow(ctx, a.store, workflowID, conn.UserID); err != nil {
		return nil, err
	}

	// The agent must belong to the same user; a step may not borrow a
	// stranger's prompts.
	if _, err := getOwnedAgent(ctx, a.store, params.String("agent_id"), conn.UserID); err != nil {
		return nil, err
	}

	step := &store.WorkflowStep{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		AgentID:        params.String("agent_id"),
		Position:       params.Int("position"),
		OutputSelector: params.String("output_selector"),
	}
	if err := a.store.CreateStep(ctx, step); err != nil {
		return nil, err
	}

	return map[string]any{"step": step}, nil
}

// StepEditAction updates a step of an owned workflow.
type StepEditAction struct {
	store store.Store
}

// NewStepEditAction creates the workflow:step:edit action.
func NewStepEditAction(s store.Store) *StepEditAction {
	return &StepEditAction{store: s}
}

func (a *StepEditAction) Name() string        { return "workflow:step:edit" }
func (a *StepEditAction) Description() string { return "Edit a workflow step." }

func (a *StepEditAction) InputSchema() json.RawMessage {
	return json.RawMessage(stepEditInputSchema)
}

func (a *StepEditAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *StepEditAction) Route() action.Route {
	return action.Route{Method: http.MethodPost, Path: "/workflow/:workflow_id/step/:id"}
}

func (a *StepEditAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	id := params.String("id")
	if _, err := getOwnedStep(ctx, a.store, id, params.String("workflow_id"), conn.UserID); err != nil {
		return nil, err
	}

	var update store.StepUpdate
	if v, ok := params["agent_id"]; ok {
		s, _ := v.(string)
		if _, err := getOwnedAgent(ctx, a.store, s, conn.UserID); err != nil {
			return nil, err
		}
		update.AgentID = &s
	}
	if _, ok := params["position"]; ok {
		p := params.Int("position")
		update.Position = &p
	}
	if v, ok := params["output_selector"]; ok {
		s, _ := v.(string)
		update.OutputSelector = &s
	}

	if err := a.store.UpdateStep(ctx, id, update); err != nil {
		return nil, err
	}

	step, err := a.store.GetStep(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"step": step}, nil
}

// StepListAction lists an owned workflow's steps in execution order.
type StepListAction struct {
	store store.Store
}

// NewStepListAction creates the workflow:step:list action.
func NewStepListAction(s store.Store) *StepListAction {
	return &StepListAction{store: s}
}

func (a *StepListAction) Name() string        { return "workflow:step:list" }
func (a *StepListAction) Description() string { return "List a workflow's steps in order." }

func (a *StepListAction) InputSchema() json.RawMessage {
	return json.RawMessage(stepListInputSchema)
}

func (a *StepListAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *StepListAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/workflow/:workflow_id/steps"}
}

func (a *StepListAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	workflowID := params.String("workflow_id")
	if _, err := getOwnedWorkflow(ctx, a.store, workflowID, conn.UserID); err != nil {
		return nil, err
	}
	steps, err := a.store.ListSteps(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"steps": steps}, nil
}

// StepDeleteAction removes a step from an owned workflow.
type StepDeleteAction struct {
	store store.Store
}

// NewStepDeleteAction creates the workflow:step:delete action.
func NewStepDeleteAction(s store.Store) *StepDeleteAction {
	return &StepDeleteAction{store: s}
}

func (a *StepDeleteAction) Name() string        { return "workflow:step:delete" }
func (a *StepDeleteAction) Description() string { return "Delete a workflow step." }

func (a *StepDeleteAction) InputSchema() json.RawMessage {
	return json.RawMessage(stepDeleteInputSchema)
}

func (a *StepDeleteAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *StepDeleteAction) Route() action.Route {
	return action.Route{Method: http.MethodDelete, Path: "/workflow/:workflow_id/step/:id"}
}

func (a *StepDeleteAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	id := params.String("id")
	if _, err := getOwnedStep(ctx, a.store, id, params.String("workflow_id"), conn.UserID); err != nil {
		return nil, err
	}
	if err := a.store.DeleteStep(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}
