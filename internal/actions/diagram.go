package actions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/diagram"
	"github.com/evantahler/botholomew-sub001/internal/store"
)

const workflowDiagramInputSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "run_id": {"type": "string"}
  },
  "required": ["id"]
}`

// WorkflowDiagramAction renders an owned workflow as a Mermaid flowchart,
// optionally overlaying a run's step statuses.
type WorkflowDiagramAction struct {
	store store.Store
}

// NewWorkflowDiagramAction creates the workflow:diagram action.
func NewWorkflowDiagramAction(s store.Store) *WorkflowDiagramAction {
	return &WorkflowDiagramAction{store: s}
}

func (a *WorkflowDiagramAction) Name() string        { return "workflow:diagram" }
func (a *WorkflowDiagramAction) Description() string { return "Render a workflow as a Mermaid diagram." }

func (a *WorkflowDiagramAction) InputSchema() json.RawMessage {
	return json.RawMessage(workflowDiagramInputSchema)
}

func (a *WorkflowDiagramAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *WorkflowDiagramAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/workflow/:id/diagram"}
}

func (a *WorkflowDiagramAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	wf, err := getOwnedWorkflow(ctx, a.store, params.String("id"), conn.UserID)
	if err != nil {
		return nil, err
	}

	steps, err := a.store.ListSteps(ctx, wf.ID)
	if err != nil {
		return nil, err
	}

	agents := make(map[string]*store.Agent, len(steps))
	for _, step := range steps {
		if _, seen := agents[step.AgentID]; seen {
			continue
		}
		agent, err := a.store.GetAgent(ctx, step.AgentID)
		if err != nil {
			continue
		}
		agents[step.AgentID] = agent
	}

	var records []*store.WorkflowRunStep
	if runID := params.String("run_id"); runID != "" {
		if _, err := a.store.GetRun(ctx, runID, wf.ID); err != nil {
			return nil, err
		}
		records, err = a.store.ListRunSteps(ctx, runID)
		if err != nil {
			return nil, err
		}
	}

	model := diagram.BuildWorkflow(wf, steps, agents, records)
	return map[string]any{
		"format":  "mermaid",
		"diagram": diagram.RenderMermaid(model),
	}, nil
}
