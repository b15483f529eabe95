package diagram

import (
	"fmt"

	"github.com/evantahler/botholomew-sub001/internal/store"
)

// BuildWorkflow turns a workflow's ordered steps into a linear diagram:
// start, one node per step labelled with its agent, end. When run step
// records are supplied their statuses overlay the step nodes.
func BuildWorkflow(wf *store.Workflow, steps []*store.WorkflowStep, agents map[string]*store.Agent, records []*store.WorkflowRunStep) *Model {
	model := &Model{Title: wf.Name}

	statusByStep := make(map[string]string, len(records))
	for _, r := range records {
		statusByStep[r.WorkflowStepID] = string(r.Status)
	}

	start := &Node{ID: "start", Label: "start"}
	model.Nodes = append(model.Nodes, start)

	// A step's output selector labels the edge carrying its output forward.
	prev := start.ID
	prevSelector := ""
	for _, step := range steps {
		label := fmt.Sprintf("step %d", step.Position)
		if agent, ok := agents[step.AgentID]; ok {
			label = fmt.Sprintf("step %d: %s", step.Position, agent.Name)
		}
		node := &Node{
			ID:     "step_" + step.ID,
			Label:  label,
			Status: statusByStep[step.ID],
		}
		model.Nodes = append(model.Nodes, node)
		model.Edges = append(model.Edges, Edge{From: prev, To: node.ID, Label: prevSelector})
		prev = node.ID
		prevSelector = step.OutputSelector
	}

	end := &Node{ID: "end_", Label: "end"}
	model.Nodes = append(model.Nodes, end)
	model.Edges = append(model.Edges, Edge{From: prev, To: end.ID, Label: prevSelector})

	return model
}
