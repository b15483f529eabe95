package actions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/queue"
)

const taskEnqueueInputSchema = `{
  "type": "object",
  "properties": {
    "action": {"type": "string", "minLength": 1},
    "params": {"type": "object"},
    "queue": {"type": "string"}
  },
  "required": ["action"]
}`

const taskListInputSchema = `{
  "type": "object",
  "properties": {
    "queue": {"type": "string"},
    "limit": {"type": "integer", "minimum": 1},
    "offset": {"type": "integer", "minimum": 0}
  }
}`

// TaskEnqueueAction places an action invocation on a queue for a worker.
type TaskEnqueueAction struct {
	queue    *queue.Queue
	registry *action.Registry
}

// NewTaskEnqueueAction creates the task:enqueue action.
func NewTaskEnqueueAction(q *queue.Queue, registry *action.Registry) *TaskEnqueueAction {
	return &TaskEnqueueAction{queue: q, registry: registry}
}

func (a *TaskEnqueueAction) Name() string        { return "task:enqueue" }
func (a *TaskEnqueueAction) Description() string { return "Enqueue an action as a background job." }

func (a *TaskEnqueueAction) InputSchema() json.RawMessage {
	return json.RawMessage(taskEnqueueInputSchema)
}

func (a *TaskEnqueueAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *TaskEnqueueAction) Route() action.Route {
	return action.Route{Method: http.MethodPut, Path: "/task"}
}

func (a *TaskEnqueueAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	name := params.String("action")
	if _, err := a.registry.Get(name); err != nil {
		return nil, err
	}

	jobParams, _ := params["params"].(map[string]any)
	job, err := a.queue.Enqueue(ctx, params.String("queue"), name, jobParams)
	if err != nil {
		return nil, err
	}
	return map[string]any{"job": job}, nil
}

// TaskListAction lists pending jobs on a queue.
type TaskListAction struct {
	queue *queue.Queue
}

// NewTaskListAction creates the task:list action.
func NewTaskListAction(q *queue.Queue) *TaskListAction {
	return &TaskListAction{queue: q}
}

func (a *TaskListAction) Name() string        { return "task:list" }
func (a *TaskListAction) Description() string { return "List pending jobs on a queue." }

func (a *TaskListAction) InputSchema() json.RawMessage {
	return json.RawMessage(taskListInputSchema)
}

func (a *TaskListAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *TaskListAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/tasks"}
}

func (a *TaskListAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	jobs, err := a.queue.ListQueued(ctx, params.String("queue"), params.Int("offset"), params.Int("limit"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"jobs": jobs}, nil
}
