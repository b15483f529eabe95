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

const agentCreateInputSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "model": {"type": "string", "minLength": 1},
    "system_prompt": {"type": "string"},
    "user_prompt": {"type": "string"},
    "enabled": {"type": "boolean", "default": true}
  },
  "required": ["name", "model"]
}`

const agentEditInputSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "description": {"type": "string"},
    "model": {"type": "string"},
    "system_prompt": {"type": "string"},
    "user_prompt": {"type": "string"},
    "enabled": {"type": "boolean"}
  },
  "required": ["id"]
}`

const agentIDInputSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": "string", "minLength": 1}
  },
  "required": ["id"]
}`

// getOwnedAgent loads an agent and enforces that it belongs to the caller.
// Someone else's agent reports the same way as a missing one.
func getOwnedAgent(ctx context.Context, s store.Store, id, userID string) (*store.Agent, error) {
	agent, err := s.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent.UserID != userID {
		return nil, schema.NewError(schema.KindNotFound, "agent not found").WithKey("id", id)
	}
	return agent, nil
}

// AgentCreateAction creates an agent owned by the caller.
type AgentCreateAction struct {
	store store.Store
}

// NewAgentCreateAction creates the agent:create action.
func NewAgentCreateAction(s store.Store) *AgentCreateAction {
	return &AgentCreateAction{store: s}
}

func (a *AgentCreateAction) Name() string        { return "agent:create" }
func (a *AgentCreateAction) Description() string { return "Create a new agent." }

func (a *AgentCreateAction) InputSchema() json.RawMessage {
	return json.RawMessage(agentCreateInputSchema)
}

func (a *AgentCreateAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *AgentCreateAction) Route() action.Route {
	return action.Route{Method: http.MethodPut, Path: "/agent"}
}

func (a *AgentCreateAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	enabled := true
	if _, ok := params["enabled"]; ok {
		enabled = params.Bool("enabled")
	}

	agent := &store.Agent{
		ID:           uuid.NewString(),
		UserID:       conn.UserID,
		Name:         params.String("name"),
		Description:  params.String("description"),
		Enabled:      enabled,
		Model:        params.String("model"),
		SystemPrompt: params.String("system_prompt"),
		UserPrompt:   params.String("user_prompt"),
	}
	if err := a.store.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	return map[string]any{"agent": agent}, nil
}

// AgentEditAction updates mutable fields of an owned agent.
type AgentEditAction struct {
	store store.Store
}

// NewAgentEditAction creates the agent:edit action.
func NewAgentEditAction(s store.Store) *AgentEditAction {
	return &AgentEditAction{store: s}
}

func (a *AgentEditAction) Name() string        { return "agent:edit" }
func (a *AgentEditAction) Description() string { return "Edit an existing agent." }

func (a *AgentEditAction) InputSchema() json.RawMessage {
	return json.RawMessage(agentEditInputSchema)
}

func (a *AgentEditAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *AgentEditAction) Route() action.Route {
	return action.Route{Method: http.MethodPost, Path: "/agent/:id"}
}

func (a *AgentEditAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	id := params.String("id")
	if _, err := getOwnedAgent(ctx, a.store, id, conn.UserID); err != nil {
		return nil, err
	}

	var update store.AgentUpdate
	if v, ok := params["name"]; ok {
		s, _ := v.(string)
		update.Name = &s
	}
	if v, ok := params["description"]; ok {
		s, _ := v.(string)
		update.Description = &s
	}
	if v, ok := params["model"]; ok {
		s, _ := v.(string)
		update.Model = &s
	}
	if v, ok := params["system_prompt"]; ok {
		s, _ := v.(string)
		update.SystemPrompt = &s
	}
	if v, ok := params["user_prompt"]; ok {
		s, _ := v.(string)
		update.UserPrompt = &s
	}
	if v, ok := params["enabled"]; ok {
		b, _ := v.(bool)
		update.Enabled = &b
	}

	if err := a.store.UpdateAgent(ctx, id, update); err != nil {
		return nil, err
	}

	agent, err := a.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent": agent}, nil
}

// AgentListAction lists the caller's agents.
type AgentListAction struct {
	store store.Store
}

// NewAgentListAction creates the agent:list action.
func NewAgentListAction(s store.Store) *AgentListAction {
	return &AgentListAction{store: s}
}

func (a *AgentListAction) Name() string        { return "agent:list" }
func (a *AgentListAction) Description() string { return "List your agents." }

func (a *AgentListAction) InputSchema() json.RawMessage { return nil }

func (a *AgentListAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *AgentListAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/agents"}
}

func (a *AgentListAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	agents, err := a.store.ListAgents(ctx, conn.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agents": agents}, nil
}

// AgentViewAction fetches one owned agent.
type AgentViewAction struct {
	store store.Store
}

// NewAgentViewAction creates the agent:view action.
func NewAgentViewAction(s store.Store) *AgentViewAction {
	return &AgentViewAction{store: s}
}

func (a *AgentViewAction) Name() string        { return "agent:view" }
func (a *AgentViewAction) Description() string { return "View a single agent." }

func (a *AgentViewAction) InputSchema() json.RawMessage {
	return json.RawMessage(agentIDInputSchema)
}

func (a *AgentViewAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *AgentViewAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/agent/:id"}
}

func (a *AgentViewAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	agent, err := getOwnedAgent(ctx, a.store, params.String("id"), conn.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"agent": agent}, nil
}

// AgentDeleteAction removes an owned agent.
type AgentDeleteAction struct {
	store store.Store
}

// NewAgentDeleteAction creates the agent:delete action.
func NewAgentDeleteAction(s store.Store) *AgentDeleteAction {
	return &AgentDeleteAction{store: s}
}

func (a *AgentDeleteAction) Name() string        { return "agent:delete" }
func (a *AgentDeleteAction) Description() string { return "Delete an agent." }

func (a *AgentDeleteAction) InputSchema() json.RawMessage {
	return json.RawMessage(agentIDInputSchema)
}

func (a *AgentDeleteAction) Middleware() []string { return []string{MiddlewareAuth} }

func (a *AgentDeleteAction) Route() action.Route {
	return action.Route{Method: http.MethodDelete, Path: "/agent/:id"}
}

func (a *AgentDeleteAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	id := params.String("id")
	if _, err := getOwnedAgent(ctx, a.store, id, conn.UserID); err != nil {
		return nil, err
	}
	if err := a.store.DeleteAgent(ctx, id); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}
