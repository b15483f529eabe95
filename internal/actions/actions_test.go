package actions

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/agents"
	"github.com/evantahler/botholomew-sub001/internal/orchestrator"
	"github.com/evantahler/botholomew-sub001/internal/queue"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, inv agents.Invocation) (*agents.Result, error) {
	return &agents.Result{Status: "complete", Result: "stub output"}, nil
}

type harness struct {
	store      store.Store
	dispatcher *action.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.New(s)
	registry := action.NewRegistry()
	require.NoError(t, RegisterAll(registry, Deps{
		Store:             s,
		Queue:             q,
		Processor:         orchestrator.NewProcessor(s, stubRunner{}, nil, logger),
		Scheduler:         orchestrator.NewScheduler(s, time.Minute, logger),
		Ticker:            orchestrator.NewTicker(s, q, logger),
		SessionTTL:        time.Hour,
		SchedulerInterval: time.Minute,
		TickerInterval:    15 * time.Second,
	}))

	return &harness{store: s, dispatcher: action.NewDispatcher(registry, logger)}
}

// signup registers and logs in a user, returning an authenticated connection.
func (h *harness) signup(t *testing.T, email string) *action.Connection {
	t.Helper()
	ctx := context.Background()
	conn := &action.Connection{Kind: "web"}

	env := h.dispatcher.Act(ctx, conn, "user:create", action.Input{
		"name":     "Mario",
		"email":    email,
		"password": "mushroom1up",
	})
	require.False(t, env.IsError(), "user:create: %+v", env.Err)

	env = h.dispatcher.Act(ctx, conn, "session:create", action.Input{
		"email":    email,
		"password": "mushroom1up",
	})
	require.False(t, env.IsError(), "session:create: %+v", env.Err)
	require.NotEmpty(t, conn.SessionID)
	return conn
}

// act dispatches and decodes the response the way a client would see it,
// through its JSON form.
func (h *harness) act(t *testing.T, conn *action.Connection, name string, params action.Input) map[string]any {
	t.Helper()
	env := h.dispatcher.Act(context.Background(), conn, name, params)
	require.False(t, env.IsError(), "%s: %+v", name, env.Err)

	b, err := json.Marshal(env.Response)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(b, &result), "%s response is not a JSON object", name)
	return result
}

func (h *harness) actErr(t *testing.T, conn *action.Connection, name string, params action.Input) *schema.Error {
	t.Helper()
	env := h.dispatcher.Act(context.Background(), conn, name, params)
	require.True(t, env.IsError(), "%s unexpectedly succeeded", name)
	return env.Err
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conn := &action.Connection{Kind: "web"}
	env := h.dispatcher.Act(ctx, conn, "session:create", action.Input{
		"email":    "nobody@example.com",
		"password": "whatever1",
	})
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindSessionNotFound, env.Err.Kind)
	assert.Equal(t, "invalid email or password", env.Err.Message)

	conn = h.signup(t, "mario@example.com")
	sessionID := conn.SessionID

	// Wrong password after signup still rejects.
	bad := &action.Connection{Kind: "web"}
	env = h.dispatcher.Act(ctx, bad, "session:create", action.Input{
		"email":    "mario@example.com",
		"password": "wrongwrong",
	})
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindSessionNotFound, env.Err.Kind)

	// Logout clears the connection and invalidates the session.
	h.act(t, conn, "session:destroy", nil)
	assert.Empty(t, conn.SessionID)

	conn.SessionID = sessionID
	err := h.actErr(t, conn, "agent:list", nil)
	assert.Equal(t, schema.KindSessionNotFound, err.Kind)
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "mario@example.com")

	conn := &action.Connection{Kind: "web"}
	env := h.dispatcher.Act(context.Background(), conn, "user:create", action.Input{
		"name":     "Impostor",
		"email":    "mario@example.com",
		"password": "mushroom1up",
	})
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindConflict, env.Err.Kind)
	assert.Equal(t, 409, env.Status())
}

func TestAuthMiddleware_GuardsActions(t *testing.T) {
	h := newHarness(t)

	anon := &action.Connection{Kind: "web"}
	err := h.actErr(t, anon, "agent:list", nil)
	assert.Equal(t, schema.KindSessionNotFound, err.Kind)

	stale := &action.Connection{Kind: "web", SessionID: "not-a-session"}
	err = h.actErr(t, stale, "agent:list", nil)
	assert.Equal(t, schema.KindSessionNotFound, err.Kind)
}

func TestAgentCRUDAndOwnership(t *testing.T) {
	h := newHarness(t)
	mario := h.signup(t, "mario@example.com")
	luigi := h.signup(t, "luigi@example.com")

	created := h.act(t, mario, "agent:create", action.Input{
		"name":          "summarizer",
		"model":         "gpt-4o",
		"system_prompt": "You summarize.",
		"user_prompt":   "Summarize: ${{ input }}",
	})
	agentData := created["agent"].(map[string]any)
	agentID := agentData["id"].(string)

	viewed := h.act(t, mario, "agent:view", action.Input{"id": agentID})
	assert.Equal(t, "summarizer", viewed["agent"].(map[string]any)["name"])

	// Another user's agent reads as missing, not forbidden.
	err := h.actErr(t, luigi, "agent:view", action.Input{"id": agentID})
	assert.Equal(t, schema.KindNotFound, err.Kind)
	err = h.actErr(t, luigi, "agent:delete", action.Input{"id": agentID})
	assert.Equal(t, schema.KindNotFound, err.Kind)

	h.act(t, mario, "agent:edit", action.Input{"id": agentID, "name": "digester"})
	viewed = h.act(t, mario, "agent:view", action.Input{"id": agentID})
	assert.Equal(t, "digester", viewed["agent"].(map[string]any)["name"])

	listed := h.act(t, mario, "agent:list", nil)
	assert.Len(t, listed["agents"], 1)
	listedOther := h.act(t, luigi, "agent:list", nil)
	assert.Empty(t, listedOther["agents"])

	h.act(t, mario, "agent:delete", action.Input{"id": agentID})
	err = h.actErr(t, mario, "agent:view", action.Input{"id": agentID})
	assert.Equal(t, schema.KindNotFound, err.Kind)
}

func TestWorkflowScheduleValidation(t *testing.T) {
	h := newHarness(t)
	mario := h.signup(t, "mario@example.com")

	err := h.actErr(t, mario, "workflow:create", action.Input{
		"name":     "digest",
		"schedule": "every day at noon",
	})
	assert.Equal(t, schema.KindParamValidation, err.Kind)
	assert.Equal(t, "schedule", err.Key)

	created := h.act(t, mario, "workflow:create", action.Input{
		"name":     "digest",
		"schedule": "0 12 * * *",
	})
	wfID := created["workflow"].(map[string]any)["id"].(string)

	// Clearing the schedule with an empty string removes it.
	h.act(t, mario, "workflow:edit", action.Input{"id": wfID, "schedule": ""})
	viewed := h.act(t, mario, "workflow:view", action.Input{"id": wfID})
	wf := viewed["workflow"].(map[string]any)
	_, hasSchedule := wf["schedule"]
	assert.False(t, hasSchedule)
}

func TestWorkflowRunThroughDispatcher(t *testing.T) {
	h := newHarness(t)
	mario := h.signup(t, "mario@example.com")

	agentID := h.act(t, mario, "agent:create", action.Input{
		"name":        "summarizer",
		"model":       "gpt-4o",
		"user_prompt": "Summarize: ${{ input }}",
	})["agent"].(map[string]any)["id"].(string)

	wfID := h.act(t, mario, "workflow:create", action.Input{
		"name":    "digest",
		"enabled": true,
	})["workflow"].(map[string]any)["id"].(string)

	h.act(t, mario, "workflow:step:create", action.Input{
		"workflow_id": wfID,
		"agent_id":    agentID,
		"position":    0,
	})

	runID := h.act(t, mario, "workflow:run:create", action.Input{
		"workflow_id": wfID,
		"input":       "the news",
	})["run"].(map[string]any)["id"].(string)

	// First tick executes the only step; second tick completes the run.
	h.act(t, mario, "workflow:run:tick", action.Input{
		"workflow_id": wfID,
		"run_id":      runID,
	})
	result := h.act(t, mario, "workflow:run:tick", action.Input{
		"workflow_id": wfID,
		"run_id":      runID,
	})

	run := result["run"].(map[string]any)
	assert.Equal(t, string(schema.RunStatusCompleted), run["status"])
	assert.Equal(t, "stub output", run["output"])

	viewed := h.act(t, mario, "workflow:run:view", action.Input{
		"workflow_id": wfID,
		"run_id":      runID,
	})
	steps := viewed["steps"].([]any)
	require.Len(t, steps, 1)
	assert.Equal(t, string(schema.RunStepStatusCompleted), steps[0].(map[string]any)["status"])
}

func TestWorkflowDiagram(t *testing.T) {
	h := newHarness(t)
	mario := h.signup(t, "mario@example.com")

	agentID := h.act(t, mario, "agent:create", action.Input{
		"name":  "summarizer",
		"model": "gpt-4o",
	})["agent"].(map[string]any)["id"].(string)
	wfID := h.act(t, mario, "workflow:create", action.Input{
		"name":    "digest",
		"enabled": true,
	})["workflow"].(map[string]any)["id"].(string)
	h.act(t, mario, "workflow:step:create", action.Input{
		"workflow_id": wfID,
		"agent_id":    agentID,
		"position":    0,
	})

	result := h.act(t, mario, "workflow:diagram", action.Input{"id": wfID})
	assert.Equal(t, "mermaid", result["format"])
	rendered := result["diagram"].(string)
	assert.Contains(t, rendered, "graph TD")
	assert.Contains(t, rendered, "step 0: summarizer")

	// With a run in flight, the overlay marks executed steps.
	runID := h.act(t, mario, "workflow:run:create", action.Input{
		"workflow_id": wfID,
		"input":       "x",
	})["run"].(map[string]any)["id"].(string)
	h.act(t, mario, "workflow:run:tick", action.Input{
		"workflow_id": wfID,
		"run_id":      runID,
	})

	result = h.act(t, mario, "workflow:diagram", action.Input{"id": wfID, "run_id": runID})
	assert.Contains(t, result["diagram"].(string), "completed")
}

func TestRunCreate_DisabledWorkflow(t *testing.T) {
	h := newHarness(t)
	mario := h.signup(t, "mario@example.com")

	wfID := h.act(t, mario, "workflow:create", action.Input{
		"name": "digest",
	})["workflow"].(map[string]any)["id"].(string)

	err := h.actErr(t, mario, "workflow:run:create", action.Input{
		"workflow_id": wfID,
		"input":       "x",
	})
	assert.Equal(t, schema.KindNotEnabled, err.Kind)
	assert.Equal(t, 422, schema.HTTPStatus(err.Kind))
}

func TestRunTick_OtherUsersRunHidden(t *testing.T) {
	h := newHarness(t)
	mario := h.signup(t, "mario@example.com")
	luigi := h.signup(t, "luigi@example.com")

	agentID := h.act(t, mario, "agent:create", action.Input{
		"name":  "summarizer",
		"model": "gpt-4o",
	})["agent"].(map[string]any)["id"].(string)
	wfID := h.act(t, mario, "workflow:create", action.Input{
		"name":    "digest",
		"enabled": true,
	})["workflow"].(map[string]any)["id"].(string)
	h.act(t, mario, "workflow:step:create", action.Input{
		"workflow_id": wfID,
		"agent_id":    agentID,
		"position":    0,
	})
	runID := h.act(t, mario, "workflow:run:create", action.Input{
		"workflow_id": wfID,
		"input":       "x",
	})["run"].(map[string]any)["id"].(string)

	err := h.actErr(t, luigi, "workflow:run:tick", action.Input{
		"workflow_id": wfID,
		"run_id":      runID,
	})
	assert.Equal(t, schema.KindNotFound, err.Kind)
}

func TestStepCreate_RejectsForeignAgent(t *testing.T) {
	h := newHarness(t)
	mario := h.signup(t, "mario@example.com")
	luigi := h.signup(t, "luigi@example.com")

	marioAgent := h.act(t, mario, "agent:create", action.Input{
		"name":  "summarizer",
		"model": "gpt-4o",
	})["agent"].(map[string]any)["id"].(string)

	luigiWf := h.act(t, luigi, "workflow:create", action.Input{
		"name": "heist",
	})["workflow"].(map[string]any)["id"].(string)

	err := h.actErr(t, luigi, "workflow:step:create", action.Input{
		"workflow_id": luigiWf,
		"agent_id":    marioAgent,
		"position":    0,
	})
	assert.Equal(t, schema.KindNotFound, err.Kind)
}

func TestTaskEnqueue(t *testing.T) {
	h := newHarness(t)
	mario := h.signup(t, "mario@example.com")

	err := h.actErr(t, mario, "task:enqueue", action.Input{
		"action": "no:such:action",
	})
	assert.Equal(t, schema.KindActionNotFound, err.Kind)

	h.act(t, mario, "task:enqueue", action.Input{
		"action": "status",
		"params": map[string]any{},
	})

	listed := h.act(t, mario, "task:list", nil)
	jobs := listed["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, "status", jobs[0].(map[string]any)["action"])
}

func TestStatusActionIsPublic(t *testing.T) {
	h := newHarness(t)

	anon := &action.Connection{Kind: "web"}
	result := h.act(t, anon, "status", nil)
	assert.Equal(t, "botholomew", result["name"])
}
