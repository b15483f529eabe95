package action

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

type testAction struct {
	name       string
	schema     json.RawMessage
	middleware []string
	run        func(ctx context.Context, conn *Connection, params Input) (any, error)
}

func (a *testAction) Name() string                 { return a.name }
func (a *testAction) Description() string          { return "test action" }
func (a *testAction) InputSchema() json.RawMessage { return a.schema }
func (a *testAction) Middleware() []string         { return a.middleware }

func (a *testAction) Run(ctx context.Context, conn *Connection, params Input) (any, error) {
	if a.run == nil {
		return map[string]any{"ok": true}, nil
	}
	return a.run(ctx, conn, params)
}

type testMiddleware struct {
	name      string
	beforeErr error
	trace     *[]string
}

func (m *testMiddleware) Name() string { return m.name }

func (m *testMiddleware) Before(ctx context.Context, conn *Connection, params Input) error {
	*m.trace = append(*m.trace, "before:"+m.name)
	return m.beforeErr
}

func (m *testMiddleware) After(ctx context.Context, conn *Connection, result any) error {
	*m.trace = append(*m.trace, "after:"+m.name)
	return nil
}

func newTestDispatcher(t *testing.T, actions ...Action) *Dispatcher {
	t.Helper()
	registry := NewRegistry()
	for _, a := range actions {
		require.NoError(t, registry.Register(a))
	}
	return NewDispatcher(registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func webConn() *Connection {
	return &Connection{Kind: "web"}
}

func TestAct_Success(t *testing.T) {
	d := newTestDispatcher(t, &testAction{name: "greet"})

	env := d.Act(context.Background(), webConn(), "greet", nil)
	require.False(t, env.IsError())
	assert.Equal(t, map[string]any{"ok": true}, env.Response)
	assert.Equal(t, 200, env.Status())
}

func TestAct_UnknownAction(t *testing.T) {
	d := newTestDispatcher(t)

	env := d.Act(context.Background(), webConn(), "nope", nil)
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindActionNotFound, env.Err.Kind)
	assert.Equal(t, 404, env.Status())
}

func TestAct_ValidationRejectsBeforeRun(t *testing.T) {
	ran := false
	a := &testAction{
		name: "strict",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {"count": {"type": "integer"}},
			"required": ["count"]
		}`),
		run: func(ctx context.Context, conn *Connection, params Input) (any, error) {
			ran = true
			return nil, nil
		},
	}
	d := newTestDispatcher(t, a)

	env := d.Act(context.Background(), webConn(), "strict", Input{"count": "three"})
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindParamValidation, env.Err.Kind)
	assert.Equal(t, "count", env.Err.Key)
	assert.Equal(t, "three", env.Err.Value)
	assert.Equal(t, 422, env.Status())
	assert.False(t, ran)

	env = d.Act(context.Background(), webConn(), "strict", Input{"count": 3})
	assert.False(t, env.IsError())
	assert.True(t, ran)
}

func TestAct_MiddlewareOrderAndShortCircuit(t *testing.T) {
	trace := []string{}
	registry := NewRegistry()
	registry.RegisterMiddleware(&testMiddleware{name: "first", trace: &trace})
	registry.RegisterMiddleware(&testMiddleware{name: "second", trace: &trace})
	require.NoError(t, registry.Register(&testAction{
		name:       "guarded",
		middleware: []string{"first", "second"},
		run: func(ctx context.Context, conn *Connection, params Input) (any, error) {
			trace = append(trace, "run")
			return "done", nil
		},
	}))
	d := NewDispatcher(registry, slog.New(slog.NewTextHandler(io.Discard, nil)))

	env := d.Act(context.Background(), webConn(), "guarded", nil)
	require.False(t, env.IsError())
	assert.Equal(t, []string{"before:first", "before:second", "run", "after:second", "after:first"}, trace)

	// A failing before-hook stops the chain: no run, no after-hooks.
	trace = []string{}
	registry2 := NewRegistry()
	registry2.RegisterMiddleware(&testMiddleware{name: "first", trace: &trace})
	registry2.RegisterMiddleware(&testMiddleware{
		name:      "second",
		trace:     &trace,
		beforeErr: schema.NewError(schema.KindSessionNotFound, "no session"),
	})
	require.NoError(t, registry2.Register(&testAction{
		name:       "guarded",
		middleware: []string{"first", "second"},
		run: func(ctx context.Context, conn *Connection, params Input) (any, error) {
			trace = append(trace, "run")
			return nil, nil
		},
	}))
	d2 := NewDispatcher(registry2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	env = d2.Act(context.Background(), webConn(), "guarded", nil)
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindSessionNotFound, env.Err.Kind)
	assert.Equal(t, 401, env.Status())
	assert.Equal(t, []string{"before:first", "before:second"}, trace)
}

func TestActSystem_SkipsMiddleware(t *testing.T) {
	trace := []string{}
	registry := NewRegistry()
	registry.RegisterMiddleware(&testMiddleware{
		name:      "auth",
		trace:     &trace,
		beforeErr: schema.NewError(schema.KindSessionNotFound, "no session"),
	})

	var seen *Connection
	require.NoError(t, registry.Register(&testAction{
		name:       "guarded",
		middleware: []string{"auth"},
		run: func(ctx context.Context, conn *Connection, params Input) (any, error) {
			seen = conn
			return "ran", nil
		},
	}))
	d := NewDispatcher(registry, slog.New(slog.NewTextHandler(io.Discard, nil)))

	env := d.ActSystem(context.Background(), "guarded", nil)
	require.False(t, env.IsError())
	assert.Equal(t, "ran", env.Response)
	assert.Empty(t, trace)
	require.NotNil(t, seen)
	assert.Equal(t, "task", seen.Kind)
}

func TestAct_UnresolvableMiddleware(t *testing.T) {
	d := newTestDispatcher(t, &testAction{name: "broken", middleware: []string{"ghost"}})

	env := d.Act(context.Background(), webConn(), "broken", nil)
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindServerError, env.Err.Kind)
}

func TestAct_UntypedErrorBecomesServerError(t *testing.T) {
	d := newTestDispatcher(t, &testAction{
		name: "explode",
		run: func(ctx context.Context, conn *Connection, params Input) (any, error) {
			return nil, errors.New("disk melted")
		},
	})

	env := d.Act(context.Background(), webConn(), "explode", nil)
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindServerError, env.Err.Kind)
	assert.Equal(t, "disk melted", env.Err.Message)
	assert.NotEmpty(t, env.Err.Stack)
	assert.Equal(t, 500, env.Status())
}

func TestAct_TypedErrorPassesThrough(t *testing.T) {
	d := newTestDispatcher(t, &testAction{
		name: "missing",
		run: func(ctx context.Context, conn *Connection, params Input) (any, error) {
			return nil, schema.NewError(schema.KindNotFound, "agent not found").WithKey("agent_id", "a1")
		},
	})

	env := d.Act(context.Background(), webConn(), "missing", nil)
	require.True(t, env.IsError())
	assert.Equal(t, schema.KindNotFound, env.Err.Kind)
	assert.Equal(t, "agent_id", env.Err.Key)
	assert.Equal(t, "a1", env.Err.Value)
	assert.Empty(t, env.Err.Stack)
}

func TestRegistry_DuplicateName(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&testAction{name: "dup"}))

	err := registry.Register(&testAction{name: "dup"})
	require.Error(t, err)
	assert.True(t, schema.IsKind(err, schema.KindConflict))
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, registry.Register(&testAction{name: name}))
	}

	var names []string
	for _, a := range registry.List() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}
