package action

import (
	"context"
	"encoding/json"
	"time"
)

// Action is a named, schema-validated unit of business logic invocable from
// any transport.
type Action interface {
	Name() string
	Description() string

	// InputSchema returns the JSON Schema for the action's params.
	// Nil means the action takes no params.
	InputSchema() json.RawMessage

	// Middleware returns the names of middleware wrapping this action,
	// in execution order. Nil means no middleware.
	Middleware() []string

	Run(ctx context.Context, conn *Connection, params Input) (any, error)
}

// Input is the raw parameter set for one invocation, merged from the
// transport layers before validation.
type Input map[string]any

// Route is an HTTP binding for an action.
type Route struct {
	Method string
	Path   string
}

// Routed is implemented by actions reachable over HTTP.
type Routed interface {
	Route() Route
}

// Periodic is implemented by actions that run on a fixed interval. The
// server enqueues them onto the named queue every Frequency.
type Periodic interface {
	Frequency() time.Duration
	Queue() string
}

// Middleware wraps action execution with pre/post hooks. Before hooks run in
// declared order and short-circuit on error; After hooks run in reverse
// order, best effort.
type Middleware interface {
	Name() string
	Before(ctx context.Context, conn *Connection, params Input) error
	After(ctx context.Context, conn *Connection, result any) error
}

// Connection is a transport-neutral execution context for one action
// invocation: who is calling, over what, and with which session.
type Connection struct {
	Kind       string // "web", "websocket", "cli", "task", "mcp"
	SessionID  string
	UserID     string
	RemoteAddr string
}

// System returns a connection for queue workers and other internal callers.
// Authorization happened at enqueue time, or the work is system-level.
func System() *Connection {
	return &Connection{Kind: "task"}
}

// String extracts one param as text. Non-string values come back
// JSON-encoded; a missing key is the empty string.
func (in Input) String(key string) string {
	v, ok := in[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Int extracts an integer param, accepting float64 (JSON numbers) and int.
func (in Input) Int(key string) int {
	switch v := in[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Bool extracts a boolean param.
func (in Input) Bool(key string) bool {
	v, _ := in[key].(bool)
	return v
}
