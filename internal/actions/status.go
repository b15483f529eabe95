package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/evantahler/botholomew-sub001/internal/action"
)

var processStart = time.Now()

// StatusAction reports server name, uptime, and build identity.
type StatusAction struct{}

// NewStatusAction creates the status action.
func NewStatusAction() *StatusAction { return &StatusAction{} }

func (a *StatusAction) Name() string        { return "status" }
func (a *StatusAction) Description() string { return "Report server name and uptime." }

func (a *StatusAction) InputSchema() json.RawMessage { return nil }
func (a *StatusAction) Middleware() []string         { return nil }

func (a *StatusAction) Route() action.Route {
	return action.Route{Method: http.MethodGet, Path: "/status"}
}

func (a *StatusAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	return map[string]any{
		"name":   "botholomew",
		"uptime": time.Since(processStart).Round(time.Second).String(),
		"now":    time.Now().UTC(),
	}, nil
}
