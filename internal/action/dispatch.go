package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/evantahler/botholomew-sub001/internal/logging"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// Dispatcher runs actions through the full pipeline: resolve, middleware
// before-hooks, param validation, Run, middleware after-hooks. Every outcome
// is folded into an Envelope; transports never see raw errors.
type Dispatcher struct {
	registry  *Registry
	validator *Validator
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		validator: NewValidator(),
		logger:    logger,
	}
}

// Registry returns the underlying action registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Act executes the named action for the given connection and returns an
// envelope. Middleware before-hooks run in declared order and short-circuit
// execution on error; after-hooks run in reverse order, best effort.
func (d *Dispatcher) Act(ctx context.Context, conn *Connection, name string, params Input) *schema.Envelope {
	return d.act(ctx, conn, name, params, true)
}

// ActSystem executes an action with a system connection and no middleware.
// Queue workers use this: authorization already happened at enqueue time.
func (d *Dispatcher) ActSystem(ctx context.Context, name string, params Input) *schema.Envelope {
	return d.act(ctx, System(), name, params, false)
}

func (d *Dispatcher) act(ctx context.Context, conn *Connection, name string, params Input, withMiddleware bool) *schema.Envelope {
	ctx = logging.WithAction(ctx, name)
	if conn != nil && conn.SessionID != "" {
		ctx = logging.WithSessionID(ctx, conn.SessionID)
	}
	start := time.Now()

	result, err := d.run(ctx, conn, name, params, withMiddleware)

	env := schema.OK(result)
	if err != nil {
		env = schema.Fail(err)
	}

	if env.IsError() {
		d.logger.WarnContext(ctx, "action failed",
			slog.String("connection", conn.Kind),
			slog.String("error_kind", env.Err.Kind),
			slog.String("error", env.Err.Message),
			slog.Duration("duration", time.Since(start)))
	} else {
		d.logger.InfoContext(ctx, "action completed",
			slog.String("connection", conn.Kind),
			slog.Duration("duration", time.Since(start)))
	}
	return env
}

func (d *Dispatcher) run(ctx context.Context, conn *Connection, name string, params Input, withMiddleware bool) (any, error) {
	a, err := d.registry.Get(name)
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = Input{}
	}

	var chain []Middleware
	if withMiddleware {
		chain, err = d.registry.MiddlewareChain(a)
		if err != nil {
			return nil, err
		}
		for _, m := range chain {
			if err := m.Before(ctx, conn, params); err != nil {
				return nil, err
			}
		}
	}

	if err := d.validator.Validate(a, params); err != nil {
		return nil, err
	}

	result, err := a.Run(ctx, conn, params)
	if err != nil {
		return nil, err
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if aerr := chain[i].After(ctx, conn, result); aerr != nil {
			d.logger.WarnContext(ctx, "middleware after-hook failed",
				slog.String("middleware", chain[i].Name()),
				slog.String("error", aerr.Error()))
		}
	}

	return result, nil
}
