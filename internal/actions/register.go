package actions

import (
	"time"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/orchestrator"
	"github.com/evantahler/botholomew-sub001/internal/queue"
	"github.com/evantahler/botholomew-sub001/internal/store"
)

// Deps carries everything the action set needs, constructed once at startup
// and threaded through explicitly.
type Deps struct {
	Store             store.Store
	Queue             *queue.Queue
	Processor         *orchestrator.Processor
	Scheduler         *orchestrator.Scheduler
	Ticker            *orchestrator.Ticker
	SessionTTL        time.Duration
	SchedulerInterval time.Duration
	TickerInterval    time.Duration
}

// RegisterAll registers the auth middleware and every built-in action.
func RegisterAll(registry *action.Registry, deps Deps) error {
	if err := registry.RegisterMiddleware(NewAuthMiddleware(deps.Store)); err != nil {
		return err
	}

	all := []action.Action{
		NewStatusAction(),
		NewUserCreateAction(deps.Store),
		NewSessionCreateAction(deps.Store, deps.SessionTTL),
		NewSessionDestroyAction(deps.Store),
		NewAgentCreateAction(deps.Store),
		NewAgentEditAction(deps.Store),
		NewAgentListAction(deps.Store),
		NewAgentViewAction(deps.Store),
		NewAgentDeleteAction(deps.Store),
		NewWorkflowCreateAction(deps.Store),
		NewWorkflowEditAction(deps.Store),
		NewWorkflowListAction(deps.Store),
		NewWorkflowViewAction(deps.Store),
		NewWorkflowDeleteAction(deps.Store),
		NewWorkflowDiagramAction(deps.Store),
		NewStepCreateAction(deps.Store),
		NewStepEditAction(deps.Store),
		NewStepListAction(deps.Store),
		NewStepDeleteAction(deps.Store),
		NewRunCreateAction(deps.Store),
		NewRunListAction(deps.Store),
		NewRunViewAction(deps.Store),
		NewRunTickAction(deps.Processor),
		NewTaskEnqueueAction(deps.Queue, registry),
		NewTaskListAction(deps.Queue),
		NewScheduleAction(deps.Scheduler, deps.SchedulerInterval),
		NewEnqueueTicksAction(deps.Ticker, deps.TickerInterval),
	}

	for _, a := range all {
		if err := registry.Register(a); err != nil {
			return err
		}
	}
	return nil
}
