package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/actions"
	"github.com/evantahler/botholomew-sub001/internal/agents"
	"github.com/evantahler/botholomew-sub001/internal/config"
	"github.com/evantahler/botholomew-sub001/internal/logging"
	"github.com/evantahler/botholomew-sub001/internal/orchestrator"
	"github.com/evantahler/botholomew-sub001/internal/queue"
	"github.com/evantahler/botholomew-sub001/internal/realtime"
	"github.com/evantahler/botholomew-sub001/internal/store"
)

// app is the assembled application: one store, one registry, one dispatcher,
// constructed once and threaded through explicitly.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      store.Store
	registry   *action.Registry
	dispatcher *action.Dispatcher
	queue      *queue.Queue
	hub        *realtime.MemoryHub
	processor  *orchestrator.Processor
	scheduler  *orchestrator.Scheduler
	ticker     *orchestrator.Ticker
}

// buildApp loads config, opens the store, and registers every action.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Log.Level)

	st, err := store.NewLibSQLStore(cfg.DB.Path)
	if err != nil {
		return nil, err
	}

	registry := action.NewRegistry()
	dispatcher := action.NewDispatcher(registry, logger)
	q := queue.New(st)

	hub := realtime.NewMemoryHub()

	var runner agents.Runner = agents.NewHTTPRunner(cfg.Agents.RunnerURL)
	runner = agents.NewRetryingRunner(runner, cfg.Agents.RetryAttempts, cfg.Agents.RetryDelay)
	processor := orchestrator.NewProcessor(st, runner, hub, logger)
	scheduler := orchestrator.NewScheduler(st, cfg.Scheduler.Interval, logger)
	ticker := orchestrator.NewTicker(st, q, logger)

	deps := actions.Deps{
		Store:             st,
		Queue:             q,
		Processor:         processor,
		Scheduler:         scheduler,
		Ticker:            ticker,
		SessionTTL:        cfg.Session.TTL,
		SchedulerInterval: cfg.Scheduler.Interval,
		TickerInterval:    cfg.Ticker.Interval,
	}
	if err := actions.RegisterAll(registry, deps); err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		registry:   registry,
		dispatcher: dispatcher,
		queue:      q,
		hub:        hub,
		processor:  processor,
		scheduler:  scheduler,
		ticker:     ticker,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", slog.String("error", err.Error()))
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "botholomew",
		Short:         "Agent workflow server",
		Long:          "Botholomew schedules, queues, and executes agent workflows, and exposes every action over HTTP, websocket, MCP, and this CLI.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand(a))
	root.AddCommand(newMigrateCommand(a))
	root.AddCommand(newMCPCommand(a))
	addActionCommands(root, a)

	return root
}
