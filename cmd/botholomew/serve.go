package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evantahler/botholomew-sub001/internal/queue"
	"github.com/evantahler/botholomew-sub001/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server: HTTP + websocket, queue workers, scheduler, and ticker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.store.Migrate(ctx); err != nil {
				return err
			}

			workers := queue.NewWorkers(a.queue, a.dispatcher, a.cfg.Workers.Queues, a.cfg.Workers.Count, a.logger)
			if err := workers.Start(ctx); err != nil {
				return err
			}

			periodic := queue.NewPeriodicEnqueuer(a.queue, a.registry, a.logger)
			if err := periodic.Start(ctx); err != nil {
				return err
			}

			srv := server.New(a.dispatcher, a.hub, server.Options{
				Addr:        a.cfg.Server.Addr,
				APIPrefix:   a.cfg.Server.APIPrefix,
				CookieName:  a.cfg.Server.CookieName,
				CORSOrigins: a.cfg.Server.CORSOrigins,
			}, a.logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			if err := srv.Shutdown(context.Background()); err != nil {
				a.logger.Error("http shutdown failed", slog.String("error", err.Error()))
			}
			if err := periodic.Stop(); err != nil {
				a.logger.Error("periodic stop failed", slog.String("error", err.Error()))
			}
			if err := workers.Stop(); err != nil {
				a.logger.Error("workers stop failed", slog.String("error", err.Error()))
			}
			return nil
		},
	}
}
