package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/mapviz/internal/adapter/http"
	"github.com/couchcryptid/mapviz/internal/domain"
	"github.com/couchcryptid/mapviz/internal/scheduler"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the map routes and run pipelines on their schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := scheduler.New(a.catalog, a.runner, clockwork.NewRealClock(), a.logger)
	if err != nil {
		return err
	}

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:     a.cfg.HTTPAddr,
		Ready:    historyReadiness{runner: a.runner, history: a.history},
		Maps:     a.runner,
		History:  a.history,
		Schedule: sched,
		Logger:   a.logger,
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Every map is created once at startup; the schedule takes over from there.
	startup := make(chan struct{})
	if a.cfg.RunOnStart {
		go func() {
			defer close(startup)
			if err := a.runner.RunAll(ctx, domain.TriggerStartup); err != nil {
				a.logger.Error("startup run incomplete", "error", err)
			}
		}()
	} else {
		close(startup)
	}
	sched.Start(ctx)

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		a.logger.Error("http server error", "error", err)
	}
	stop()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	for _, done := range []<-chan struct{}{sched.Stop().Done(), startup} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			a.logger.Warn("runs still in progress at shutdown")
		}
	}

	a.logger.Info("shutdown complete")
	return err
}
