package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/mapviz/internal/domain"
)

func newRunCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "run [pipeline...]",
		Short: "Refresh and render pipelines once, then exit",
		Example: `  mapviz run covid
  mapviz run --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("name one or more pipelines or pass --all")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if all {
				args = a.catalog.Names()
			}
			return a.runOnce(ctx, cmd, args)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "run every pipeline in the catalog")
	return cmd
}

func (a *app) runOnce(ctx context.Context, cmd *cobra.Command, names []string) error {
	var errs []error
	for _, name := range names {
		run, err := a.runner.Run(ctx, name, domain.TriggerManual)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d items\t%d unmatched\t%s\t%s\n",
			run.Pipeline, run.Status, run.Items, run.Unmatched,
			run.Duration().Round(time.Millisecond), run.Artifact)
	}
	return errors.Join(errs...)
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <pipeline>",
		Short: "Fetch the newest dataset of a pipeline without rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			snap, err := a.runner.Refresh(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\t%d bytes\n", snap.Path, snap.Bytes)
			if !snap.From.IsZero() {
				fmt.Fprintf(out, "window\t%s .. %s\n", snap.From.Format(time.DateOnly), snap.To.Format(time.DateOnly))
			}
			for _, removed := range snap.Removed {
				fmt.Fprintf(out, "removed\t%s\n", removed)
			}
			return nil
		},
	}
}

func newCatalogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the effective pipeline catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.catalog.Dump(cmd.OutOrStdout())
		},
	}
}
