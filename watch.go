package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fieldops/fieldsync/internal/config"
	"github.com/fieldops/fieldsync/internal/feed"
)

// watchPIDFileName guards against two watchers fighting over one draft
// database.
const watchPIDFileName = "watch.pid"

// eventBufferSize absorbs change-feed bursts while a refresh is running.
const eventBufferSize = 64

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the change feed and keep drafts reconciled",
		Long: `Subscribe to the incident store's change feed and run continuously:
relevant changes trigger a debounced refresh of the assigned-incident list,
and new assignments raise dispatch alerts. Only one watcher may run per
draft database.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	pidPath := filepath.Join(config.DefaultDataDir(), watchPIDFileName)

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	eng, _, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := shutdownContext(cmd.Context(), logger)

	// Initial refresh so relevance checks start from a known assigned set.
	if _, err := eng.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed; continuing with local state", "error", err)
	}

	stream := feed.NewStream(
		resolvedCfg.API.StreamURL,
		feed.StaticToken(resolvedCfg.API.Token),
		[]feed.TableFilter{
			{Table: "emergency_reports"},
			{Table: "er_team_reports"},
			{Table: "internal_reports"},
		},
		logger,
	)

	events := make(chan feed.Event, eventBufferSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(events)
		return stream.Watch(gctx, events)
	})

	g.Go(func() error {
		return eng.Run(gctx, events)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		statusf("Shut down cleanly.\n")
		return nil
	}

	return err
}
