package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [draft-id]",
		Short: "Submit drafts to the incident store",
		Long: `Submit report drafts to the incident store. With no argument, every
unsynced draft is submitted. Failures are recorded per draft and do not
stop the batch; re-run sync to retry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	eng, _, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()

	if len(args) == 1 {
		draft, err := eng.Draft(ctx, args[0])
		if err != nil {
			return err
		}

		result := eng.Sync(ctx, draft)

		if flagJSON {
			return json.NewEncoder(os.Stdout).Encode(result)
		}

		if result.LastSyncError != "" {
			return fmt.Errorf("draft %s: %s", result.ClientDraftID, result.LastSyncError)
		}

		statusf("Draft %s submitted.\n", result.ClientDraftID)

		return nil
	}

	results, err := eng.SyncAll(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	var failed int

	for i := range results {
		d := &results[i]
		if d.LastSyncError != "" {
			failed++

			fmt.Fprintf(os.Stderr, "draft %s: %s\n", d.ClientDraftID, d.LastSyncError)
		}
	}

	statusf("%d draft(s) processed, %d failed.\n", len(results), failed)

	if failed > 0 {
		return fmt.Errorf("%d draft(s) failed to sync", failed)
	}

	return nil
}
