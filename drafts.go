package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List locally stored report drafts",
		RunE:  runDrafts,
	}

	cmd.AddCommand(newDraftShowCmd())

	return cmd
}

func runDrafts(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	eng, _, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	drafts, err := eng.Drafts(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing drafts: %w", err)
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(drafts)
	}

	rows := make([][]string, 0, len(drafts))
	for i := range drafts {
		d := &drafts[i]

		syncState := "unsynced"
		if d.Synced {
			syncState = "synced"
		}

		if d.LastSyncError != "" {
			syncState = "error"
		}

		rows = append(rows, []string{
			d.ClientDraftID,
			d.EmergencyReportID,
			string(d.Status),
			syncState,
			truncate(d.LastSyncError, 48),
		})
	}

	printTable(os.Stdout, []string{"DRAFT", "INCIDENT", "STATUS", "SYNC", "LAST ERROR"}, rows)

	return nil
}

func newDraftShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <draft-id>",
		Short: "Print one draft in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			eng, _, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			draft, err := eng.Draft(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			return enc.Encode(draft)
		},
	}
}
