package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch assigned incidents and reconcile drafts",
		Long: `Fetch the team's current assigned-incident list and reconcile the local
draft repository against it: a draft is created for every newly assigned
incident, local edits are kept over server baselines, and drafts for
incidents no longer assigned are dropped.`,
		RunE: runRefresh,
	}
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	eng, _, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	drafts, err := eng.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("refreshing: %w", err)
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(drafts)
	}

	incidents := eng.Assigned()

	statusf("%d incident(s) assigned, %d draft(s) reconciled.\n", len(incidents), len(drafts))

	rows := make([][]string, 0, len(incidents))
	for i := range incidents {
		in := &incidents[i]
		rows = append(rows, []string{
			in.ID,
			in.Status,
			in.EmergencyType,
			truncate(in.LocationAddress, 40),
		})
	}

	printTable(os.Stdout, []string{"INCIDENT", "STATUS", "TYPE", "LOCATION"}, rows)

	return nil
}
