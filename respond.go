package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRespondCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "respond <incident-id>",
		Short: "Mark an incident as responded",
		Long: `Report the team on scene: transitions the incident to responded (or
resolved, when already responded). Duplicate reports of the same event are
consolidated afterward, and their reporters notified.`,
		Args: cobra.ExactArgs(1),
		RunE: runRespond,
	}
}

func runRespond(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	eng, _, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Seed the assigned set so the incident's coordinates are known for
	// duplicate consolidation.
	if _, err := eng.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("refreshing before respond: %w", err)
	}

	result, err := eng.Respond(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("responding to incident %s: %w", args[0], err)
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	statusf("Incident %s is now %s.\n", args[0], result.Status)

	return nil
}
