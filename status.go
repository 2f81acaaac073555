package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldops/fieldsync/internal/engine"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, connectivity, and draft repository state",
		RunE:  runStatus,
	}
}

// statusReport is the JSON shape for `status --json`.
type statusReport struct {
	APIBaseURL     string `json:"api_base_url"`
	TeamID         int64  `json:"team_id"`
	DBPath         string `json:"db_path"`
	Online         bool   `json:"online"`
	Drafts         int    `json:"drafts"`
	UnsyncedDrafts int    `json:"unsynced_drafts"`
	SyncErrors     int    `json:"sync_errors"`
	UnreadAlerts   bool   `json:"unread_alerts"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	eng, _, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	drafts, err := eng.Drafts(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading drafts: %w", err)
	}

	rep := statusReport{
		APIBaseURL:   resolvedCfg.API.BaseURL,
		TeamID:       resolvedCfg.Session.TeamID,
		DBPath:       resolvedCfg.Storage.DBPath,
		Online:       engine.ProbeConnectivity(resolvedCfg.API.BaseURL).Online(),
		Drafts:       len(drafts),
		UnreadAlerts: eng.UnreadNotifications(),
	}

	for i := range drafts {
		if !drafts[i].Synced {
			rep.UnsyncedDrafts++
		}

		if drafts[i].LastSyncError != "" {
			rep.SyncErrors++
		}
	}

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(rep)
	}

	link := "offline"
	if rep.Online {
		link = "online"
	}

	fmt.Printf("Incident store:  %s (%s)\n", rep.APIBaseURL, link)
	fmt.Printf("Team:            %d\n", rep.TeamID)
	fmt.Printf("Draft database:  %s\n", rep.DBPath)
	fmt.Printf("Drafts:          %d (%d unsynced, %d with sync errors)\n",
		rep.Drafts, rep.UnsyncedDrafts, rep.SyncErrors)

	return nil
}
