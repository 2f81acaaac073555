package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show dispatch alerts collected by the watcher",
		Long: `List the dispatch alerts raised during a watch session, newest first.
The list is bounded; older alerts fall off. Alerts stay marked unread
until acknowledged with "alerts ack".

Alerts live in memory for the duration of a watch session and are not
persisted; run outside a watch session this list is empty.`,
		RunE: runAlerts,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ack",
		Short: "Acknowledge (mark read) all alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			eng, _, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			eng.AcknowledgeNotifications()
			statusf("Alerts acknowledged.\n")

			return nil
		},
	})

	return cmd
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	eng, _, err := buildEngine(logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	alerts := eng.Notifications()

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(alerts)
	}

	rows := make([][]string, 0, len(alerts))
	for i := range alerts {
		a := &alerts[i]
		rows = append(rows, []string{
			formatTime(a.CreatedAt),
			string(a.Event),
			a.EmergencyReportID,
			a.IncidentType,
			truncate(a.LocationAddress, 40),
		})
	}

	printTable(os.Stdout, []string{"WHEN", "EVENT", "INCIDENT", "TYPE", "LOCATION"}, rows)

	return nil
}
