package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldsync/internal/feed"
)

const (
	testTeamID = int64(7)
	testUserID = "user-1"
)

func testDispatcher(t *testing.T, assigned ...string) *Dispatcher {
	t.Helper()

	set := make(map[string]bool, len(assigned))
	for _, id := range assigned {
		set[id] = true
	}

	return NewDispatcher(testTeamID, testUserID, func(id string) bool { return set[id] }, testLogger(t))
}

func incidentEvent(action feed.EventAction, newRow, oldRow map[string]any) *feed.Event {
	ev := &feed.Event{Table: tableIncidents, Action: action}

	if newRow != nil {
		b, _ := json.Marshal(newRow)
		ev.New = b
	}

	if oldRow != nil {
		b, _ := json.Marshal(oldRow)
		ev.Old = b
	}

	return ev
}

func TestHandleUnknownTableIgnored(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t)

	res := d.Handle(&feed.Event{Table: "hospitals", Action: feed.ActionUpdate})
	assert.Equal(t, OutcomeIgnore, res.Outcome)
}

func TestHandleIrrelevantIncidentIgnored(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t)

	res := d.Handle(incidentEvent(feed.ActionUpdate,
		map[string]any{"id": "inc-x", "er_team_id": 99},
		map[string]any{"id": "inc-x", "er_team_id": 99},
	))

	assert.Equal(t, OutcomeIgnore, res.Outcome)
}

func TestHandleNewAssignmentNotifies(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t)

	res := d.Handle(incidentEvent(feed.ActionUpdate,
		map[string]any{
			"id":               "inc-1",
			"er_team_id":       testTeamID,
			"emergency_type":   "fire",
			"firstName":        "Jo",
			"lastName":         "Cruz",
			"location_address": "45 Mabini St",
			"created_at":       "2026-08-20T08:30:00Z",
		},
		map[string]any{"id": "inc-1"},
	))

	require.Equal(t, OutcomeNotify, res.Outcome)
	require.NotNil(t, res.Notification)
	assert.Equal(t, EventAssignment, res.Notification.Event)
	assert.Equal(t, "inc-1", res.Notification.EmergencyReportID)
	assert.Equal(t, "Jo Cruz", res.Notification.ReporterName)
	assert.Equal(t, "fire", res.Notification.IncidentType)
}

func TestHandleInsertAssignedNotifies(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t)

	res := d.Handle(incidentEvent(feed.ActionInsert,
		map[string]any{"id": "inc-2", "er_team_id": testTeamID},
		nil,
	))

	require.Equal(t, OutcomeNotify, res.Outcome)
	assert.Equal(t, EventAssignment, res.Notification.Event)
}

func TestHandleNewlyRespondedNotifies(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t)

	res := d.Handle(incidentEvent(feed.ActionUpdate,
		map[string]any{
			"id":           "inc-1",
			"er_team_id":   testTeamID,
			"status":       "responded",
			"responded_at": "2026-08-20T09:00:00Z",
		},
		map[string]any{"id": "inc-1", "er_team_id": testTeamID, "status": "active"},
	))

	require.Equal(t, OutcomeNotify, res.Outcome)
	assert.Equal(t, EventStatusChange, res.Notification.Event)
	assert.Equal(t, "2026-08-20T09:00:00Z", res.Notification.RespondedAt)
}

func TestHandleResolvedTransitionAlwaysSuppressed(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t)

	// Resolved transition with a concurrent responded change in the same
	// row image; the notification is still suppressed.
	res := d.Handle(incidentEvent(feed.ActionUpdate,
		map[string]any{
			"id":           "inc-1",
			"er_team_id":   testTeamID,
			"responded_at": "2026-08-20T09:00:00Z",
			"resolved_at":  "2026-08-20T09:30:00Z",
		},
		map[string]any{"id": "inc-1", "er_team_id": testTeamID},
	))

	assert.Equal(t, OutcomeRefresh, res.Outcome)
	assert.Nil(t, res.Notification)
}

func TestHandleAlreadyRespondedDoesNotRenotify(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t)

	res := d.Handle(incidentEvent(feed.ActionUpdate,
		map[string]any{
			"id":           "inc-1",
			"er_team_id":   testTeamID,
			"responded_at": "2026-08-20T09:00:00Z",
		},
		map[string]any{
			"id":           "inc-1",
			"er_team_id":   testTeamID,
			"responded_at": "2026-08-20T09:00:00Z",
		},
	))

	assert.Equal(t, OutcomeRefresh, res.Outcome)
}

func TestHandleDeleteOfAssignedIncidentRefreshes(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t, "inc-1")

	res := d.Handle(incidentEvent(feed.ActionDelete,
		nil,
		map[string]any{"id": "inc-1"},
	))

	assert.Equal(t, OutcomeRefresh, res.Outcome)
}

func TestHandleTeamReportRelevance(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t, "inc-known")

	report := func(row map[string]any) *feed.Event {
		b, _ := json.Marshal(row)
		return &feed.Event{Table: tableTeamReports, Action: feed.ActionUpdate, New: b}
	}

	// Own submission.
	res := d.Handle(report(map[string]any{"id": "r-1", "user_id": testUserID}))
	assert.Equal(t, OutcomeRefresh, res.Outcome)

	// Linked to a known assigned incident.
	res = d.Handle(report(map[string]any{"id": "r-2", "emergency_report_id": "inc-known"}))
	assert.Equal(t, OutcomeRefresh, res.Outcome)

	// Someone else's report on a foreign incident.
	res = d.Handle(report(map[string]any{"id": "r-3", "user_id": "stranger", "emergency_report_id": "inc-x"}))
	assert.Equal(t, OutcomeIgnore, res.Outcome)
}

func TestHandleInternalReportRelevance(t *testing.T) {
	t.Parallel()

	d := testDispatcher(t, "inc-known")

	ev := func(incidentID string) *feed.Event {
		b, _ := json.Marshal(map[string]any{"emergency_report_id": incidentID})
		return &feed.Event{Table: tableInternalReports, Action: feed.ActionInsert, New: b}
	}

	assert.Equal(t, OutcomeRefresh, d.Handle(ev("inc-known")).Outcome)
	assert.Equal(t, OutcomeIgnore, d.Handle(ev("inc-other")).Outcome)
}
