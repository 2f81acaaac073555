package engine

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/fieldsync/internal/feed"
)

// Change-feed tables the dispatcher understands.
const (
	tableIncidents       = "emergency_reports"
	tableTeamReports     = "er_team_reports"
	tableInternalReports = "internal_reports"
)

// DispatchOutcome is what a change-feed event demands of the subscriber.
type DispatchOutcome int

// Dispatch outcomes, in increasing order of effect. A Notify also implies
// a refresh.
const (
	OutcomeIgnore DispatchOutcome = iota
	OutcomeRefresh
	OutcomeNotify
)

// DispatchResult pairs an outcome with the notification to emit, set only
// for OutcomeNotify.
type DispatchResult struct {
	Outcome      DispatchOutcome
	Notification *DispatchNotification
}

var resultIgnore = DispatchResult{Outcome: OutcomeIgnore}
var resultRefresh = DispatchResult{Outcome: OutcomeRefresh}

// eventHandler interprets one table's change events.
type eventHandler func(ev *feed.Event) DispatchResult

// Dispatcher classifies change-feed events for one team session: is the
// event relevant, does it warrant a refresh, and does it warrant a
// dispatch notification. It never applies events as deltas; server-side
// effects are only observable through a full refetch.
type Dispatcher struct {
	teamID   int64
	userID   string
	assigned func(incidentID string) bool
	logger   *slog.Logger
	nowFunc  func() time.Time

	handlers map[string]eventHandler
}

// NewDispatcher builds a dispatcher for the given team and user. assigned
// reports whether an incident id is in the session's current assigned set.
func NewDispatcher(teamID int64, userID string, assigned func(incidentID string) bool, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		teamID:   teamID,
		userID:   userID,
		assigned: assigned,
		logger:   logger,
		nowFunc:  time.Now,
	}

	d.handlers = map[string]eventHandler{
		tableIncidents:       d.handleIncident,
		tableTeamReports:     d.handleTeamReport,
		tableInternalReports: d.handleInternalReport,
	}

	return d
}

// Handle classifies one event. Unknown tables and irrelevant rows are
// ignored with no side effects.
func (d *Dispatcher) Handle(ev *feed.Event) DispatchResult {
	h, ok := d.handlers[ev.Table]
	if !ok {
		d.logger.Debug("ignoring event for unknown table", slog.String("table", ev.Table))
		return resultIgnore
	}

	return h(ev)
}

// incidentRow is the subset of an emergency_reports row the dispatcher
// reads.
type incidentRow struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	ErTeamID        *int64   `json:"er_team_id"`
	EmergencyType   string   `json:"emergency_type"`
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	LocationAddress string   `json:"location_address"`
	CreatedAt       string   `json:"created_at"`
	RespondedAt     *string  `json:"responded_at"`
	ResolvedAt      *string  `json:"resolved_at"`
}

func (r *incidentRow) assignedTo(teamID int64) bool {
	return r.ErTeamID != nil && *r.ErTeamID == teamID
}

func (r *incidentRow) reporterName() string {
	switch {
	case r.FirstName != "" && r.LastName != "":
		return r.FirstName + " " + r.LastName
	case r.FirstName != "":
		return r.FirstName
	default:
		return r.LastName
	}
}

// handleIncident interprets emergency_reports changes. A row is relevant
// when it is (or was) assigned to the subscriber's team or already in the
// known assigned set. A new assignment notifies; a responded transition
// with resolved still null notifies; a resolved transition is always
// suppressed and only refreshes.
func (d *Dispatcher) handleIncident(ev *feed.Event) DispatchResult {
	var newRow, oldRow incidentRow

	if len(ev.New) > 0 {
		if err := json.Unmarshal(ev.New, &newRow); err != nil {
			d.logger.Debug("unreadable incident row in event", slog.Any("error", err))
			return resultIgnore
		}
	}

	if len(ev.Old) > 0 {
		if err := json.Unmarshal(ev.Old, &oldRow); err != nil {
			d.logger.Debug("unreadable old incident row in event", slog.Any("error", err))
		}
	}

	if ev.Action == feed.ActionDelete {
		// Only the old image exists. Relevant when the row left our set.
		if oldRow.assignedTo(d.teamID) || d.assigned(oldRow.ID) {
			return resultRefresh
		}

		return resultIgnore
	}

	relevant := newRow.assignedTo(d.teamID) ||
		oldRow.assignedTo(d.teamID) ||
		d.assigned(newRow.ID)
	if !relevant {
		return resultIgnore
	}

	// Resolution is not alert-worthy: suppress the notification even when
	// other fields changed in the same row image.
	if oldRow.ResolvedAt == nil && newRow.ResolvedAt != nil {
		return resultRefresh
	}

	if newlyAssigned := ev.Action == feed.ActionInsert && newRow.assignedTo(d.teamID) ||
		ev.Action == feed.ActionUpdate && newRow.assignedTo(d.teamID) && !oldRow.assignedTo(d.teamID); newlyAssigned {
		return DispatchResult{
			Outcome:      OutcomeNotify,
			Notification: d.notification(EventAssignment, &newRow, &oldRow),
		}
	}

	if oldRow.RespondedAt == nil && newRow.RespondedAt != nil && newRow.ResolvedAt == nil {
		return DispatchResult{
			Outcome:      OutcomeNotify,
			Notification: d.notification(EventStatusChange, &newRow, &oldRow),
		}
	}

	return resultRefresh
}

// teamReportRow is the subset of an er_team_reports row the dispatcher
// reads.
type teamReportRow struct {
	ID                string `json:"id"`
	EmergencyReportID string `json:"emergency_report_id"`
	UserID            string `json:"user_id"`
	ErTeamID          *int64 `json:"er_team_id"`
}

// handleTeamReport interprets er_team_reports changes: relevant when the
// submitter is the current user, the row belongs to the team, or its
// incident is in the known assigned set. Report changes refresh but never
// notify.
func (d *Dispatcher) handleTeamReport(ev *feed.Event) DispatchResult {
	row := ev.New
	if len(row) == 0 {
		row = ev.Old
	}

	var rep teamReportRow
	if err := json.Unmarshal(row, &rep); err != nil {
		d.logger.Debug("unreadable report row in event", slog.Any("error", err))
		return resultIgnore
	}

	relevant := rep.UserID == d.userID ||
		(rep.ErTeamID != nil && *rep.ErTeamID == d.teamID) ||
		d.assigned(rep.EmergencyReportID)
	if !relevant {
		return resultIgnore
	}

	return resultRefresh
}

// internalReportRow is the subset of an internal_reports row the
// dispatcher reads.
type internalReportRow struct {
	EmergencyReportID string `json:"emergency_report_id"`
}

// handleInternalReport interprets internal_reports changes: relevant only
// when the linked incident is in the known assigned set. Always refresh,
// never notify.
func (d *Dispatcher) handleInternalReport(ev *feed.Event) DispatchResult {
	row := ev.New
	if len(row) == 0 {
		row = ev.Old
	}

	var rep internalReportRow
	if err := json.Unmarshal(row, &rep); err != nil {
		d.logger.Debug("unreadable internal report row in event", slog.Any("error", err))
		return resultIgnore
	}

	if !d.assigned(rep.EmergencyReportID) {
		return resultIgnore
	}

	return resultRefresh
}

// notification builds a dispatch notification from an incident row image.
func (d *Dispatcher) notification(kind NotificationEvent, newRow, oldRow *incidentRow) *DispatchNotification {
	n := &DispatchNotification{
		ID:                uuid.New().String(),
		Event:             kind,
		EmergencyReportID: newRow.ID,
		ReporterName:      newRow.reporterName(),
		IncidentType:      newRow.EmergencyType,
		LocationAddress:   newRow.LocationAddress,
		ReportedAt:        newRow.CreatedAt,
		OldStatus:         oldRow.Status,
		NewStatus:         newRow.Status,
		IncidentLatitude:  newRow.Latitude,
		IncidentLongitude: newRow.Longitude,
		CreatedAt:         d.nowFunc(),
	}

	if newRow.RespondedAt != nil {
		n.RespondedAt = *newRow.RespondedAt
	}

	return n
}
