package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fieldops/fieldsync/internal/feed"
)

// Reconciler merges the locally persisted draft set against the team's
// current assigned-incident list, producing the canonical draft set. The
// merge itself is pure; Apply persists the result best-effort.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

// NewReconciler returns a reconciler writing through the given repository.
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Merge produces exactly one draft per incident, in incident order. Drafts
// whose incident is absent from the list are dropped. For an incident with
// an existing local draft, local payload edits win over the synthesized
// baseline; status is taken from the server copy; updatedAt is the later
// of the two timestamps; synced only if both sides agree the server has
// the current state.
func (r *Reconciler) Merge(existing []Draft, incidents []feed.Incident) []Draft {
	byIncident := make(map[string]*Draft, len(existing))
	for i := range existing {
		d := &existing[i]
		if d.EmergencyReportID != "" {
			byIncident[d.EmergencyReportID] = d
		}
	}

	merged := make([]Draft, 0, len(incidents))

	for i := range incidents {
		in := &incidents[i]
		baseline := r.synthesize(in)

		local, ok := byIncident[in.ID]
		if !ok {
			merged = append(merged, baseline)
			continue
		}

		merged = append(merged, mergeDraft(local, &baseline))
	}

	return merged
}

// Apply persists a merge result: upserts every merged draft and deletes
// drafts whose incident fell out of the assignment list. Writes are
// best-effort; a failed write is logged and the in-memory result stands.
func (r *Reconciler) Apply(ctx context.Context, merged []Draft) {
	keep := make(map[string]bool, len(merged))

	for i := range merged {
		d := &merged[i]
		keep[d.ClientDraftID] = true

		if err := r.store.UpsertDraft(ctx, d); err != nil {
			r.logger.Warn("failed to persist merged draft",
				slog.String("client_draft_id", d.ClientDraftID),
				slog.Any("error", err),
			)
		}
	}

	stored, err := r.store.ListDrafts(ctx)
	if err != nil {
		r.logger.Warn("failed to list drafts for orphan cleanup", slog.Any("error", err))
		return
	}

	for i := range stored {
		d := &stored[i]
		if keep[d.ClientDraftID] {
			continue
		}

		r.logger.Info("dropping draft for unassigned incident",
			slog.String("client_draft_id", d.ClientDraftID),
			slog.String("emergency_report_id", d.EmergencyReportID),
		)

		if err := r.store.DeleteDraft(ctx, d.ClientDraftID); err != nil {
			r.logger.Warn("failed to delete orphaned draft",
				slog.String("client_draft_id", d.ClientDraftID),
				slog.Any("error", err),
			)
		}
	}
}

// synthesize builds the baseline draft for an incident: from the server's
// denormalized report copy when one exists, otherwise an empty template
// pre-filled with the incident's date, time, type, and location.
func (r *Reconciler) synthesize(in *feed.Incident) Draft {
	if in.Report != nil {
		return r.fromRemoteReport(in)
	}

	id := uuid.New().String()

	details := &IncidentDetails{
		Type:      in.EmergencyType,
		Address:   in.LocationAddress,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	}

	if t, ok := parseTimestamp(in.CreatedAt); ok {
		details.Date = t.Format("2006-01-02")
		details.Time = t.Format("15:04")
	}

	return Draft{
		ClientDraftID:     id,
		EmergencyReportID: in.ID,
		Status:            StatusDraft,
		UpdatedAt:         in.CreatedAt,
		Synced:            false,
		Incident:          details,
		Injuries:          InjuryMap{Front: InjurySet{}, Back: InjurySet{}},
	}
}

// fromRemoteReport decodes the server's report copy into a draft. The
// report's own id doubles as the client draft id so that repeated merges
// on different devices converge on one identity.
func (r *Reconciler) fromRemoteReport(in *feed.Incident) Draft {
	rep := in.Report

	d := Draft{
		ClientDraftID:     rep.ID,
		EmergencyReportID: in.ID,
		Status:            NormalizeStatus(rep.Status),
		UpdatedAt:         rep.UpdatedAt,
		Synced:            true,
		SubmittedAt:       rep.SyncedAt,
		InternalReportID:  rep.InternalReportID,
		Notes:             rep.Notes,
		Injuries:          InjuryMap{Front: InjurySet{}, Back: InjurySet{}},
	}

	if len(rep.PatientPayload) > 0 {
		if err := json.Unmarshal(rep.PatientPayload, &d.Patients); err != nil {
			r.logger.Warn("unreadable patient payload in remote report",
				slog.String("report_id", rep.ID), slog.Any("error", err))
		}
	}

	if len(rep.IncidentPayload) > 0 {
		var det IncidentDetails
		if err := json.Unmarshal(rep.IncidentPayload, &det); err != nil {
			r.logger.Warn("unreadable incident payload in remote report",
				slog.String("report_id", rep.ID), slog.Any("error", err))
		} else {
			d.Incident = &det
		}
	}

	if len(rep.InjuryPayload) > 0 {
		if err := json.Unmarshal(rep.InjuryPayload, &d.Injuries); err != nil {
			r.logger.Warn("unreadable injury payload in remote report",
				slog.String("report_id", rep.ID), slog.Any("error", err))
		}
	}

	return d
}

// mergeDraft folds a baseline draft into an existing local one. The local
// draft's identity and payload edits survive; the server dictates status.
func mergeDraft(local, baseline *Draft) Draft {
	out := local.Clone()

	out.Status = baseline.Status
	out.UpdatedAt = laterTimestamp(baseline.UpdatedAt, local.UpdatedAt)
	out.Synced = local.Synced && baseline.Synced

	if len(out.Patients) == 0 {
		out.Patients = baseline.Patients.Clone()
	}

	if out.Incident == nil {
		out.Incident = baseline.Incident.Clone()
	}

	if len(out.Injuries.Front) == 0 && len(out.Injuries.Back) == 0 {
		out.Injuries = baseline.Injuries.Clone()
	}

	if out.Notes == "" {
		out.Notes = baseline.Notes
	}

	if out.SubmittedAt == "" {
		out.SubmittedAt = baseline.SubmittedAt
	}

	if out.InternalReportID == nil && baseline.InternalReportID != nil {
		id := *baseline.InternalReportID
		out.InternalReportID = &id
	}

	return *out
}
