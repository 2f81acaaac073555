package feed

import "encoding/json"

// Incident statuses as reported by the incident store.
const (
	IncidentPending   = "pending"
	IncidentActive    = "active"
	IncidentResponded = "responded"
	IncidentResolved  = "resolved"
)

// Incident represents one emergency report in the incident store, normalized
// from the API response. An incident may carry a denormalized working report
// submitted earlier by the assigned team.
type Incident struct {
	ID              string
	Status          string
	AssignedTeamID  int64 // 0 when unassigned
	EmergencyType   string
	ReporterName    string
	ReporterContact string
	Latitude        *float64
	Longitude       *float64
	LocationAddress string
	CreatedAt       string // server timestamp, passed through verbatim
	RespondedAt     string // empty until the incident is responded
	ResolvedAt      string // empty until the incident is resolved
	Report          *RemoteReport
}

// HasCoordinates reports whether the incident carries a usable location fix.
func (in *Incident) HasCoordinates() bool {
	return in.Latitude != nil && in.Longitude != nil
}

// RemoteReport is the server-side copy of a team's working report, embedded
// in the assigned-incident response.
type RemoteReport struct {
	ID               string
	Status           string
	PatientPayload   json.RawMessage
	IncidentPayload  json.RawMessage
	InjuryPayload    json.RawMessage
	Notes            string
	InternalReportID *int64
	SyncedAt         string
	UpdatedAt        string
}

// RespondResult is the server's answer to an incident respond/resolve call.
type RespondResult struct {
	Status      string
	RespondedAt string
	ResolvedAt  string
}

// SubmitDraftRequest is the payload for the draft submission endpoint.
// Validated locally before any network call.
type SubmitDraftRequest struct {
	ClientDraftID     string          `json:"clientDraftId"     validate:"required"`
	EmergencyReportID string          `json:"emergencyReportId" validate:"required"`
	Status            string          `json:"status"            validate:"required,oneof=draft pending_review in_review approved rejected"`
	PatientPayload    json.RawMessage `json:"patientPayload"`
	IncidentPayload   json.RawMessage `json:"incidentPayload,omitempty"`
	InjuryPayload     json.RawMessage `json:"injuryPayload,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	SubmittedAt       string          `json:"submittedAt"       validate:"required"`
	InternalReportID  *int64          `json:"internalReportId,omitempty"`
}

// SubmitDraftResponse carries the server-assigned bookkeeping after a
// successful draft submission.
type SubmitDraftResponse struct {
	SyncedAt         string
	UpdatedAt        string
	InternalReportID *int64
}

// --- Wire types (unexported; callers see the normalized structs above) ---

type incidentResponse struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	ErTeamID        *int64          `json:"er_team_id"`
	EmergencyType   string          `json:"emergency_type"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	ContactNumber   string          `json:"contact_number"`
	Latitude        *float64        `json:"latitude"`
	Longitude       *float64        `json:"longitude"`
	LocationAddress string          `json:"location_address"`
	CreatedAt       string          `json:"created_at"`
	RespondedAt     *string         `json:"responded_at"`
	ResolvedAt      *string         `json:"resolved_at"`
	ErTeamReport    *reportResponse `json:"er_team_report"`
}

type reportResponse struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	PatientPayload   json.RawMessage `json:"patient_payload"`
	IncidentPayload  json.RawMessage `json:"incident_payload"`
	InjuryPayload    json.RawMessage `json:"injury_payload"`
	Notes            *string         `json:"notes"`
	InternalReportID *int64          `json:"internal_report_id"`
	SyncedAt         *string         `json:"synced_at"`
	UpdatedAt        string          `json:"updated_at"`
}

type errorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Details *ReassignmentDetail `json:"details"`
}

// toIncident normalizes a wire incident into the exported type. Names are
// joined, nullable columns collapse to zero values.
func (r *incidentResponse) toIncident() Incident {
	in := Incident{
		ID:              r.ID,
		Status:          r.Status,
		EmergencyType:   r.EmergencyType,
		ReporterName:    joinName(r.FirstName, r.LastName),
		ReporterContact: r.ContactNumber,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		LocationAddress: r.LocationAddress,
		CreatedAt:       r.CreatedAt,
	}

	if r.ErTeamID != nil {
		in.AssignedTeamID = *r.ErTeamID
	}

	if r.RespondedAt != nil {
		in.RespondedAt = *r.RespondedAt
	}

	if r.ResolvedAt != nil {
		in.ResolvedAt = *r.ResolvedAt
	}

	if r.ErTeamReport != nil {
		in.Report = r.ErTeamReport.toReport()
	}

	return in
}

func (r *reportResponse) toReport() *RemoteReport {
	rep := &RemoteReport{
		ID:               r.ID,
		Status:           r.Status,
		PatientPayload:   r.PatientPayload,
		IncidentPayload:  r.IncidentPayload,
		InjuryPayload:    r.InjuryPayload,
		InternalReportID: r.InternalReportID,
		UpdatedAt:        r.UpdatedAt,
	}

	if r.Notes != nil {
		rep.Notes = *r.Notes
	}

	if r.SyncedAt != nil {
		rep.SyncedAt = *r.SyncedAt
	}

	return rep
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
