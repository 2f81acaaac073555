// Package engine implements the incident assignment and draft reconciliation
// core: merging local drafts against the assigned-incident list, pushing
// draft mutations to the incident store with failure classification,
// consolidating duplicate incident reports, and turning change-feed events
// into debounced refreshes and dispatch notifications.
package engine

import (
	"context"
	"time"

	"github.com/fieldops/fieldsync/internal/feed"
)

// DraftStatus is the review lifecycle state of a working report. Status
// transitions are server-authoritative once a draft has been submitted.
type DraftStatus string

// Draft statuses as stored in the drafts table.
const (
	StatusDraft         DraftStatus = "draft"
	StatusPendingReview DraftStatus = "pending_review"
	StatusInReview      DraftStatus = "in_review"
	StatusApproved      DraftStatus = "approved"
	StatusRejected      DraftStatus = "rejected"
)

// validDraftStatuses guards against unknown statuses arriving from the
// server; anything unrecognized falls back to StatusDraft.
var validDraftStatuses = map[DraftStatus]bool{
	StatusDraft:         true,
	StatusPendingReview: true,
	StatusInReview:      true,
	StatusApproved:      true,
	StatusRejected:      true,
}

// NormalizeStatus maps an arbitrary status string to a known DraftStatus.
func NormalizeStatus(s string) DraftStatus {
	if validDraftStatuses[DraftStatus(s)] {
		return DraftStatus(s)
	}

	return StatusDraft
}

// Draft is the local working copy of a patient care report, tied 1:1 to an
// incident via EmergencyReportID. ClientDraftID is the stable identity: it
// never changes once assigned, across every merge and sync.
type Draft struct {
	ClientDraftID     string
	EmergencyReportID string
	Status            DraftStatus
	UpdatedAt         string // server-format timestamp; may be unparsable, see timeutil.go
	Synced            bool
	LastSyncError     string // empty when the last sync succeeded
	SubmittedAt       string // empty until first successful submission
	InternalReportID  *int64 // server-assigned on first permanent submission

	Patients PatientList
	Incident *IncidentDetails
	Injuries InjuryMap
	Notes    string

	// Revision counts local edits. A sync result is applied only when the
	// stored draft's revision still matches the revision that was sent,
	// so a late response never clobbers newer edits.
	Revision int64
}

// PatientList is the ordered set of patients covered by one report.
type PatientList []PatientRecord

// PatientRecord holds the per-patient care data captured in the field.
type PatientRecord struct {
	FirstName     string `json:"firstName"`
	MiddleName    string `json:"middleName"`
	LastName      string `json:"lastName"`
	Suffix        string `json:"suffix"`
	ContactNumber string `json:"contactNumber"`
	Age           string `json:"age"`
	Sex           string `json:"sex"`

	ChiefComplaint      string   `json:"chiefComplaint"`
	Interventions       []string `json:"interventions"`
	EstimatedBloodLoss  string   `json:"estimatedBloodLoss"`
	ReceivingHospitalID string   `json:"receivingHospitalId"`
	ReceivingDate       string   `json:"receivingDate"`
	TurnoverInCharge    string   `json:"turnoverInCharge"`

	Vitals []VitalReading `json:"vitals"`
}

// VitalReading is a single timestamped vital-signs measurement.
type VitalReading struct {
	TakenAt          string `json:"takenAt"`
	BloodPressure    string `json:"bloodPressure"`
	PulseRate        string `json:"pulseRate"`
	RespiratoryRate  string `json:"respiratoryRate"`
	Temperature      string `json:"temperature"`
	OxygenSaturation string `json:"oxygenSaturation"`
}

// IncidentDetails is the incident-facts section of a report, pre-filled
// from the incident record when a draft is synthesized.
type IncidentDetails struct {
	Date      string   `json:"incidentDate"` // YYYY-MM-DD
	Time      string   `json:"incidentTime"` // HH:MM
	Type      string   `json:"incidentType"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// InjurySet maps a body region to its injury description for one view.
type InjurySet map[string]string

// InjuryMap holds the front and back body-diagram annotations.
type InjuryMap struct {
	Front InjurySet `json:"front"`
	Back  InjurySet `json:"back"`
}

// NotificationEvent is the kind of dispatch notification.
type NotificationEvent string

// Dispatch notification kinds.
const (
	EventAssignment   NotificationEvent = "assignment"
	EventStatusChange NotificationEvent = "status_change"
)

// DispatchNotification is one entry in the team's dispatch alert list.
// Coordinates are carried for route display when available.
type DispatchNotification struct {
	ID                string
	Event             NotificationEvent
	EmergencyReportID string
	DraftID           string // set for report-table events, empty otherwise
	ReporterName      string
	IncidentType      string
	LocationAddress   string
	ReportedAt        string
	RespondedAt       string
	OldStatus         string
	NewStatus         string
	IncidentLatitude  *float64
	IncidentLongitude *float64
	CreatedAt         time.Time
}

// --- Consumer-defined interfaces for the feed client ---
// These decouple the engine from feed's concrete client, following the
// "accept interfaces, return structs" Go convention.

// AssignedLister retrieves the caller's current assigned-incident list.
type AssignedLister interface {
	ListAssigned(ctx context.Context) ([]feed.Incident, error)
}

// DraftSubmitter pushes a draft to the incident store.
type DraftSubmitter interface {
	SubmitDraft(ctx context.Context, req *feed.SubmitDraftRequest) (*feed.SubmitDraftResponse, error)
}

// IncidentResponder transitions an incident to responded/resolved.
type IncidentResponder interface {
	RespondIncident(ctx context.Context, incidentID string) (*feed.RespondResult, error)
}

// IncidentQuerier serves duplicate detection: windowed candidate queries
// and incident deletion against the full store.
type IncidentQuerier interface {
	ListIncidentsWindow(ctx context.Context, emergencyType string, since, until time.Time) ([]feed.Incident, error)
	DeleteIncident(ctx context.Context, incidentID string) error
}

// ReporterNotifier delivers duplicate-consolidation messages to reporters.
type ReporterNotifier interface {
	InsertReporterNotification(ctx context.Context, reportID, message string) error
	DeleteNotificationsFor(ctx context.Context, reportID string) error
	SendSMS(ctx context.Context, reportID, message string) error
}

// ConnectivityChecker reports whether the client currently has a network
// link. Offline operations degrade to local state instead of failing.
type ConnectivityChecker interface {
	Online() bool
}

// Store is the draft repository: a durable local store keyed by
// ClientDraftID that survives restarts and works offline. It is a cache of
// server truth, not the system of record — writes are best-effort relative
// to the in-memory merge result.
type Store interface {
	GetDraft(ctx context.Context, clientDraftID string) (*Draft, error)
	GetDraftByIncident(ctx context.Context, emergencyReportID string) (*Draft, error)
	ListDrafts(ctx context.Context) ([]Draft, error)
	UpsertDraft(ctx context.Context, draft *Draft) error
	DeleteDraft(ctx context.Context, clientDraftID string) error
	Close() error
}
