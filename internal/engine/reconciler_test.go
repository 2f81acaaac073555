package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/fieldsync/internal/feed"
)

func TestMergeCreatesDraftPerIncident(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	incidents := []feed.Incident{testIncident("inc-1"), testIncident("inc-2")}

	merged := r.Merge(nil, incidents)

	require.Len(t, merged, 2)
	assert.Equal(t, "inc-1", merged[0].EmergencyReportID)
	assert.Equal(t, "inc-2", merged[1].EmergencyReportID)

	for _, d := range merged {
		assert.Equal(t, StatusDraft, d.Status)
		assert.False(t, d.Synced)
		assert.NotEmpty(t, d.ClientDraftID)
	}
}

func TestMergeDropsDraftsForAbsentIncidents(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	existing := []Draft{
		{ClientDraftID: "d-1", EmergencyReportID: "inc-1", Status: StatusDraft},
		{ClientDraftID: "d-2", EmergencyReportID: "inc-gone", Status: StatusDraft},
	}

	merged := r.Merge(existing, []feed.Incident{testIncident("inc-1")})

	require.Len(t, merged, 1)
	assert.Equal(t, "d-1", merged[0].ClientDraftID)
}

func TestMergePreservesIncidentOrder(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	incidents := []feed.Incident{
		testIncident("inc-c"), testIncident("inc-a"), testIncident("inc-b"),
	}

	merged := r.Merge(nil, incidents)

	require.Len(t, merged, 3)
	assert.Equal(t, "inc-c", merged[0].EmergencyReportID)
	assert.Equal(t, "inc-a", merged[1].EmergencyReportID)
	assert.Equal(t, "inc-b", merged[2].EmergencyReportID)
}

func TestMergeTemplatePrefilledFromIncident(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	merged := r.Merge(nil, []feed.Incident{testIncident("inc-1")})

	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Incident)
	assert.Equal(t, "2026-08-20", merged[0].Incident.Date)
	assert.Equal(t, "08:30", merged[0].Incident.Time)
	assert.Equal(t, "medical", merged[0].Incident.Type)
	assert.Equal(t, "123 Rizal Ave, Manila", merged[0].Incident.Address)
}

func TestMergeLocalEditsWinOverBaseline(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	rep := &feed.RemoteReport{
		ID:             "srv-1",
		Status:         "pending_review",
		Notes:          "server notes",
		PatientPayload: json.RawMessage(`[{"firstName":"Remote"}]`),
		UpdatedAt:      "2026-08-20T09:00:00Z",
		SyncedAt:       "2026-08-20T09:00:00Z",
	}

	local := Draft{
		ClientDraftID:     "srv-1",
		EmergencyReportID: "inc-1",
		Status:            StatusDraft,
		Notes:             "local notes",
		Patients:          PatientList{{FirstName: "Local"}},
		UpdatedAt:         "2026-08-20T10:00:00Z",
		Synced:            false,
	}

	merged := r.Merge([]Draft{local}, []feed.Incident{testIncident("inc-1", withReport(rep))})

	require.Len(t, merged, 1)
	got := merged[0]

	// Identity and payload stay local; status is server-authoritative.
	assert.Equal(t, "srv-1", got.ClientDraftID)
	assert.Equal(t, "local notes", got.Notes)
	assert.Equal(t, "Local", got.Patients[0].FirstName)
	assert.Equal(t, StatusPendingReview, got.Status)

	// Later local timestamp wins; synced only when both sides agree.
	assert.Equal(t, "2026-08-20T10:00:00Z", got.UpdatedAt)
	assert.False(t, got.Synced)
}

func TestMergeEmptyLocalPayloadTakesBaseline(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	rep := &feed.RemoteReport{
		ID:             "srv-1",
		Status:         "draft",
		Notes:          "server notes",
		PatientPayload: json.RawMessage(`[{"firstName":"Remote"}]`),
		UpdatedAt:      "2026-08-20T09:00:00Z",
	}

	local := Draft{
		ClientDraftID:     "srv-1",
		EmergencyReportID: "inc-1",
		Status:            StatusDraft,
		Synced:            true,
	}

	merged := r.Merge([]Draft{local}, []feed.Incident{testIncident("inc-1", withReport(rep))})

	require.Len(t, merged, 1)
	assert.Equal(t, "server notes", merged[0].Notes)
	require.Len(t, merged[0].Patients, 1)
	assert.Equal(t, "Remote", merged[0].Patients[0].FirstName)
	assert.True(t, merged[0].Synced)
}

func TestMergeUnparsableTimestampLosesToParsable(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	rep := &feed.RemoteReport{ID: "srv-1", Status: "draft", UpdatedAt: "2026-08-20T09:00:00Z"}

	local := Draft{
		ClientDraftID:     "srv-1",
		EmergencyReportID: "inc-1",
		UpdatedAt:         "not a timestamp",
	}

	merged := r.Merge([]Draft{local}, []feed.Incident{testIncident("inc-1", withReport(rep))})

	require.Len(t, merged, 1)
	assert.Equal(t, "2026-08-20T09:00:00Z", merged[0].UpdatedAt)
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	rep := &feed.RemoteReport{
		ID:        "srv-1",
		Status:    "in_review",
		Notes:     "notes",
		UpdatedAt: "2026-08-20T09:00:00Z",
		SyncedAt:  "2026-08-20T09:00:00Z",
	}

	incidents := []feed.Incident{testIncident("inc-1", withReport(rep)), testIncident("inc-2")}

	once := r.Merge(nil, incidents)
	twice := r.Merge(once, incidents)

	// Stable identity and content: uuid-backed drafts keep their id.
	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].ClientDraftID, twice[i].ClientDraftID)
		assert.Equal(t, once[i].Status, twice[i].Status)
		assert.Equal(t, once[i].Notes, twice[i].Notes)
		assert.Equal(t, once[i].UpdatedAt, twice[i].UpdatedAt)
	}
}

func TestMergeRemoteReportIDBecomesDraftID(t *testing.T) {
	t.Parallel()

	r := NewReconciler(newMockStore(), testLogger(t))

	rep := &feed.RemoteReport{ID: "srv-9", Status: "approved", UpdatedAt: "2026-08-20T09:00:00Z"}

	merged := r.Merge(nil, []feed.Incident{testIncident("inc-1", withReport(rep))})

	require.Len(t, merged, 1)
	assert.Equal(t, "srv-9", merged[0].ClientDraftID)
	assert.Equal(t, StatusApproved, merged[0].Status)
	assert.True(t, merged[0].Synced)
}

func TestApplyPersistsAndDeletesOrphans(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.seed(Draft{ClientDraftID: "d-orphan", EmergencyReportID: "inc-gone"})

	r := NewReconciler(store, testLogger(t))

	merged := r.Merge(nil, []feed.Incident{testIncident("inc-1")})
	r.Apply(context.Background(), merged)

	stored, err := store.ListDrafts(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "inc-1", stored[0].EmergencyReportID)
	assert.Contains(t, store.deleted, "d-orphan")
}

func TestApplyBestEffortOnWriteFailure(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	store.upsertErr = assert.AnError

	r := NewReconciler(store, testLogger(t))

	merged := r.Merge(nil, []feed.Incident{testIncident("inc-1")})

	// Must not panic or abort; the in-memory result stands.
	r.Apply(context.Background(), merged)
	require.Len(t, merged, 1)
}

func TestDraftCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := &Draft{
		ClientDraftID: "d-1",
		Patients: PatientList{{
			FirstName:     "Ana",
			Interventions: []string{"splint"},
			Vitals:        []VitalReading{{PulseRate: "80"}},
		}},
		Incident: &IncidentDetails{Type: "medical", Latitude: ptrFloat(14.6)},
		Injuries: InjuryMap{Front: InjurySet{"head": "laceration"}, Back: InjurySet{}},
		InternalReportID: ptrInt64(42),
	}

	cloned := orig.Clone()

	cloned.Patients[0].Interventions[0] = "tourniquet"
	cloned.Incident.Type = "fire"
	cloned.Injuries.Front["head"] = "bruise"
	*cloned.InternalReportID = 99

	assert.Equal(t, "splint", orig.Patients[0].Interventions[0])
	assert.Equal(t, "medical", orig.Incident.Type)
	assert.Equal(t, "laceration", orig.Injuries.Front["head"])
	assert.Equal(t, int64(42), *orig.InternalReportID)
}
