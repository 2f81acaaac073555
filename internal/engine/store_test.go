package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a store on a temp database, registering cleanup.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "drafts.db")

	store, err := NewSQLiteStore(dbPath, testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return store
}

func storedDraft() *Draft {
	return &Draft{
		ClientDraftID:     "d-1",
		EmergencyReportID: "inc-1",
		Status:            StatusPendingReview,
		UpdatedAt:         "2026-08-20T09:00:00Z",
		Synced:            true,
		SubmittedAt:       "2026-08-20T09:00:00Z",
		InternalReportID:  ptrInt64(12),
		Patients: PatientList{{
			FirstName:      "Ana",
			ChiefComplaint: "chest pain",
			Vitals:         []VitalReading{{PulseRate: "92", BloodPressure: "130/85"}},
		}},
		Incident: &IncidentDetails{
			Date: "2026-08-20", Time: "08:30", Type: "medical",
			Address: "123 Rizal Ave", Latitude: ptrFloat(14.6), Longitude: ptrFloat(120.98),
		},
		Injuries: InjuryMap{Front: InjurySet{"arm": "fracture"}, Back: InjurySet{}},
		Notes:    "conscious on arrival",
		Revision: 2,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDraft(ctx, storedDraft()))

	got, err := store.GetDraft(ctx, "d-1")
	require.NoError(t, err)

	want := storedDraft()
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.UpdatedAt, got.UpdatedAt)
	assert.True(t, got.Synced)
	assert.Equal(t, int64(12), *got.InternalReportID)
	require.Len(t, got.Patients, 1)
	assert.Equal(t, "chest pain", got.Patients[0].ChiefComplaint)
	assert.Equal(t, "92", got.Patients[0].Vitals[0].PulseRate)
	require.NotNil(t, got.Incident)
	assert.Equal(t, "123 Rizal Ave", got.Incident.Address)
	assert.Equal(t, "fracture", got.Injuries.Front["arm"])
	assert.Equal(t, int64(2), got.Revision)
}

func TestStoreGetMissingDraft(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.GetDraft(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestStoreUpsertReplacesExisting(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDraft(ctx, storedDraft()))

	updated := storedDraft()
	updated.Notes = "transferred to hospital"
	updated.Revision = 3
	updated.Synced = false
	require.NoError(t, store.UpsertDraft(ctx, updated))

	got, err := store.GetDraft(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "transferred to hospital", got.Notes)
	assert.Equal(t, int64(3), got.Revision)
	assert.False(t, got.Synced)

	drafts, err := store.ListDrafts(ctx)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
}

func TestStoreGetDraftByIncident(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDraft(ctx, storedDraft()))

	got, err := store.GetDraftByIncident(ctx, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, "d-1", got.ClientDraftID)

	_, err = store.GetDraftByIncident(ctx, "inc-unknown")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestStoreDeleteDraft(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDraft(ctx, storedDraft()))
	require.NoError(t, store.DeleteDraft(ctx, "d-1"))

	_, err := store.GetDraft(ctx, "d-1")
	assert.ErrorIs(t, err, ErrDraftNotFound)

	// Deleting again is not an error.
	assert.NoError(t, store.DeleteDraft(ctx, "d-1"))
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "drafts.db")

	store, err := NewSQLiteStore(dbPath, testLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.UpsertDraft(context.Background(), storedDraft()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath, testLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetDraft(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "inc-1", got.EmergencyReportID)
}
