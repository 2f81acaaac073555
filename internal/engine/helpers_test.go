package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fieldops/fieldsync/internal/feed"
)

// testLogger creates a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// testWriter adapts testing.T to io.Writer for slog output.
type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// --- mock store ---

// mockStore implements Store in memory and tracks calls.
type mockStore struct {
	mu     sync.Mutex
	drafts map[string]Draft

	deleted []string

	upsertErr error
	listErr   error
}

func newMockStore() *mockStore {
	return &mockStore{drafts: make(map[string]Draft)}
}

func (s *mockStore) GetDraft(_ context.Context, id string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return nil, ErrDraftNotFound
	}

	out := d.Clone()

	return out, nil
}

func (s *mockStore) GetDraftByIncident(_ context.Context, incidentID string) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.drafts {
		if d.EmergencyReportID == incidentID {
			return d.Clone(), nil
		}
	}

	return nil, ErrDraftNotFound
}

func (s *mockStore) ListDrafts(_ context.Context) ([]Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	out := make([]Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		out = append(out, *d.Clone())
	}

	return out, nil
}

func (s *mockStore) UpsertDraft(_ context.Context, d *Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.upsertErr != nil {
		return s.upsertErr
	}

	s.drafts[d.ClientDraftID] = *d.Clone()

	return nil
}

func (s *mockStore) DeleteDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, id)
	s.deleted = append(s.deleted, id)

	return nil
}

func (s *mockStore) Close() error { return nil }

// seed stores a draft directly, bypassing revision bookkeeping.
func (s *mockStore) seed(d Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts[d.ClientDraftID] = d
}

// --- connectivity fakes ---

type onlineChecker struct{ online bool }

func (c onlineChecker) Online() bool { return c.online }

// --- incident helpers ---

func ptrFloat(v float64) *float64 { return &v }

func ptrInt64(v int64) *int64 { return &v }

func testIncident(id string, opts ...func(*feed.Incident)) feed.Incident {
	in := feed.Incident{
		ID:              id,
		Status:          feed.IncidentActive,
		AssignedTeamID:  7,
		EmergencyType:   "medical",
		ReporterName:    "Ana Reyes",
		Latitude:        ptrFloat(14.5995),
		Longitude:       ptrFloat(120.9842),
		LocationAddress: "123 Rizal Ave, Manila",
		CreatedAt:       "2026-08-20T08:30:00Z",
	}

	for _, opt := range opts {
		opt(&in)
	}

	return in
}

func withReport(rep *feed.RemoteReport) func(*feed.Incident) {
	return func(in *feed.Incident) { in.Report = rep }
}

func withCreatedAt(ts string) func(*feed.Incident) {
	return func(in *feed.Incident) { in.CreatedAt = ts }
}

func withCoords(lat, lon float64) func(*feed.Incident) {
	return func(in *feed.Incident) {
		in.Latitude = ptrFloat(lat)
		in.Longitude = ptrFloat(lon)
	}
}

func withAddress(addr string) func(*feed.Incident) {
	return func(in *feed.Incident) { in.LocationAddress = addr }
}

func withStatus(status string) func(*feed.Incident) {
	return func(in *feed.Incident) { in.Status = status }
}

// fixedClock returns a nowFunc pinned to the given instant.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
