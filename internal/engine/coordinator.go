package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldops/fieldsync/internal/feed"
)

// offlineMarker is recorded as the sync error when no network link is
// available. No call is attempted in that state.
const offlineMarker = "Offline – will retry when connection is restored"

// Coordinator pushes local draft mutations to the incident store. Failures
// never escape the public contract: every outcome is folded into the
// returned draft's Synced and LastSyncError fields. There is no internal
// retry or backoff; the caller drives resubmission.
type Coordinator struct {
	store        Store
	submitter    DraftSubmitter
	connectivity ConnectivityChecker
	logger       *slog.Logger
	nowFunc      func() time.Time

	// refreshFn is invoked asynchronously when a sync discovers the
	// incident was reassigned away. Never blocks the syncing caller.
	refreshFn func()

	locks keyedMutex
}

// NewCoordinator returns a coordinator over the given repository and
// submission endpoint.
func NewCoordinator(store Store, submitter DraftSubmitter, connectivity ConnectivityChecker, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:        store,
		submitter:    submitter,
		connectivity: connectivity,
		logger:       logger,
		nowFunc:      time.Now,
	}
}

// SetRefreshTrigger installs the reconciliation refresh invoked on
// authorization loss. Must be called before Sync.
func (c *Coordinator) SetRefreshTrigger(fn func()) {
	c.refreshFn = fn
}

// Sync attempts to push one draft to the incident store and returns the
// resulting draft state. The returned draft always carries the same
// ClientDraftID that went in. The result is persisted only if the stored
// draft has not advanced past the revision that was sent, so a slow
// response never clobbers newer local edits.
func (c *Coordinator) Sync(ctx context.Context, draft *Draft) *Draft {
	unlock := c.locks.lock(draft.ClientDraftID)
	defer unlock()

	out := draft.Clone()
	sentRevision := out.Revision

	if out.EmergencyReportID == "" {
		out.Synced = false
		out.LastSyncError = "draft is not linked to an incident; cannot submit"
		c.persistResult(ctx, out, sentRevision)

		return out
	}

	if !c.connectivity.Online() {
		out.Synced = false
		out.LastSyncError = offlineMarker
		c.persistResult(ctx, out, sentRevision)

		return out
	}

	req, err := c.buildRequest(out)
	if err != nil {
		out.Synced = false
		out.LastSyncError = err.Error()
		c.persistResult(ctx, out, sentRevision)

		return out
	}

	resp, err := c.submitter.SubmitDraft(ctx, req)
	if err != nil {
		c.applyFailure(out, err)
		c.persistResult(ctx, out, sentRevision)

		return out
	}

	out.Synced = true
	out.LastSyncError = ""

	if resp.SyncedAt != "" {
		out.SubmittedAt = resp.SyncedAt
	}

	if resp.UpdatedAt != "" {
		out.UpdatedAt = resp.UpdatedAt
	}

	if out.InternalReportID == nil && resp.InternalReportID != nil {
		id := *resp.InternalReportID
		out.InternalReportID = &id
	}

	c.logger.Info("draft synced",
		slog.String("client_draft_id", out.ClientDraftID),
		slog.String("emergency_report_id", out.EmergencyReportID),
	)

	c.persistResult(ctx, out, sentRevision)

	return out
}

// SyncAll pushes every unsynced draft in the repository, one at a time.
// Per-draft failures are folded into each draft; only a repository read
// failure is returned.
func (c *Coordinator) SyncAll(ctx context.Context) ([]Draft, error) {
	drafts, err := c.store.ListDrafts(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: listing drafts for sync: %w", err)
	}

	results := make([]Draft, 0, len(drafts))

	for i := range drafts {
		d := &drafts[i]
		if d.Synced {
			results = append(results, *d)
			continue
		}

		results = append(results, *c.Sync(ctx, d))
	}

	return results, nil
}

// buildRequest renders a draft as a submission payload.
func (c *Coordinator) buildRequest(d *Draft) (*feed.SubmitDraftRequest, error) {
	patients := d.Patients
	if patients == nil {
		patients = PatientList{}
	}

	patientPayload, err := json.Marshal(patients)
	if err != nil {
		return nil, fmt.Errorf("encoding patient payload: %w", err)
	}

	injuryPayload, err := json.Marshal(d.Injuries)
	if err != nil {
		return nil, fmt.Errorf("encoding injury payload: %w", err)
	}

	req := &feed.SubmitDraftRequest{
		ClientDraftID:     d.ClientDraftID,
		EmergencyReportID: d.EmergencyReportID,
		Status:            string(d.Status),
		PatientPayload:    patientPayload,
		InjuryPayload:     injuryPayload,
		Notes:             d.Notes,
		SubmittedAt:       d.SubmittedAt,
		InternalReportID:  d.InternalReportID,
	}

	if req.SubmittedAt == "" {
		req.SubmittedAt = formatTimestamp(c.nowFunc())
	}

	if d.Incident != nil {
		incidentPayload, err := json.Marshal(d.Incident)
		if err != nil {
			return nil, fmt.Errorf("encoding incident payload: %w", err)
		}

		req.IncidentPayload = incidentPayload
	}

	return req, nil
}

// applyFailure classifies a submission error into the draft's sync fields.
// A reassignment additionally schedules a full refresh without blocking.
func (c *Coordinator) applyFailure(d *Draft, err error) {
	d.Synced = false

	switch {
	case errors.Is(err, feed.ErrReassigned):
		if detail := feed.ReassignmentFrom(err); detail != nil {
			d.LastSyncError = detail.Advisory()
		} else {
			d.LastSyncError = "this incident is no longer assigned to your team"
		}

		c.logger.Warn("incident reassigned away during sync",
			slog.String("client_draft_id", d.ClientDraftID),
			slog.String("emergency_report_id", d.EmergencyReportID),
		)

		if c.refreshFn != nil {
			go c.refreshFn()
		}

	case errors.Is(err, feed.ErrValidation):
		d.LastSyncError = err.Error()

	case errors.Is(err, feed.ErrRateLimited):
		d.LastSyncError = "the server is rate limiting submissions; try again shortly"

	case errors.Is(err, feed.ErrOffline):
		d.LastSyncError = offlineMarker

	default:
		d.LastSyncError = err.Error()
		c.logger.Warn("draft sync failed",
			slog.String("client_draft_id", d.ClientDraftID),
			slog.Any("error", err),
		)
	}
}

// persistResult writes the sync outcome back to the repository, but only
// if the stored draft still carries the revision that was sent. A draft
// edited mid-flight keeps its newer state; the stale result is dropped.
func (c *Coordinator) persistResult(ctx context.Context, result *Draft, sentRevision int64) {
	stored, err := c.store.GetDraft(ctx, result.ClientDraftID)

	switch {
	case errors.Is(err, ErrDraftNotFound):
		// Draft was never persisted or was dropped by a merge; nothing
		// to update.
		return
	case err != nil:
		c.logger.Warn("failed to read draft for sync persistence",
			slog.String("client_draft_id", result.ClientDraftID),
			slog.Any("error", err),
		)

		return
	}

	if stored.Revision != sentRevision {
		c.logger.Info("discarding stale sync result",
			slog.String("client_draft_id", result.ClientDraftID),
			slog.Int64("sent_revision", sentRevision),
			slog.Int64("stored_revision", stored.Revision),
		)

		return
	}

	if err := c.store.UpsertDraft(ctx, result); err != nil {
		c.logger.Warn("failed to persist sync result",
			slog.String("client_draft_id", result.ClientDraftID),
			slog.Any("error", err),
		)
	}
}

// keyedMutex serializes operations per draft id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for the given key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}

	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()

	return m.Unlock
}
