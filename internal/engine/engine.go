package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldops/fieldsync/internal/feed"
)

// assignedCacheKey holds the last good assigned-incident list so a refresh
// can degrade to known state while offline.
const (
	assignedCacheKey = "assigned_incidents"
	assignedCacheTTL = 24 * time.Hour
)

// FeedClient is the full incident-store surface the engine consumes.
// *feed.Client satisfies it.
type FeedClient interface {
	AssignedLister
	DraftSubmitter
	IncidentResponder
	IncidentQuerier
	ReporterNotifier
}

// Options configures an Engine.
type Options struct {
	Store        Store
	Feed         FeedClient
	Connectivity ConnectivityChecker
	Cache        Cache
	TeamID       int64
	UserID       string
	Logger       *slog.Logger
}

// Engine ties the session together: it refreshes the assigned-incident
// list, reconciles drafts against it, pushes draft mutations, consolidates
// duplicates, and turns change-feed events into debounced refreshes and
// dispatch notifications.
type Engine struct {
	store        Store
	feed         FeedClient
	connectivity ConnectivityChecker
	cache        Cache
	logger       *slog.Logger

	reconciler  *Reconciler
	coordinator *Coordinator
	dedup       *Deduplicator
	dispatcher  *Dispatcher
	ring        *NotificationRing
	debouncer   *refreshDebouncer

	mu          sync.Mutex
	assignedSet map[string]bool
	incidents   []feed.Incident
}

// New wires up an engine for one team session.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	e := &Engine{
		store:        opts.Store,
		feed:         opts.Feed,
		connectivity: opts.Connectivity,
		cache:        cache,
		logger:       logger,
		reconciler:   NewReconciler(opts.Store, logger),
		coordinator:  NewCoordinator(opts.Store, opts.Feed, opts.Connectivity, logger),
		dedup:        NewDeduplicator(opts.Feed, opts.Feed, logger),
		ring:         NewNotificationRing(),
		debouncer:    newRefreshDebouncer(refreshDebounce),
		assignedSet:  make(map[string]bool),
	}

	e.dispatcher = NewDispatcher(opts.TeamID, opts.UserID, e.isAssigned, logger)
	e.coordinator.SetRefreshTrigger(e.backgroundRefresh)
	e.dedup.SetRefreshTrigger(e.backgroundRefresh)

	return e
}

// Refresh fetches the assigned-incident list, reconciles the draft
// repository against it, and returns the canonical draft set. Offline, it
// degrades to the cached incident list, or to local drafts when no cache
// survives.
func (e *Engine) Refresh(ctx context.Context) ([]Draft, error) {
	incidents, fresh, err := e.fetchAssigned(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.ListDrafts(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: reading drafts for refresh: %w", err)
	}

	if incidents == nil {
		// Nothing known about assignments; local drafts stand as-is.
		e.logger.Info("refresh degraded to local drafts; no incident list available")
		return existing, nil
	}

	merged := e.reconciler.Merge(existing, incidents)
	e.reconciler.Apply(ctx, merged)
	e.setAssigned(incidents)

	if fresh {
		e.cache.Set(assignedCacheKey, incidents, assignedCacheTTL)
	}

	return merged, nil
}

// fetchAssigned returns the incident list and whether it came from the
// network. Offline or on a connectivity failure it falls back to the
// cache; a nil list means no state is available at all.
func (e *Engine) fetchAssigned(ctx context.Context) ([]feed.Incident, bool, error) {
	if !e.connectivity.Online() {
		return e.cachedAssigned(), false, nil
	}

	incidents, err := e.feed.ListAssigned(ctx)
	if err != nil {
		e.logger.Warn("assigned-incident fetch failed; using cached list", slog.Any("error", err))
		return e.cachedAssigned(), false, nil
	}

	return incidents, true, nil
}

func (e *Engine) cachedAssigned() []feed.Incident {
	v, ok := e.cache.Get(assignedCacheKey)
	if !ok {
		return nil
	}

	incidents, ok := v.([]feed.Incident)
	if !ok {
		e.cache.Clear(assignedCacheKey)
		return nil
	}

	return incidents
}

// backgroundRefresh runs a refresh detached from any caller, for triggers
// raised by sync failures and duplicate consolidation.
func (e *Engine) backgroundRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := e.Refresh(ctx); err != nil {
		e.logger.Warn("background refresh failed", slog.Any("error", err))
	}
}

func (e *Engine) setAssigned(incidents []feed.Incident) {
	set := make(map[string]bool, len(incidents))
	for i := range incidents {
		set[incidents[i].ID] = true
	}

	e.mu.Lock()
	e.assignedSet = set
	e.incidents = incidents
	e.mu.Unlock()
}

func (e *Engine) isAssigned(incidentID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.assignedSet[incidentID]
}

// Assigned returns the last known assigned-incident list.
func (e *Engine) Assigned() []feed.Incident {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]feed.Incident, len(e.incidents))
	copy(out, e.incidents)

	return out
}

// Drafts lists the stored draft set.
func (e *Engine) Drafts(ctx context.Context) ([]Draft, error) {
	return e.store.ListDrafts(ctx)
}

// Draft returns one stored draft by client id.
func (e *Engine) Draft(ctx context.Context, clientDraftID string) (*Draft, error) {
	return e.store.GetDraft(ctx, clientDraftID)
}

// SaveDraft persists a local edit, bumping the draft's revision so that an
// in-flight sync of the previous version cannot clobber it.
func (e *Engine) SaveDraft(ctx context.Context, draft *Draft) (*Draft, error) {
	out := draft.Clone()
	out.Revision++
	out.Synced = false
	out.UpdatedAt = formatTimestamp(time.Now())

	if err := e.store.UpsertDraft(ctx, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Sync pushes one draft to the incident store.
func (e *Engine) Sync(ctx context.Context, draft *Draft) *Draft {
	return e.coordinator.Sync(ctx, draft)
}

// SyncAll pushes every unsynced draft.
func (e *Engine) SyncAll(ctx context.Context) ([]Draft, error) {
	return e.coordinator.SyncAll(ctx)
}

// Respond transitions an incident to responded/resolved, runs duplicate
// consolidation around it, and refreshes.
func (e *Engine) Respond(ctx context.Context, incidentID string) (*feed.RespondResult, error) {
	if !e.connectivity.Online() {
		return nil, feed.ErrOffline
	}

	result, err := e.feed.RespondIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	var base *feed.Incident
	for i := range e.incidents {
		if e.incidents[i].ID == incidentID {
			base = &e.incidents[i]
			break
		}
	}
	e.mu.Unlock()

	if base != nil {
		if _, err := e.dedup.DetectAndMerge(ctx, base); err != nil {
			e.logger.Warn("duplicate consolidation failed",
				slog.String("incident_id", incidentID), slog.Any("error", err))
		}
	}

	if _, err := e.Refresh(ctx); err != nil {
		e.logger.Warn("refresh after respond failed", slog.Any("error", err))
	}

	return result, nil
}

// HandleEvent classifies one change-feed event: relevant events schedule a
// debounced refresh, and alert-worthy ones additionally push a dispatch
// notification.
func (e *Engine) HandleEvent(ev *feed.Event) {
	result := e.dispatcher.Handle(ev)
	if result.Outcome == OutcomeIgnore {
		return
	}

	if result.Outcome == OutcomeNotify && result.Notification != nil {
		e.ring.Push(*result.Notification)
	}

	if e.debouncer.allow() {
		go e.backgroundRefresh()
	}
}

// Run consumes change-feed events until the channel closes or the context
// is canceled. Nothing fires after return.
func (e *Engine) Run(ctx context.Context, events <-chan feed.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			e.HandleEvent(&ev)
		}
	}
}

// Notifications returns the dispatch alert list, newest first.
func (e *Engine) Notifications() []DispatchNotification {
	return e.ring.List()
}

// UnreadNotifications reports whether unacknowledged alerts exist.
func (e *Engine) UnreadNotifications() bool {
	return e.ring.Unread()
}

// AcknowledgeNotifications clears the unread flag.
func (e *Engine) AcknowledgeNotifications() {
	e.ring.Acknowledge()
}

// Close releases the draft repository.
func (e *Engine) Close() error {
	return e.store.Close()
}
