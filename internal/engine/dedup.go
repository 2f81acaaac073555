package engine

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/fieldops/fieldsync/internal/feed"
)

// Dedup thresholds. Two reports describe one event when they share an
// emergency type, were created within dedupWindow of each other, and are
// either within dedupRadiusMeters or carry the same normalized address.
const (
	dedupWindow       = 30 * time.Minute
	dedupRadiusMeters = 50.0
	earthRadiusMeters = 6_371_000.0
)

// duplicateAdvisory is sent to reporters whose incident was consolidated.
const duplicateAdvisory = "A response team is already en route to this emergency. Your report has been merged with an earlier one for the same incident."

// Deduplicator consolidates incident reports describing the same
// real-world event. The incident processed as base always survives; the
// duplicates are deleted after their reporters are notified.
type Deduplicator struct {
	incidents IncidentQuerier
	notifier  ReporterNotifier
	logger    *slog.Logger

	// refreshFn is invoked after a consolidation changed the incident
	// list. Never blocks duplicate processing.
	refreshFn func()
}

// NewDeduplicator returns a detector operating on the given incident store.
func NewDeduplicator(incidents IncidentQuerier, notifier ReporterNotifier, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{incidents: incidents, notifier: notifier, logger: logger}
}

// SetRefreshTrigger installs the incident-list refresh invoked after a
// consolidation.
func (d *Deduplicator) SetRefreshTrigger(fn func()) {
	d.refreshFn = fn
}

// DetectAndMerge finds incidents duplicating base and consolidates them:
// each duplicate's reporter is notified, then the duplicate and its
// notifications are deleted. A failed side effect is logged and the rest
// of the batch proceeds. Returns the number of incidents consolidated.
func (d *Deduplicator) DetectAndMerge(ctx context.Context, base *feed.Incident) (int, error) {
	if !base.HasCoordinates() {
		d.logger.Debug("skipping dedup for incident without coordinates",
			slog.String("incident_id", base.ID))

		return 0, nil
	}

	createdAt, ok := parseTimestamp(base.CreatedAt)
	if !ok {
		d.logger.Debug("skipping dedup for incident with unparsable created_at",
			slog.String("incident_id", base.ID),
			slog.String("created_at", base.CreatedAt))

		return 0, nil
	}

	candidates, err := d.incidents.ListIncidentsWindow(ctx, base.EmergencyType,
		createdAt.Add(-dedupWindow), createdAt.Add(dedupWindow))
	if err != nil {
		return 0, err
	}

	merged := 0

	for i := range candidates {
		cand := &candidates[i]
		if cand.ID == base.ID {
			continue
		}

		if cand.Status != feed.IncidentPending && cand.Status != feed.IncidentActive {
			continue
		}

		if !isDuplicate(base, cand) {
			continue
		}

		d.consolidate(ctx, base, cand)
		merged++
	}

	if merged > 0 && d.refreshFn != nil {
		go d.refreshFn()
	}

	return merged, nil
}

// consolidate notifies the duplicate's reporter and removes the duplicate
// from the incident store. Each side effect fails independently. Stale
// notifications are cleared before the advisory is inserted so the
// advisory itself survives the cleanup.
func (d *Deduplicator) consolidate(ctx context.Context, base, dup *feed.Incident) {
	d.logger.Info("consolidating duplicate incident",
		slog.String("base_id", base.ID),
		slog.String("duplicate_id", dup.ID),
	)

	if err := d.notifier.DeleteNotificationsFor(ctx, dup.ID); err != nil {
		d.logger.Warn("failed to delete notifications for duplicate",
			slog.String("duplicate_id", dup.ID), slog.Any("error", err))
	}

	if err := d.notifier.InsertReporterNotification(ctx, dup.ID, duplicateAdvisory); err != nil {
		d.logger.Warn("failed to insert duplicate notification",
			slog.String("duplicate_id", dup.ID), slog.Any("error", err))
	}

	// SMS is fire-and-forget: delivery is the gateway's problem.
	if err := d.notifier.SendSMS(ctx, dup.ID, duplicateAdvisory); err != nil {
		d.logger.Warn("failed to dispatch duplicate SMS",
			slog.String("duplicate_id", dup.ID), slog.Any("error", err))
	}

	if err := d.incidents.DeleteIncident(ctx, dup.ID); err != nil {
		d.logger.Warn("failed to delete duplicate incident",
			slog.String("duplicate_id", dup.ID), slog.Any("error", err))
	}
}

// isDuplicate applies the spatial half of the dedup rule: within
// dedupRadiusMeters of base, or an exactly equal normalized address. The
// temporal half is enforced by the candidate query window.
func isDuplicate(base, cand *feed.Incident) bool {
	if cand.HasCoordinates() {
		dist := haversineMeters(*base.Latitude, *base.Longitude, *cand.Latitude, *cand.Longitude)
		if dist <= dedupRadiusMeters {
			return true
		}
	}

	baseAddr := normalizeAddress(base.LocationAddress)
	candAddr := normalizeAddress(cand.LocationAddress)

	return baseAddr != "" && baseAddr == candAddr
}

// haversineMeters returns the great-circle distance between two points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// normalizeAddress canonicalizes a free-text address for equality testing:
// Unicode NFC, trimmed, case-folded, inner whitespace collapsed.
func normalizeAddress(addr string) string {
	s := norm.NFC.String(addr)
	s = strings.ToLower(strings.TrimSpace(s))

	return strings.Join(strings.Fields(s), " ")
}
