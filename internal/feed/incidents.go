package feed

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// ListAssigned returns the incidents currently assigned to the caller's
// team. The team scope is derived server-side from the session token.
func (c *Client) ListAssigned(ctx context.Context) ([]Incident, error) {
	var body struct {
		Incidents []incidentResponse `json:"incidents"`
	}

	if err := c.get(ctx, "/er-team/assigned", &body); err != nil {
		return nil, err
	}

	incidents := make([]Incident, 0, len(body.Incidents))
	for i := range body.Incidents {
		incidents = append(incidents, body.Incidents[i].toIncident())
	}

	return incidents, nil
}

// RespondIncident transitions an incident to responded/resolved. The server
// answers with the updated timestamps; responding to an already-resolved
// incident returns the existing timestamps without change.
func (c *Client) RespondIncident(ctx context.Context, incidentID string) (*RespondResult, error) {
	req := struct {
		IncidentID string `json:"incidentId"`
	}{IncidentID: incidentID}

	var body struct {
		OK          bool    `json:"ok"`
		Status      string  `json:"status"`
		RespondedAt *string `json:"respondedAt"`
		ResolvedAt  *string `json:"resolvedAt"`
	}

	if err := c.post(ctx, "/er-team/incident/respond", req, &body); err != nil {
		return nil, err
	}

	result := &RespondResult{Status: body.Status}
	if body.RespondedAt != nil {
		result.RespondedAt = *body.RespondedAt
	}

	if body.ResolvedAt != nil {
		result.ResolvedAt = *body.ResolvedAt
	}

	return result, nil
}

// ListIncidentsWindow returns incidents of the given emergency type created
// inside [since, until], regardless of team assignment. Used by duplicate
// detection, which inspects the full store rather than the assigned view.
func (c *Client) ListIncidentsWindow(ctx context.Context, emergencyType string, since, until time.Time) ([]Incident, error) {
	q := url.Values{}
	q.Set("emergency_type", emergencyType)
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("until", until.UTC().Format(time.RFC3339))

	var body struct {
		Incidents []incidentResponse `json:"incidents"`
	}

	if err := c.get(ctx, "/incidents?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	incidents := make([]Incident, 0, len(body.Incidents))
	for i := range body.Incidents {
		incidents = append(incidents, body.Incidents[i].toIncident())
	}

	return incidents, nil
}

// DeleteIncident removes an incident from the store. Only duplicate
// consolidation deletes incidents.
func (c *Client) DeleteIncident(ctx context.Context, incidentID string) error {
	if incidentID == "" {
		return fmt.Errorf("feed: empty incident id")
	}

	return c.delete(ctx, "/incidents/"+url.PathEscape(incidentID))
}
