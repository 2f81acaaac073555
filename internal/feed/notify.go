package feed

import (
	"context"
	"net/url"
)

// InsertReporterNotification creates a notification for the person who
// reported the incident, shown on their next app open.
func (c *Client) InsertReporterNotification(ctx context.Context, reportID, message string) error {
	req := struct {
		EmergencyReportID string `json:"emergency_report_id"`
		Message           string `json:"message"`
	}{
		EmergencyReportID: reportID,
		Message:           message,
	}

	return c.post(ctx, "/notifications", req, nil)
}

// DeleteNotificationsFor removes every notification referencing the given
// incident. Called before the incident itself is deleted so no notification
// dangles against a missing row.
func (c *Client) DeleteNotificationsFor(ctx context.Context, reportID string) error {
	return c.delete(ctx, "/notifications?emergency_report_id="+url.QueryEscape(reportID))
}

// SendSMS dispatches a text message to the incident's reporter through the
// outbound SMS gateway. Strictly fire-and-forget: the caller logs failures
// and never retries.
func (c *Client) SendSMS(ctx context.Context, reportID, message string) error {
	req := struct {
		ReportID string `json:"reportId"`
		Message  string `json:"message"`
	}{
		ReportID: reportID,
		Message:  message,
	}

	return c.post(ctx, "/alerts/send-sms", req, nil)
}
