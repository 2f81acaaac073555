package feed

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is shared across submissions; the validator is stateless after
// construction and safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// SubmitDraft pushes a working report to the incident store. The request is
// validated locally first: a malformed payload is rejected with ErrValidation
// before any network traffic. No retry on failure — the sync coordinator
// surfaces the classified error and the caller decides when to resubmit.
func (c *Client) SubmitDraft(ctx context.Context, req *SubmitDraftRequest) (*SubmitDraftResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var body struct {
		Report struct {
			SyncedAt         *string `json:"synced_at"`
			UpdatedAt        string  `json:"updated_at"`
			InternalReportID *int64  `json:"internal_report_id"`
		} `json:"report"`
	}

	if err := c.post(ctx, "/er-team/reports/draft", req, &body); err != nil {
		return nil, err
	}

	resp := &SubmitDraftResponse{
		UpdatedAt:        body.Report.UpdatedAt,
		InternalReportID: body.Report.InternalReportID,
	}

	if body.Report.SyncedAt != nil {
		resp.SyncedAt = *body.Report.SyncedAt
	}

	return resp, nil
}
