// ABOUTME: Listing and deleting saved research reports
// ABOUTME: Delete is idempotent: a report that is already gone is not an error

package research

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/scout-desk/internal/notice"
)

// Report is a saved report with its document normalized.
type Report struct {
	ID           string    `json:"id"`
	ProspectID   string    `json:"prospect_id"`
	ProspectName string    `json:"prospect_name"`
	Company      string    `json:"company,omitempty"`
	Document     Document  `json:"document"`
	CreatedAt    time.Time `json:"created_at"`
}

// Reports lists and deletes saved reports.
type Reports struct {
	svc *Service
}

// Reports returns the saved-report listing.
func (s *Service) Reports() *Reports {
	return &Reports{svc: s}
}

// List returns the active owner's saved reports, newest first.
func (r *Reports) List(ctx context.Context) ([]Report, error) {
	owner, err := r.svc.owner("reports")
	if err != nil {
		return nil, err
	}

	records, err := r.svc.api.ListReports(ctx, owner)
	if err != nil {
		r.svc.notices.Post(notice.Error("reports", err, true))
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	out := make([]Report, 0, len(records))
	for _, rec := range records {
		out = append(out, Report{
			ID:           rec.ID,
			ProspectID:   rec.ProspectID,
			ProspectName: rec.ProspectName,
			Company:      rec.Company,
			Document:     Normalize(rec.Report),
			CreatedAt:    rec.CreatedAt,
		})
	}
	return out, nil
}

// Delete removes a saved report. Deleting a report that no longer exists
// succeeds.
func (r *Reports) Delete(ctx context.Context, id string) error {
	if err := r.svc.api.DeleteReport(ctx, id); err != nil {
		r.svc.notices.Post(notice.Error("reports", err, true))
		return fmt.Errorf("deleting report %s: %w", id, err)
	}
	r.svc.logger.Info("report deleted", "report_id", id)
	return nil
}
