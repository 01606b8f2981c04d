// ABOUTME: A single research modal invocation and its state transitions
// ABOUTME: idle -> generating -> review | idle-with-error; save is only possible from review

package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/notice"
)

// Job is one research invocation.
type Job struct {
	id      string
	svc     *Service
	created time.Time

	mu      sync.Mutex
	state   State
	subject Subject
	doc     *Document
	err     error
	saveErr error
	saved   *client.ReportRecord
}

// JobView is a snapshot of a job for display.
type JobView struct {
	ID        string               `json:"id"`
	State     State                `json:"state"`
	Subject   Subject              `json:"subject"`
	Document  *Document            `json:"document,omitempty"`
	Error     string               `json:"error,omitempty"`
	SaveError string               `json:"save_error,omitempty"`
	Saved     *client.ReportRecord `json:"saved,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// View returns a snapshot of the job.
func (j *Job) View() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	v := JobView{
		ID:        j.id,
		State:     j.state,
		Subject:   j.subject,
		Document:  j.doc,
		Saved:     j.saved,
		CreatedAt: j.created,
	}
	if j.err != nil {
		v.Error = j.err.Error()
	}
	if j.saveErr != nil {
		v.SaveError = j.saveErr.Error()
	}
	return v
}

// Generate asks the backend for a report on subject and waits for it.
func (j *Job) Generate(ctx context.Context, subject Subject) (*Document, error) {
	req, err := j.begin(subject)
	if err != nil {
		return nil, err
	}
	return j.run(ctx, req)
}

// StartGenerate is Generate without waiting. The outcome is visible through
// View. Contract violations are still reported synchronously.
func (j *Job) StartGenerate(subject Subject) error {
	req, err := j.begin(subject)
	if err != nil {
		return err
	}
	s := j.svc
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = j.run(s.ctx, req)
	}()
	return nil
}

func (j *Job) begin(subject Subject) (client.ResearchRequest, error) {
	req, err := subject.request()
	if err != nil {
		return req, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case StateGenerating:
		return req, ErrGenerating
	case StateReview:
		return req, ErrHasResult
	}
	j.state = StateGenerating
	j.subject = subject
	j.err = nil
	return req, nil
}

func (j *Job) run(ctx context.Context, req client.ResearchRequest) (*Document, error) {
	log := j.svc.logger.With("job_id", j.id)
	log.Info("generating report", "name", req.Name, "company", req.Company)

	resp, err := j.svc.api.ResearchProspect(ctx, req)
	if err == nil && !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "research failed"
		}
		err = errors.New(msg)
	}
	if err != nil {
		j.mu.Lock()
		j.state = StateFailed
		j.err = err
		j.mu.Unlock()
		log.Warn("report generation failed", "error", err)
		j.svc.notices.Post(notice.Error("research", fmt.Errorf("report generation failed: %w", err), true))
		return nil, fmt.Errorf("generating report: %w", err)
	}

	doc := Normalize(resp.Report)
	if doc.Fallback {
		log.Warn("unrecognized report shape, showing raw payload")
	}

	j.mu.Lock()
	j.state = StateReview
	j.doc = &doc
	j.saveErr = nil
	j.saved = nil
	j.mu.Unlock()

	log.Info("report ready", "sections", len(doc.Sections))
	return &doc, nil
}

// Save stores the reviewed report for the active owner. Saving twice returns
// the first saved record.
func (j *Job) Save(ctx context.Context) (*client.ReportRecord, error) {
	j.mu.Lock()
	if j.state != StateReview {
		j.mu.Unlock()
		return nil, ErrNotInReview
	}
	if j.saved != nil {
		saved := j.saved
		j.mu.Unlock()
		return saved, nil
	}
	subject, doc := j.subject, *j.doc
	j.mu.Unlock()

	owner, err := j.svc.owner("research")
	if err != nil {
		j.recordSaveErr(err)
		return nil, err
	}

	rec, err := j.svc.api.SaveReport(ctx, client.SaveReportRequest{
		UserID:       owner,
		ProspectID:   subject.ProspectID,
		ProspectName: subject.Name,
		Company:      subject.Company,
		Report:       doc.encode(),
	})
	if err != nil {
		j.recordSaveErr(err)
		j.svc.notices.Post(notice.Error("research", fmt.Errorf("saving report: %w", err), true))
		return nil, fmt.Errorf("saving report: %w", err)
	}

	j.mu.Lock()
	j.saved = rec
	j.saveErr = nil
	j.mu.Unlock()
	j.svc.logger.Info("report saved", "job_id", j.id, "report_id", rec.ID)
	return rec, nil
}

func (j *Job) recordSaveErr(err error) {
	j.mu.Lock()
	j.saveErr = err
	j.mu.Unlock()
}

// Dismiss drops any result and returns the job to idle. It cannot interrupt
// a generation in flight.
func (j *Job) Dismiss() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateGenerating {
		return ErrGenerating
	}
	j.state = StateIdle
	j.doc = nil
	j.err = nil
	j.saveErr = nil
	j.saved = nil
	return nil
}
