// ABOUTME: Research job controller: one generation per modal invocation, then review and save
// ABOUTME: A failed save keeps the generated document so only the save has to be retried

package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/notice"
)

var (
	// ErrGenerating is returned when a job is asked to generate while a
	// generation is already in flight.
	ErrGenerating = errors.New("a report is already being generated")
	// ErrHasResult is returned when a job in review is asked to generate again.
	ErrHasResult = errors.New("job already holds a report; dismiss it first")
	// ErrNotInReview is returned by Save when there is no report to save.
	ErrNotInReview = errors.New("no generated report to save")
	// ErrInvalidSubject is returned when the subject has no name.
	ErrInvalidSubject = errors.New("research subject needs a name")
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("research job not found")
)

// State is where a job is in its lifecycle.
type State string

// States
const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateReview     State = "review"
	StateFailed     State = "idle-with-error"
)

// API is the part of the backend client the research controller calls.
type API interface {
	ResearchProspect(ctx context.Context, req client.ResearchRequest) (*client.ResearchResponse, error)
	SaveReport(ctx context.Context, req client.SaveReportRequest) (*client.ReportRecord, error)
	ListReports(ctx context.Context, userID string) ([]client.ReportRecord, error)
	DeleteReport(ctx context.Context, id string) error
}

// OwnerResolver resolves the owner id of the active credential.
type OwnerResolver interface {
	OwnerID() (string, error)
}

// Subject is the prospect a report is generated for.
type Subject struct {
	ProspectID     string `json:"prospect_id,omitempty"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Title          string `json:"title,omitempty"`
	Company        string `json:"company,omitempty"`
	CompanyWebsite string `json:"company_website,omitempty"`
	LinkedInURL    string `json:"linkedin_url,omitempty"`
}

func (s Subject) request() (client.ResearchRequest, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return client.ResearchRequest{}, ErrInvalidSubject
	}
	req := client.ResearchRequest{
		Name:           name,
		Title:          s.Title,
		Company:        s.Company,
		CompanyWebsite: s.CompanyWebsite,
		LinkedInURL:    s.LinkedInURL,
	}
	// One contact channel: email, else phone.
	if s.Email != "" {
		req.Email = s.Email
	} else {
		req.Phone = s.Phone
	}
	return req, nil
}

// Options configures a Service.
type Options struct {
	API      API
	Identity OwnerResolver
	Notices  notice.Poster
	Logger   *slog.Logger
}

// Service hands out research jobs and lists saved reports.
type Service struct {
	api      API
	identity OwnerResolver
	notices  notice.Poster
	logger   *slog.Logger

	// ctx bounds background generations started with StartGenerate.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewService creates a Service. Call Close to stop background generations.
func NewService(opts Options) *Service {
	if opts.Notices == nil {
		opts.Notices = notice.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		api:      opts.API,
		identity: opts.Identity,
		notices:  opts.Notices,
		logger:   opts.Logger.With("component", "research"),
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*Job),
	}
}

// Open starts a new job in the idle state.
func (s *Service) Open() *Job {
	j := &Job{
		id:      uuid.New().String(),
		svc:     s,
		state:   StateIdle,
		created: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()
	s.logger.Debug("research job opened", "job_id", j.id)
	return j
}

// Job returns an open job.
func (s *Service) Job(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// Discard forgets a job. A generation still in flight finishes against the
// orphaned job and is never shown.
func (s *Service) Discard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// Close cancels background generations and waits for them.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) owner(source string) (string, error) {
	if s.identity == nil {
		s.notices.Post(notice.Reauth(source))
		return "", auth.ErrIdentity
	}
	owner, err := s.identity.OwnerID()
	if err != nil {
		s.notices.Post(notice.Reauth(source))
		if !errors.Is(err, auth.ErrIdentity) {
			err = fmt.Errorf("%w: %w", auth.ErrIdentity, err)
		}
		return "", err
	}
	return owner, nil
}
