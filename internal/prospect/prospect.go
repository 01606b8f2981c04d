// ABOUTME: Prospect search orchestrator over the contact directory
// ABOUTME: Owns the credit balance and turns degraded responses into warnings, not errors

package prospect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/scout-desk/internal/client"
	"github.com/2389/scout-desk/internal/config"
	"github.com/2389/scout-desk/internal/notice"
)

// DefaultPerPage is used when a search does not ask for a page size.
const DefaultPerPage = 20

// API is the part of the backend client the orchestrator calls.
type API interface {
	Search(ctx context.Context, req client.SearchRequest) (*client.SearchResponse, error)
	SearchCompanies(ctx context.Context, req client.CompanySearchRequest) (*client.CompanySearchResponse, error)
	SaveProspect(ctx context.Context, req client.SaveProspectRequest) (*client.SavedRecord, error)
	ListProspects(ctx context.Context, userID string) (*client.SavedList, error)
}

// OwnerResolver resolves the owner id of the active credential.
type OwnerResolver interface {
	OwnerID() (string, error)
}

// Criteria narrows a people search. Every field is optional.
type Criteria struct {
	PersonTitles          []string `json:"person_titles,omitempty"`
	Seniorities           []string `json:"seniorities,omitempty"`
	PersonLocations       []string `json:"person_locations,omitempty"`
	OrganizationLocations []string `json:"organization_locations,omitempty"`
	OrganizationDomains   []string `json:"organization_domains,omitempty"`
	CompanySizes          []string `json:"company_sizes,omitempty"` // e.g. "1,10", "51,200"
	Departments           []string `json:"departments,omitempty"`
	Industries            []string `json:"industries,omitempty"`
	EmailStatus           []string `json:"email_status,omitempty"`
	Keywords              string   `json:"keywords,omitempty"`
	Page                  int      `json:"page,omitempty"`
	PerPage               int      `json:"per_page,omitempty"`
}

// CompanyCriteria narrows an organization search. Every field is optional.
type CompanyCriteria struct {
	Name                  string   `json:"name,omitempty"`
	OrganizationLocations []string `json:"organization_locations,omitempty"`
	CompanySizes          []string `json:"company_sizes,omitempty"`
	RevenueMin            *int64   `json:"revenue_min,omitempty"`
	RevenueMax            *int64   `json:"revenue_max,omitempty"`
	Industries            []string `json:"industries,omitempty"`
	Technologies          []string `json:"technologies,omitempty"`
	Page                  int      `json:"page,omitempty"`
	PerPage               int      `json:"per_page,omitempty"`
}

// Result is the outcome of a people search. A Result with a Warning is
// degraded: Prospects may be empty or partial.
type Result struct {
	Prospects   []client.Contact `json:"prospects"`
	CreditsUsed int              `json:"credits_used"`
	Warning     string           `json:"warning,omitempty"`
	Page        int              `json:"page"`
	PerPage     int              `json:"per_page"`
}

// Degraded reports whether the backend flagged the result.
func (r *Result) Degraded() bool { return r.Warning != "" }

// CompanyResult is the outcome of an organization search.
type CompanyResult struct {
	Companies   []client.Organization `json:"companies"`
	CreditsUsed int                   `json:"credits_used"`
	Warning     string                `json:"warning,omitempty"`
	Page        int                   `json:"page"`
	PerPage     int                   `json:"per_page"`
}

// Degraded reports whether the backend flagged the result.
func (r *CompanyResult) Degraded() bool { return r.Warning != "" }

// CreditBalance is the most recent credit accounting seen on a response.
type CreditBalance struct {
	Used      int       `json:"credits_used"`
	Total     int       `json:"credits_total,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Options configures an Orchestrator.
type Options struct {
	API             API
	Identity        OwnerResolver
	Notices         notice.Poster
	PageSizeCeiling int // 0 uses config.DefaultPageSizeCeiling
	Logger          *slog.Logger
}

// Orchestrator runs searches and saves against the backend.
type Orchestrator struct {
	api      API
	identity OwnerResolver
	notices  notice.Poster
	ceiling  int
	logger   *slog.Logger

	mu      sync.Mutex
	credits CreditBalance
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Notices == nil {
		opts.Notices = notice.Discard
	}
	if opts.PageSizeCeiling <= 0 {
		opts.PageSizeCeiling = config.DefaultPageSizeCeiling
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		api:      opts.API,
		identity: opts.Identity,
		notices:  opts.Notices,
		ceiling:  opts.PageSizeCeiling,
		logger:   opts.Logger.With("component", "prospect"),
	}
}

// Search runs a people search. Oversized pages are capped, not rejected.
func (o *Orchestrator) Search(ctx context.Context, c Criteria) (*Result, error) {
	page, perPage := o.paging(c.Page, c.PerPage)
	req := client.SearchRequest{
		PersonTitles:          c.PersonTitles,
		PersonSeniorities:     c.Seniorities,
		PersonLocations:       c.PersonLocations,
		OrganizationLocations: c.OrganizationLocations,
		OrganizationDomains:   c.OrganizationDomains,
		EmployeeRanges:        c.CompanySizes,
		Departments:           c.Departments,
		IndustryTags:          c.Industries,
		EmailStatus:           c.EmailStatus,
		Keywords:              c.Keywords,
		Page:                  page,
		PerPage:               perPage,
	}

	resp, err := o.api.Search(ctx, req)
	if err != nil {
		o.notices.Post(notice.Error("search", err, true))
		return nil, fmt.Errorf("searching prospects: %w", err)
	}

	o.observe(resp.Credits)
	result := &Result{
		Prospects:   resp.Contacts,
		CreditsUsed: resp.Used,
		Warning:     resp.Warning,
		Page:        page,
		PerPage:     perPage,
	}
	if result.Prospects == nil {
		result.Prospects = []client.Contact{}
	}
	if result.Degraded() {
		o.logger.Warn("degraded search result", "warning", result.Warning, "count", len(result.Prospects))
		o.notices.Post(notice.Warning("search", result.Warning))
	}
	return result, nil
}

// SearchCompanies runs an organization search with the same paging and
// warning rules as Search.
func (o *Orchestrator) SearchCompanies(ctx context.Context, c CompanyCriteria) (*CompanyResult, error) {
	page, perPage := o.paging(c.Page, c.PerPage)
	req := client.CompanySearchRequest{
		Name:                  c.Name,
		OrganizationLocations: c.OrganizationLocations,
		EmployeeRanges:        c.CompanySizes,
		IndustryTags:          c.Industries,
		Technologies:          c.Technologies,
		Page:                  page,
		PerPage:               perPage,
	}
	if c.RevenueMin != nil || c.RevenueMax != nil {
		req.Revenue = &client.RevenueRange{Min: c.RevenueMin, Max: c.RevenueMax}
	}

	resp, err := o.api.SearchCompanies(ctx, req)
	if err != nil {
		o.notices.Post(notice.Error("company-search", err, true))
		return nil, fmt.Errorf("searching companies: %w", err)
	}

	o.observe(resp.Credits)
	result := &CompanyResult{
		Companies:   resp.Organizations,
		CreditsUsed: resp.Used,
		Warning:     resp.Warning,
		Page:        page,
		PerPage:     perPage,
	}
	if result.Companies == nil {
		result.Companies = []client.Organization{}
	}
	if result.Degraded() {
		o.logger.Warn("degraded company search result", "warning", result.Warning, "count", len(result.Companies))
		o.notices.Post(notice.Warning("company-search", result.Warning))
	}
	return result, nil
}

// Credits returns the last reported credit balance.
func (o *Orchestrator) Credits() CreditBalance {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.credits
}

// observe records reported credit values. Zero means not reported and leaves
// the balance alone.
func (o *Orchestrator) observe(c client.Credits) {
	o.mu.Lock()
	defer o.mu.Unlock()
	changed := false
	if c.Used > 0 {
		o.credits.Used = c.Used
		changed = true
	}
	if c.Total > 0 {
		o.credits.Total = c.Total
		changed = true
	}
	if changed {
		o.credits.UpdatedAt = time.Now().UTC()
	}
}

func (o *Orchestrator) paging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > o.ceiling {
		o.logger.Debug("capping page size", "requested", perPage, "ceiling", o.ceiling)
		perPage = o.ceiling
	}
	return page, perPage
}

// payload returns the raw JSON of a search hit, re-encoding when the hit was
// built in code rather than decoded.
func payload(raw json.RawMessage, v any) (json.RawMessage, error) {
	if len(raw) > 0 {
		return raw, nil
	}
	return json.Marshal(v)
}
