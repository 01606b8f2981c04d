// ABOUTME: Workspace tools exposed over MCP: prospect search, saved prospects and research reports
// ABOUTME: Each tool decodes its JSON arguments and delegates to the prospect or research services

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/2389/scout-desk/internal/prospect"
	"github.com/2389/scout-desk/internal/research"
)

var (
	// ErrToolNotFound is returned for a tools/call naming an unknown tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidArguments is returned when a tool's arguments do not decode
	// or fail validation.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Prospects is the search side of the workspace.
type Prospects interface {
	Search(ctx context.Context, c prospect.Criteria) (*prospect.Result, error)
	SearchCompanies(ctx context.Context, c prospect.CompanyCriteria) (*prospect.CompanyResult, error)
	ListSaved(ctx context.Context) (*prospect.Saved, error)
	Credits() prospect.CreditBalance
}

// Research is the report side of the workspace.
type Research interface {
	Open() *research.Job
	Job(id string) (*research.Job, error)
	Discard(id string) error
	Reports() *research.Reports
}

// Tool is one callable tool.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage

	call func(ctx context.Context, args json.RawMessage) (any, error)
}

// Toolset holds the tools an MCP server offers.
type Toolset struct {
	tools map[string]Tool
}

// SearchResult is a people search as returned to MCP clients.
type SearchResult struct {
	*prospect.Result
	Degraded bool `json:"degraded"`
}

// CompanySearchResult is an organization search as returned to MCP clients.
type CompanySearchResult struct {
	*prospect.CompanyResult
	Degraded bool `json:"degraded"`
}

// ResearchResult is a generated report awaiting save or discard.
type ResearchResult struct {
	JobID    string `json:"job_id"`
	Markdown string `json:"markdown"`
	Fallback bool   `json:"fallback,omitempty"`
}

type jobArgs struct {
	JobID string `json:"job_id"`
}

const (
	emptySchema = `{"type":"object","properties":{}}`
	jobSchema   = `{"type":"object","properties":{"job_id":{"type":"string"}},"required":["job_id"]}`

	searchSchema = `{"type":"object","properties":{
		"person_titles":{"type":"array","items":{"type":"string"}},
		"seniorities":{"type":"array","items":{"type":"string"}},
		"person_locations":{"type":"array","items":{"type":"string"}},
		"organization_locations":{"type":"array","items":{"type":"string"}},
		"organization_domains":{"type":"array","items":{"type":"string"}},
		"company_sizes":{"type":"array","items":{"type":"string"},"description":"employee ranges such as \"51,200\""},
		"departments":{"type":"array","items":{"type":"string"}},
		"industries":{"type":"array","items":{"type":"string"}},
		"email_status":{"type":"array","items":{"type":"string"}},
		"keywords":{"type":"string"},
		"page":{"type":"integer","minimum":1},
		"per_page":{"type":"integer","minimum":1,"maximum":50}
	}}`

	companySchema = `{"type":"object","properties":{
		"name":{"type":"string"},
		"organization_locations":{"type":"array","items":{"type":"string"}},
		"company_sizes":{"type":"array","items":{"type":"string"}},
		"revenue_min":{"type":"integer"},
		"revenue_max":{"type":"integer"},
		"industries":{"type":"array","items":{"type":"string"}},
		"technologies":{"type":"array","items":{"type":"string"}},
		"page":{"type":"integer","minimum":1},
		"per_page":{"type":"integer","minimum":1,"maximum":50}
	}}`

	subjectSchema = `{"type":"object","properties":{
		"prospect_id":{"type":"string"},
		"name":{"type":"string"},
		"email":{"type":"string"},
		"phone":{"type":"string"},
		"title":{"type":"string"},
		"company":{"type":"string"},
		"company_website":{"type":"string"},
		"linkedin_url":{"type":"string"}
	},"required":["name"]}`
)

// NewToolset builds the workspace tools over the given services.
func NewToolset(p Prospects, r Research) *Toolset {
	ts := &Toolset{tools: make(map[string]Tool)}

	ts.add(Tool{
		Name:        "search_people",
		Description: "Search the contact directory for people. Results flagged degraded carry a warning and may be partial.",
		InputSchema: compact(searchSchema),
		call: func(ctx context.Context, args json.RawMessage) (any, error) {
			c, err := decodeArgs[prospect.Criteria](args)
			if err != nil {
				return nil, err
			}
			res, err := p.Search(ctx, c)
			if err != nil {
				return nil, err
			}
			return SearchResult{Result: res, Degraded: res.Degraded()}, nil
		},
	})

	ts.add(Tool{
		Name:        "search_companies",
		Description: "Search the contact directory for organizations.",
		InputSchema: compact(companySchema),
		call: func(ctx context.Context, args json.RawMessage) (any, error) {
			c, err := decodeArgs[prospect.CompanyCriteria](args)
			if err != nil {
				return nil, err
			}
			res, err := p.SearchCompanies(ctx, c)
			if err != nil {
				return nil, err
			}
			return CompanySearchResult{CompanyResult: res, Degraded: res.Degraded()}, nil
		},
	})

	ts.add(Tool{
		Name:        "list_saved_prospects",
		Description: "List the analyst's saved people and companies.",
		InputSchema: compact(emptySchema),
		call: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return p.ListSaved(ctx)
		},
	})

	ts.add(Tool{
		Name:        "credit_balance",
		Description: "Report the most recent search credit usage.",
		InputSchema: compact(emptySchema),
		call: func(context.Context, json.RawMessage) (any, error) {
			return p.Credits(), nil
		},
	})

	ts.add(Tool{
		Name:        "research_prospect",
		Description: "Generate a research report for a prospect. The report is held for review until save_research or discard_research is called with the returned job_id.",
		InputSchema: compact(subjectSchema),
		call: func(ctx context.Context, args json.RawMessage) (any, error) {
			subject, err := decodeArgs[research.Subject](args)
			if err != nil {
				return nil, err
			}
			job := r.Open()
			doc, err := job.Generate(ctx, subject)
			if err != nil {
				_ = r.Discard(job.ID())
				if errors.Is(err, research.ErrInvalidSubject) {
					return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
				}
				return nil, err
			}
			return ResearchResult{JobID: job.ID(), Markdown: doc.Markdown, Fallback: doc.Fallback}, nil
		},
	})

	ts.add(Tool{
		Name:        "save_research",
		Description: "Save a generated report to the analyst's reports and close its job.",
		InputSchema: compact(jobSchema),
		call: func(ctx context.Context, args json.RawMessage) (any, error) {
			job, err := lookupJob(r, args)
			if err != nil {
				return nil, err
			}
			rec, err := job.Save(ctx)
			if err != nil {
				return nil, err
			}
			_ = r.Discard(job.ID())
			return rec, nil
		},
	})

	ts.add(Tool{
		Name:        "discard_research",
		Description: "Throw away a generated report without saving it.",
		InputSchema: compact(jobSchema),
		call: func(_ context.Context, args json.RawMessage) (any, error) {
			job, err := lookupJob(r, args)
			if err != nil {
				return nil, err
			}
			if err := job.Dismiss(); err != nil {
				return nil, err
			}
			if err := r.Discard(job.ID()); err != nil {
				return nil, err
			}
			return map[string]string{"job_id": job.ID(), "status": "discarded"}, nil
		},
	})

	ts.add(Tool{
		Name:        "list_reports",
		Description: "List the analyst's saved research reports, newest first.",
		InputSchema: compact(emptySchema),
		call: func(ctx context.Context, _ json.RawMessage) (any, error) {
			reports, err := r.Reports().List(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]reportSummary, 0, len(reports))
			for _, rep := range reports {
				out = append(out, reportSummary{
					ID:           rep.ID,
					ProspectName: rep.ProspectName,
					Company:      rep.Company,
					Markdown:     rep.Document.Markdown,
					CreatedAt:    rep.CreatedAt.Format(time.RFC3339),
				})
			}
			return out, nil
		},
	})

	return ts
}

type reportSummary struct {
	ID           string `json:"id"`
	ProspectName string `json:"prospect_name"`
	Company      string `json:"company,omitempty"`
	Markdown     string `json:"markdown"`
	CreatedAt    string `json:"created_at"`
}

func (ts *Toolset) add(t Tool) {
	ts.tools[t.Name] = t
}

// List returns the tools sorted by name.
func (ts *Toolset) List() []Tool {
	out := make([]Tool, 0, len(ts.tools))
	for _, t := range ts.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call runs the named tool.
func (ts *Toolset) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := ts.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.call(ctx, args)
}

func lookupJob(r Research, raw json.RawMessage) (*research.Job, error) {
	args, err := decodeArgs[jobArgs](raw)
	if err != nil {
		return nil, err
	}
	if args.JobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", ErrInvalidArguments)
	}
	job, err := r.Job(args.JobID)
	if errors.Is(err, research.ErrJobNotFound) {
		return nil, fmt.Errorf("%w: unknown job %s", ErrInvalidArguments, args.JobID)
	}
	return job, err
}

// decodeArgs decodes tool arguments strictly. Missing arguments decode to the zero value.
func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return v, nil
}

func compact(schema string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(schema)); err != nil {
		panic(fmt.Sprintf("mcp: bad tool schema: %v", err))
	}
	return buf.Bytes()
}
