// ABOUTME: Minimal fake research backend for local runs and E2E testing
// ABOUTME: Usage: fake-directory [-addr localhost:8081] [-delay 500ms]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/2389/scout-desk/internal/client"
)

func main() {
	addr := flag.String("addr", "localhost:8081", "HTTP listen address")
	delay := flag.Duration("delay", 500*time.Millisecond, "artificial latency for answers and research")
	total := flag.Int("credits", 1000, "credit allowance reported on searches")
	flag.Parse()

	if err := run(*addr, *delay, *total); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, delay time.Duration, total int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	b := &backend{delay: delay, total: total}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Post("/search", b.search)
	r.Post("/company-search", b.companySearch)
	r.Post("/research-prospect", b.research)
	r.Post("/answer", b.answer)

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "fake research backend listening on %s\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

type backend struct {
	delay time.Duration
	total int
	used  atomic.Int64
}

func (b *backend) credits(n int) client.Credits {
	return client.Credits{Used: int(b.used.Add(int64(n))), Total: b.total}
}

func (b *backend) search(w http.ResponseWriter, r *http.Request) {
	var req client.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	contacts := []client.Contact{
		{
			ID: "p-1", Name: "Ada Mensah", FirstName: "Ada", LastName: "Mensah",
			Title: "Chief Financial Officer", OrganizationName: "MTN Group",
			Organization: &client.ContactOrganization{ID: "org-1", Name: "MTN Group", WebsiteURL: "https://mtn.com"},
			Email: "ada.mensah@example.com", City: "Johannesburg", Country: "South Africa",
		},
		{
			ID: "p-2", Name: "Kofi Asante", FirstName: "Kofi", LastName: "Asante",
			Title: "Head of Procurement", OrganizationName: "Safaricom",
			PhoneNumbers: []client.PhoneNumber{{RawNumber: "+254 700 000000", Type: "work_direct"}},
			City: "Nairobi", Country: "Kenya",
		},
	}
	if req.PerPage > 0 && req.PerPage < len(contacts) {
		contacts = contacts[:req.PerPage]
	}

	resp := client.SearchResponse{Contacts: contacts, Credits: b.credits(len(contacts))}
	if strings.Contains(strings.ToLower(req.Keywords), "degraded") {
		resp.Warning = "enrichment unavailable; emails omitted"
	}
	writeJSON(w, resp)
}

func (b *backend) companySearch(w http.ResponseWriter, r *http.Request) {
	var req client.CompanySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	orgs := []client.Organization{
		{ID: "org-1", Name: "MTN Group", WebsiteURL: "https://mtn.com", Industry: "telecommunications",
			EstimatedNumEmployees: 16000, City: "Johannesburg", Country: "South Africa", FoundedYear: 1994},
		{ID: "org-2", Name: "Safaricom", WebsiteURL: "https://safaricom.co.ke", Industry: "telecommunications",
			EstimatedNumEmployees: 6000, City: "Nairobi", Country: "Kenya", FoundedYear: 1997},
	}
	if req.PerPage > 0 && req.PerPage < len(orgs) {
		orgs = orgs[:req.PerPage]
	}
	writeJSON(w, client.CompanySearchResponse{Organizations: orgs, Credits: b.credits(len(orgs))})
}

func (b *backend) research(w http.ResponseWriter, r *http.Request) {
	var req client.ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !b.wait(r.Context()) {
		return
	}

	if req.Name == "" {
		writeJSON(w, client.ResearchResponse{Success: false, Error: "name is required"})
		return
	}

	report := fmt.Sprintf(`1. Overview
%s is %s at %s.

2. Recent Activity
No public announcements in the last quarter.

3. Talking Points
- Cost pressure on infrastructure spend
- Expansion into new markets
`, req.Name, orDefault(req.Title, "a contact"), orDefault(req.Company, "an undisclosed company"))

	raw, _ := json.Marshal(map[string]string{"research_report": report})
	writeJSON(w, client.ResearchResponse{Success: true, Report: raw})
}

func (b *backend) answer(w http.ResponseWriter, r *http.Request) {
	var req client.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !b.wait(r.Context()) {
		return
	}

	log.Printf("answering [%s] in session %s: %s", r.Header.Get("X-Request-ID"), req.SessionID, req.Question)
	writeJSON(w, client.AnswerResponse{Answer: answerFor(req.Question), SessionID: req.SessionID})
}

// wait sleeps for the configured latency; false means the caller went away.
func (b *backend) wait(ctx context.Context) bool {
	select {
	case <-time.After(b.delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func answerFor(question string) string {
	lower := strings.ToLower(question)
	if strings.Contains(lower, "revenue") {
		return "Reported revenue for the most recent fiscal year:\n\n- **Group:** figures are illustrative\n- **Growth:** steady year over year\n"
	}
	return fmt.Sprintf("You asked: **%s**\n\nThis fake backend has no data, but the workspace round trip works.", question)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode error: %v", err)
	}
}
