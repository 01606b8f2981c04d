// ABOUTME: People and organization search against the contact directory
// ABOUTME: Responses carry credit usage and an optional degradation warning

package client

import (
	"context"
	"encoding/json"
	"net/http"
)

// SearchRequest is the wire body of POST /search.
type SearchRequest struct {
	PersonTitles          []string `json:"person_titles,omitempty"`
	PersonSeniorities     []string `json:"person_seniorities,omitempty"`
	PersonLocations       []string `json:"person_locations,omitempty"`
	OrganizationLocations []string `json:"organization_locations,omitempty"`
	OrganizationDomains   []string `json:"q_organization_domains_list,omitempty"`
	EmployeeRanges        []string `json:"organization_num_employees_ranges,omitempty"`
	Departments           []string `json:"person_department_or_subdepartments,omitempty"`
	IndustryTags          []string `json:"q_organization_keyword_tags,omitempty"`
	EmailStatus           []string `json:"contact_email_status,omitempty"`
	Keywords              string   `json:"q_keywords,omitempty"`
	Page                  int      `json:"page,omitempty"`
	PerPage               int      `json:"per_page"`
}

// CompanySearchRequest is the wire body of POST /company-search.
type CompanySearchRequest struct {
	Name                  string        `json:"q_organization_name,omitempty"`
	OrganizationLocations []string      `json:"organization_locations,omitempty"`
	EmployeeRanges        []string      `json:"organization_num_employees_ranges,omitempty"`
	Revenue               *RevenueRange `json:"revenue_range,omitempty"`
	IndustryTags          []string      `json:"q_organization_keyword_tags,omitempty"`
	Technologies          []string      `json:"currently_using_any_of_technology_uids,omitempty"`
	Page                  int           `json:"page,omitempty"`
	PerPage               int           `json:"per_page"`
}

// RevenueRange bounds annual revenue in a company search.
type RevenueRange struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// PhoneNumber is one phone entry on a contact.
type PhoneNumber struct {
	RawNumber    string `json:"raw_number"`
	SanitizedNum string `json:"sanitized_number,omitempty"`
	Type         string `json:"type,omitempty"`
}

// ContactOrganization is the employer embedded in a contact.
type ContactOrganization struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	WebsiteURL string `json:"website_url,omitempty"`
}

// Contact is one person returned by a search. Raw keeps the full payload as
// received so it can be saved without loss.
type Contact struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	FirstName        string               `json:"first_name"`
	LastName         string               `json:"last_name"`
	Title            string               `json:"title"`
	OrganizationName string               `json:"organization_name"`
	Organization     *ContactOrganization `json:"organization,omitempty"`
	Email            string               `json:"email"`
	PhoneNumbers     []PhoneNumber        `json:"phone_numbers"`
	City             string               `json:"city"`
	State            string               `json:"state"`
	Country          string               `json:"country"`
	LinkedInURL      string               `json:"linkedin_url"`
	PhotoURL         string               `json:"photo_url"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes a contact and keeps the raw payload.
func (c *Contact) UnmarshalJSON(data []byte) error {
	type plain Contact
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Contact(p)
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Organization is one company returned by a company search.
type Organization struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	WebsiteURL            string `json:"website_url"`
	Industry              string `json:"industry"`
	EstimatedNumEmployees int    `json:"estimated_num_employees"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	Country               string `json:"country"`
	LinkedInURL           string `json:"linkedin_url"`
	LogoURL               string `json:"logo_url"`
	FoundedYear           int    `json:"founded_year"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes an organization and keeps the raw payload.
func (o *Organization) UnmarshalJSON(data []byte) error {
	type plain Organization
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Organization(p)
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Credits is the credit accounting carried on search responses. Zero means
// the backend did not report the value.
type Credits struct {
	Used  int `json:"credits_used"`
	Total int `json:"credits_total,omitempty"`
}

// SearchResponse is the body of a successful POST /search.
type SearchResponse struct {
	Contacts []Contact `json:"contacts"`
	Credits
	Warning string `json:"warning,omitempty"`
}

// CompanySearchResponse is the body of a successful POST /company-search.
type CompanySearchResponse struct {
	Organizations []Organization `json:"organizations"`
	Credits
	Warning string `json:"warning,omitempty"`
}

// Search runs a people search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.do(ctx, call{
		op:     "search",
		method: http.MethodPost,
		base:   c.baseURL,
		path:   "/search",
		in:     req,
		out:    &resp,
	}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchCompanies runs an organization search.
func (c *Client) SearchCompanies(ctx context.Context, req CompanySearchRequest) (*CompanySearchResponse, error) {
	var resp CompanySearchResponse
	if err := c.do(ctx, call{
		op:     "company-search",
		method: http.MethodPost,
		base:   c.baseURL,
		path:   "/company-search",
		in:     req,
		out:    &resp,
	}); err != nil {
		return nil, err
	}
	return &resp, nil
}
