// ABOUTME: Deep-research generation and answer-generation endpoints
// ABOUTME: Both are slow calls issued from background goroutines

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

// ResearchRequest is the wire body of POST /research-prospect.
type ResearchRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Title          string `json:"title,omitempty"`
	Company        string `json:"company,omitempty"`
	CompanyWebsite string `json:"company_website,omitempty"`
	LinkedInURL    string `json:"linkedin_url,omitempty"`
}

// ResearchResponse is the body of POST /research-prospect. Report is left
// undecoded; its shape varies. See ParseResearchResponse.
type ResearchResponse struct {
	Success bool            `json:"success"`
	Report  json.RawMessage `json:"report,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// AnswerRequest is the wire body of POST /answer.
type AnswerRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
	Scope     string `json:"scope"`
}

// AnswerResponse is the body of POST /answer.
type AnswerResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"sessionId,omitempty"`
}

// ResearchProspect asks the backend to generate a research report. A
// {success:false} body is returned as-is; only transport and status failures
// are errors.
func (c *Client) ResearchProspect(ctx context.Context, req ResearchRequest) (*ResearchResponse, error) {
	var raw []byte
	if err := c.do(ctx, call{
		op:     "research-prospect",
		method: http.MethodPost,
		base:   c.baseURL,
		path:   "/research-prospect",
		in:     req,
		raw:    &raw,
	}); err != nil {
		return nil, err
	}
	return ParseResearchResponse(raw), nil
}

// ParseResearchResponse interprets a research body. The call failed only when
// the body is empty or is an object with "success": false or a non-empty
// "error". Otherwise Report holds the "report" member, or the whole body when
// there is none, so bare strings, {"research_report": ...} and bodies that are
// not JSON at all reach the normalizer intact.
func ParseResearchResponse(raw []byte) *ResearchResponse {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &ResearchResponse{Error: "empty response"}
	}
	resp := &ResearchResponse{Success: true, Report: json.RawMessage(trimmed)}

	var fields map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
		return resp
	}

	if r, ok := fields["report"]; ok {
		resp.Report = r
	}
	if string(bytes.TrimSpace(fields["success"])) == "false" {
		resp.Success = false
	}
	if e := bytes.TrimSpace(fields["error"]); len(e) > 0 && string(e) != "null" {
		var msg string
		if json.Unmarshal(e, &msg) != nil {
			msg = string(e)
		}
		if msg != "" {
			resp.Success = false
			resp.Error = msg
		}
	}
	if !resp.Success {
		resp.Report = nil
	}
	return resp
}

// Answer asks the backend to answer a question within a session. requestID is
// echoed in the X-Request-ID header.
func (c *Client) Answer(ctx context.Context, req AnswerRequest, requestID string) (*AnswerResponse, error) {
	var resp AnswerResponse
	if err := c.do(ctx, call{
		op:        "answer",
		method:    http.MethodPost,
		base:      c.baseURL,
		path:      "/answer",
		in:        req,
		out:       &resp,
		requestID: requestID,
	}); err != nil {
		return nil, err
	}
	return &resp, nil
}
