// ABOUTME: Canonical research document and the normalizer for backend payload variants
// ABOUTME: Normalize is total: unrecognized shapes become a serialized fallback document

package research

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

// Section is one titled part of a report. The preamble before the first
// heading has an empty Title.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Document is a research report in canonical form.
type Document struct {
	Markdown string    `json:"markdown"`
	Sections []Section `json:"sections"`
	// Fallback is set when the payload had no recognized shape and Markdown
	// holds its serialized form.
	Fallback bool `json:"fallback,omitempty"`
}

var (
	numberedHeading = regexp.MustCompile(`^\d{1,2}[.)]\s+(.+?)\s*$`)
	listSibling     = regexp.MustCompile(`^\d{1,3}[.)]\s+`)
	markdownHeading = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.+?)\s*#*\s*$`)
)

const maxHeadingLen = 80

// Normalize maps every payload shape the backend produces to a Document:
//
//	"text"
//	{"research_report": "text"}
//	{"report": {"research_report": "text"}}
//	{"report": "text"}
//
// Anything else is kept as indented JSON (or raw text when it is not JSON)
// with Fallback set.
func Normalize(payload []byte) Document {
	trimmed := bytes.TrimSpace(payload)

	var v any
	if len(trimmed) == 0 || json.Unmarshal(trimmed, &v) != nil {
		return fallback(string(trimmed))
	}

	if text, ok := reportText(v); ok {
		if storedFallback(v) {
			return fallback(text)
		}
		return FromMarkdown(text)
	}

	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fallback(string(trimmed))
	}
	return fallback(string(pretty))
}

func reportText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any:
		if s, ok := t["research_report"].(string); ok {
			return s, true
		}
		switch r := t["report"].(type) {
		case string:
			return r, true
		case map[string]any:
			if s, ok := r["research_report"].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// storedFallback reports whether v is a saved fallback document.
func storedFallback(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	flag, _ := m["fallback"].(bool)
	return flag
}

// FromMarkdown builds a Document from report text.
func FromMarkdown(text string) Document {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	return Document{Markdown: text, Sections: split(text)}
}

func fallback(text string) Document {
	return Document{
		Markdown: text,
		Sections: []Section{{Body: text}},
		Fallback: true,
	}
}

// split cuts text into sections at numbered lines ("1. Overview") and
// markdown headings ("## Overview"). A numbered line is a heading only when it
// is unindented and its nearest non-blank neighbours are not unindented
// numbered items, so ordinary numbered lists stay in the body.
func split(text string) []Section {
	sections := []Section{}
	var (
		title   string
		body    []string
		started bool
	)
	flush := func() {
		b := strings.Join(trimBlank(body), "\n")
		if started || b != "" {
			sections = append(sections, Section{Title: title, Body: b})
		}
		body = body[:0]
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if h, ok := heading(lines, i); ok {
			flush()
			title = h
			started = true
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

func heading(lines []string, i int) (string, bool) {
	line := lines[i]
	var m []string
	if m = markdownHeading.FindStringSubmatch(line); m == nil {
		m = numberedHeading.FindStringSubmatch(line)
		if m != nil && (listSibling.MatchString(neighbour(lines, i, -1)) || listSibling.MatchString(neighbour(lines, i, 1))) {
			return "", false
		}
	}
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(strings.Trim(m[1], "*_"))
	title = strings.TrimSuffix(title, ":")
	if title == "" || len(title) > maxHeadingLen {
		return "", false
	}
	return title, true
}

// trimBlank drops leading and trailing blank lines, keeping indentation.
func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return lines
}

// neighbour returns the nearest non-blank line before (step -1) or after
// (step 1) lines[i], or "".
func neighbour(lines []string, i, step int) string {
	for j := i + step; j >= 0 && j < len(lines); j += step {
		if strings.TrimSpace(lines[j]) != "" {
			return lines[j]
		}
	}
	return ""
}

// HTML renders the document. Fallback documents render as a code block.
func (d Document) HTML() (string, error) {
	src := d.Markdown
	if d.Fallback {
		src = "```\n" + d.Markdown + "\n```"
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// encode produces the payload stored with a saved report. It round-trips
// through Normalize, Fallback included.
func (d Document) encode() json.RawMessage {
	payload := map[string]any{"research_report": d.Markdown}
	if d.Fallback {
		payload["fallback"] = true
	}
	data, _ := json.Marshal(payload)
	return data
}
