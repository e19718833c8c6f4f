// Package incident defines the normalized incident model and its conversion
// from raw provider payloads into deterministic, model-ready prompt text.
package incident

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Severity is the ordered incident severity scale.
type Severity int

const (
	SeverityInformational Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

var severityNames = map[Severity]string{
	SeverityInformational: "Informational",
	SeverityLow:           "Low",
	SeverityMedium:        "Medium",
	SeverityHigh:          "High",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity maps a provider severity string onto the ordered scale.
// Matching is case-insensitive.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "informational":
		return SeverityInformational, true
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	}
	return 0, false
}

// Status tracks where an incident is in the case-management lifecycle.
type Status string

const (
	StatusNew    Status = "New"
	StatusActive Status = "Active"
	StatusClosed Status = "Closed"
)

// ParseStatus maps a provider status string onto the Status enum.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new":
		return StatusNew, true
	case "active":
		return StatusActive, true
	case "closed":
		return StatusClosed, true
	}
	return "", false
}

// Incident is the normalized representation of one provider incident.
// ID plus LastModified together determine whether re-processing is needed.
type Incident struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Severity     Severity        `json:"severity"`
	Status       Status          `json:"status"`
	Entities     []string        `json:"entities,omitempty"`
	CreatedAt    time.Time       `json:"created_at,omitempty"`
	LastModified time.Time       `json:"last_modified,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// MalformedError reports a raw payload that violates the incident schema.
type MalformedError struct {
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed incident: field %q %s", e.Field, e.Reason)
}

// payload is the provider wire shape (Sentinel ARM style: identifier at the
// top level, everything else under properties).
type payload struct {
	Name       string `json:"name"`
	Properties struct {
		Title           string          `json:"title"`
		Description     string          `json:"description"`
		Severity        json.RawMessage `json:"severity"`
		Status          json.RawMessage `json:"status"`
		CreatedTime     time.Time       `json:"createdTimeUtc"`
		LastModified    time.Time       `json:"lastModifiedTimeUtc"`
		RelatedEntities []string        `json:"relatedEntities"`
	} `json:"properties"`
}

// Normalize parses a raw provider payload into an Incident. It fails with a
// *MalformedError when id, status or severity are missing or of the wrong
// type; unknown optional fields are ignored.
func Normalize(raw json.RawMessage) (*Incident, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &MalformedError{Field: "(payload)", Reason: "is not valid JSON: " + err.Error()}
	}

	if p.Name == "" {
		return nil, &MalformedError{Field: "name", Reason: "is missing or empty"}
	}

	sevStr, err := stringField(p.Properties.Severity)
	if err != nil {
		return nil, &MalformedError{Field: "properties.severity", Reason: err.Error()}
	}
	sev, ok := ParseSeverity(sevStr)
	if !ok {
		return nil, &MalformedError{Field: "properties.severity", Reason: fmt.Sprintf("has unknown value %q", sevStr)}
	}

	statusStr, err := stringField(p.Properties.Status)
	if err != nil {
		return nil, &MalformedError{Field: "properties.status", Reason: err.Error()}
	}
	status, ok := ParseStatus(statusStr)
	if !ok {
		return nil, &MalformedError{Field: "properties.status", Reason: fmt.Sprintf("has unknown value %q", statusStr)}
	}

	entities := append([]string(nil), p.Properties.RelatedEntities...)
	sort.Strings(entities)

	return &Incident{
		ID:           p.Name,
		Title:        p.Properties.Title,
		Description:  p.Properties.Description,
		Severity:     sev,
		Status:       status,
		Entities:     entities,
		CreatedAt:    p.Properties.CreatedTime,
		LastModified: p.Properties.LastModified,
		Raw:          raw,
	}, nil
}

func stringField(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("is missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("is not a string")
	}
	if s == "" {
		return "", fmt.Errorf("is empty")
	}
	return s, nil
}

// AsPrompt serializes the incident into bounded prompt text for the
// reasoning backend. The output is deterministic: the same incident yields
// byte-identical text, so prompts are safe to cache and assert on. The
// description is truncated beyond maxDescLen characters; the entity list is
// preserved verbatim.
func (i *Incident) AsPrompt(maxDescLen int) string {
	desc := i.Description
	if desc == "" {
		desc = "(no description)"
	}
	if maxDescLen > 0 && len(desc) > maxDescLen {
		desc = desc[:maxDescLen] + " [truncated]"
	}

	title := i.Title
	if title == "" {
		title = "(no title)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s\n", i.Severity, title, desc)
	fmt.Fprintf(&b, "Incident ID: %s\n", i.ID)
	fmt.Fprintf(&b, "Status: %s\n", i.Status)
	if len(i.Entities) > 0 {
		fmt.Fprintf(&b, "Entities:\n")
		for _, e := range i.Entities {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return b.String()
}
