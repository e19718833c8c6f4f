package incident

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func validPayload() string {
	return `{
		"name": "inc-001",
		"properties": {
			"title": "Test Incident",
			"description": "This is a test incident",
			"severity": "High",
			"status": "New",
			"createdTimeUtc": "2026-01-02T03:04:05Z",
			"lastModifiedTimeUtc": "2026-01-02T04:00:00Z",
			"relatedEntities": ["host-b", "host-a", "user@example.com"]
		}
	}`
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	inc, err := Normalize(json.RawMessage(validPayload()))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if inc.ID != "inc-001" {
		t.Errorf("ID = %q, want %q", inc.ID, "inc-001")
	}
	if inc.Title != "Test Incident" {
		t.Errorf("Title = %q, want %q", inc.Title, "Test Incident")
	}
	if inc.Severity != SeverityHigh {
		t.Errorf("Severity = %v, want %v", inc.Severity, SeverityHigh)
	}
	if inc.Status != StatusNew {
		t.Errorf("Status = %v, want %v", inc.Status, StatusNew)
	}
	wantCreated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !inc.CreatedAt.Equal(wantCreated) {
		t.Errorf("CreatedAt = %v, want %v", inc.CreatedAt, wantCreated)
	}
	// entities come back sorted regardless of wire order
	want := []string{"host-a", "host-b", "user@example.com"}
	if len(inc.Entities) != len(want) {
		t.Fatalf("Entities = %v, want %v", inc.Entities, want)
	}
	for i := range want {
		if inc.Entities[i] != want[i] {
			t.Errorf("Entities[%d] = %q, want %q", i, inc.Entities[i], want[i])
		}
	}
	if len(inc.Raw) == 0 {
		t.Error("Raw payload was not retained")
	}
}

func TestNormalizeMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{
			name:      "not json",
			payload:   `{not json`,
			wantField: "(payload)",
		},
		{
			name:      "missing name",
			payload:   `{"properties": {"severity": "Low", "status": "New"}}`,
			wantField: "name",
		},
		{
			name:      "missing severity",
			payload:   `{"name": "a", "properties": {"status": "New"}}`,
			wantField: "properties.severity",
		},
		{
			name:      "severity wrong type",
			payload:   `{"name": "a", "properties": {"severity": 3, "status": "New"}}`,
			wantField: "properties.severity",
		},
		{
			name:      "severity unknown value",
			payload:   `{"name": "a", "properties": {"severity": "Critical", "status": "New"}}`,
			wantField: "properties.severity",
		},
		{
			name:      "missing status",
			payload:   `{"name": "a", "properties": {"severity": "Low"}}`,
			wantField: "properties.status",
		},
		{
			name:      "status unknown value",
			payload:   `{"name": "a", "properties": {"severity": "Low", "status": "Archived"}}`,
			wantField: "properties.status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Normalize(json.RawMessage(tt.payload))
			if err == nil {
				t.Fatal("Normalize() error = nil, want *MalformedError")
			}
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatalf("Normalize() error = %T, want *MalformedError", err)
			}
			if me.Field != tt.wantField {
				t.Errorf("MalformedError.Field = %q, want %q", me.Field, tt.wantField)
			}
		})
	}
}

func TestParseSeverityOrdering(t *testing.T) {
	t.Parallel()

	if !(SeverityInformational < SeverityLow && SeverityLow < SeverityMedium && SeverityMedium < SeverityHigh) {
		t.Error("severity constants are not strictly ordered")
	}

	for _, s := range []string{"informational", "LOW", " Medium ", "high"} {
		if _, ok := ParseSeverity(s); !ok {
			t.Errorf("ParseSeverity(%q) not recognized", s)
		}
	}
	if _, ok := ParseSeverity("critical"); ok {
		t.Error("ParseSeverity(\"critical\") = ok, want not ok")
	}
}

func TestAsPrompt(t *testing.T) {
	t.Parallel()

	inc, err := Normalize(json.RawMessage(validPayload()))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	got := inc.AsPrompt(4000)
	if !strings.HasPrefix(got, "[High] Test Incident: This is a test incident\n") {
		t.Errorf("AsPrompt() first line = %q", strings.SplitN(got, "\n", 2)[0])
	}
	if !strings.Contains(got, "Incident ID: inc-001\n") {
		t.Errorf("AsPrompt() missing incident ID line:\n%s", got)
	}
	if !strings.Contains(got, "Status: New\n") {
		t.Errorf("AsPrompt() missing status line:\n%s", got)
	}
	if !strings.Contains(got, "- host-a\n- host-b\n") {
		t.Errorf("AsPrompt() entities not sorted:\n%s", got)
	}

	// same incident must serialize to byte-identical text
	if again := inc.AsPrompt(4000); again != got {
		t.Error("AsPrompt() is not deterministic")
	}
}

func TestAsPromptFallbacksAndTruncation(t *testing.T) {
	t.Parallel()

	inc := &Incident{
		ID:       "inc-002",
		Severity: SeverityLow,
		Status:   StatusActive,
	}
	got := inc.AsPrompt(100)
	if !strings.HasPrefix(got, "[Low] (no title): (no description)\n") {
		t.Errorf("AsPrompt() with empty fields = %q", got)
	}
	if strings.Contains(got, "Entities:") {
		t.Error("AsPrompt() rendered an entity section for zero entities")
	}

	inc.Description = strings.Repeat("x", 500)
	got = inc.AsPrompt(100)
	line := strings.SplitN(got, "\n", 2)[0]
	if !strings.HasSuffix(line, " [truncated]") {
		t.Errorf("AsPrompt() long description not truncated: %q", line)
	}
	if strings.Count(line, "x") != 100 {
		t.Errorf("AsPrompt() kept %d description chars, want 100", strings.Count(line, "x"))
	}

	// zero max keeps the description intact
	got = inc.AsPrompt(0)
	if strings.Contains(got, "[truncated]") {
		t.Error("AsPrompt(0) truncated the description")
	}
}
