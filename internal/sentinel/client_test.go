package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/incident"
	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage"
)

func TestListActiveIncidents_Pagination(t *testing.T) {
	t.Parallel()

	var pageTwoURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"value":[{"name":"inc-3"}]}`)
			return
		}
		if got := r.URL.Query().Get("$filter"); got != "properties/status ne 'Closed'" {
			t.Errorf("$filter = %q, want status filter", got)
		}
		fmt.Fprintf(w, `{"value":[{"name":"inc-1"},{"name":"inc-2"}],"nextLink":%q}`, pageTwoURL)
	}))
	defer srv.Close()
	pageTwoURL = srv.URL + "/incidents?api-version=2024-03-01&page=2"

	c := New(srv.URL, StaticToken("test-token"))
	payloads, err := c.ListActiveIncidents(context.Background())
	if err != nil {
		t.Fatalf("ListActiveIncidents() error = %v", err)
	}
	if len(payloads) != 3 {
		t.Fatalf("payloads = %d, want 3 across pages", len(payloads))
	}
	var probe struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payloads[2], &probe); err != nil || probe.Name != "inc-3" {
		t.Errorf("last payload = %s, want inc-3", payloads[2])
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		status         int
		wantTransport  bool
		wantValidation bool
	}{
		{"server error", http.StatusInternalServerError, true, false},
		{"bad gateway", http.StatusBadGateway, true, false},
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"request timeout", http.StatusRequestTimeout, true, false},
		{"not found", http.StatusNotFound, false, true},
		{"bad request", http.StatusBadRequest, false, true},
		{"forbidden", http.StatusForbidden, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":{"code":"TestError"}}`, tt.status)
			}))
			defer srv.Close()

			c := New(srv.URL, StaticToken("t"))
			_, err := c.GetIncident(context.Background(), "inc-1")
			if err == nil {
				t.Fatal("GetIncident() error = nil")
			}

			var terr *triage.TransportError
			if got := errors.As(err, &terr); got != tt.wantTransport {
				t.Errorf("TransportError = %v, want %v (err: %v)", got, tt.wantTransport, err)
			} else if got && terr.StatusCode != tt.status {
				t.Errorf("TransportError.StatusCode = %d, want %d", terr.StatusCode, tt.status)
			}

			var verr *triage.ValidationError
			if got := errors.As(err, &verr); got != tt.wantValidation {
				t.Errorf("ValidationError = %v, want %v (err: %v)", got, tt.wantValidation, err)
			} else if got && verr.StatusCode != tt.status {
				t.Errorf("ValidationError.StatusCode = %d, want %d", verr.StatusCode, tt.status)
			}
		})
	}
}

func TestErrorMapping_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := New(srv.URL, StaticToken("t"))
	_, err := c.GetIncident(context.Background(), "inc-1")

	var terr *triage.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("GetIncident() error = %T, want *TransportError", err)
	}
	if terr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for network error", terr.StatusCode)
	}
}

func TestAddComment(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("t"))
	if err := c.AddComment(context.Background(), "inc-1", "triage note"); err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %q, want PUT", gotMethod)
	}
	if !strings.HasPrefix(gotPath, "/incidents/inc-1/comments/") {
		t.Errorf("path = %q, want /incidents/inc-1/comments/<id>", gotPath)
	}
	// comment ID is generated per call
	if strings.TrimPrefix(gotPath, "/incidents/inc-1/comments/") == "" {
		t.Error("comment ID missing from path")
	}

	props, _ := gotBody["properties"].(map[string]any)
	if props["message"] != "triage note" {
		t.Errorf("message = %v, want %q", props["message"], "triage note")
	}
}

// incidentFixture is what the server returns for the read half of
// read-modify-write updates.
const incidentFixture = `{
	"name": "inc-1",
	"etag": "\"etag-123\"",
	"properties": {
		"title": "Suspicious sign-in",
		"severity": "Medium",
		"status": "Active",
		"labels": [{"labelName": "existing"}]
	}
}`

func newUpdateServer(t *testing.T, gotPut *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, incidentFixture)
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(gotPut)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected method %s", r.Method)
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func TestSetStatus_Close(t *testing.T) {
	t.Parallel()

	var gotPut map[string]any
	srv := newUpdateServer(t, &gotPut)
	defer srv.Close()

	c := New(srv.URL, StaticToken("t"))
	if err := c.SetStatus(context.Background(), "inc-1", incident.StatusClosed); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	props, _ := gotPut["properties"].(map[string]any)
	if props == nil {
		t.Fatalf("PUT body = %v, want properties", gotPut)
	}
	if props["status"] != "Closed" {
		t.Errorf("status = %v, want Closed", props["status"])
	}
	if props["classification"] != "BenignPositive" {
		t.Errorf("classification = %v, want BenignPositive", props["classification"])
	}
	// the read half's fields survive the write
	if props["title"] != "Suspicious sign-in" {
		t.Errorf("title = %v, want original title preserved", props["title"])
	}
	if gotPut["etag"] != `"etag-123"` {
		t.Errorf("etag = %v, want original etag", gotPut["etag"])
	}
}

func TestSetStatus_ActiveHasNoClassification(t *testing.T) {
	t.Parallel()

	var gotPut map[string]any
	srv := newUpdateServer(t, &gotPut)
	defer srv.Close()

	c := New(srv.URL, StaticToken("t"))
	if err := c.SetStatus(context.Background(), "inc-1", incident.StatusActive); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	props, _ := gotPut["properties"].(map[string]any)
	if props["status"] != "Active" {
		t.Errorf("status = %v, want Active", props["status"])
	}
	if _, ok := props["classification"]; ok {
		t.Error("non-close status update carried a classification")
	}
}

func TestAddTags_MergesLabels(t *testing.T) {
	t.Parallel()

	var gotPut map[string]any
	srv := newUpdateServer(t, &gotPut)
	defer srv.Close()

	c := New(srv.URL, StaticToken("t"))
	if err := c.AddTags(context.Background(), "inc-1", []string{"auto-triage", "existing", "benign"}); err != nil {
		t.Fatalf("AddTags() error = %v", err)
	}

	props, _ := gotPut["properties"].(map[string]any)
	labels, _ := props["labels"].([]any)

	var names []string
	for _, l := range labels {
		m, _ := l.(map[string]any)
		if name, _ := m["labelName"].(string); name != "" {
			names = append(names, name)
		}
	}

	want := []string{"existing", "auto-triage", "benign"}
	if len(names) != len(want) {
		t.Fatalf("labels = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("labels[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestAddTags_ReadFailurePropagates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, StaticToken("t"))
	err := c.AddTags(context.Background(), "inc-1", []string{"x"})

	var terr *triage.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("AddTags() error = %T, want *TransportError from the read half", err)
	}
}
