// Package sentinel talks to a Microsoft-Sentinel-shaped incident REST API.
// It implements the pipeline's incident source and case update sink.
// Token acquisition is the caller's concern, supplied via a TokenSource.
package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/incident"
	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage"
)

const (
	apiVersion  = "2024-03-01"
	httpTimeout = 30 * time.Second
)

// TokenSource supplies a bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token. Useful for dev and
// for environments where a sidecar refreshes a token file out of band.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Client lists and updates incidents over the workspace-scoped REST API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// New creates a client for the given workspace base URL, e.g.
// https://management.azure.com/subscriptions/.../providers/Microsoft.OperationalInsights/workspaces/<ws>/providers/Microsoft.SecurityInsights.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
	}
}

// listResponse is the ARM collection envelope.
type listResponse struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"nextLink"`
}

// ListActiveIncidents fetches all incidents whose status is New or Active,
// following pagination. Raw payloads are returned untouched; normalization
// is the incident package's job.
func (c *Client) ListActiveIncidents(ctx context.Context) ([]json.RawMessage, error) {
	const op = "sentinel.ListActiveIncidents"

	u := fmt.Sprintf("%s/incidents?api-version=%s&$filter=%s",
		c.baseURL, apiVersion,
		url.QueryEscape("properties/status ne 'Closed'"),
	)

	var out []json.RawMessage
	for u != "" {
		body, err := c.do(ctx, op, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &triage.TransportError{Op: op, Err: fmt.Errorf("decode list page: %w", err)}
		}
		out = append(out, page.Value...)
		u = page.NextLink
	}
	return out, nil
}

// GetIncident fetches one incident's raw payload.
func (c *Client) GetIncident(ctx context.Context, id string) (json.RawMessage, error) {
	const op = "sentinel.GetIncident"
	u := fmt.Sprintf("%s/incidents/%s?api-version=%s", c.baseURL, url.PathEscape(id), apiVersion)
	return c.do(ctx, op, http.MethodGet, u, nil)
}

// AddComment creates an incident comment. The comment ID is generated
// client-side, as the API requires.
func (c *Client) AddComment(ctx context.Context, incidentID, text string) error {
	const op = "sentinel.AddComment"

	u := fmt.Sprintf("%s/incidents/%s/comments/%s?api-version=%s",
		c.baseURL, url.PathEscape(incidentID), ulid.Make().String(), apiVersion)

	payload := map[string]any{
		"properties": map[string]any{"message": text},
	}
	_, err := c.do(ctx, op, http.MethodPut, u, payload)
	return err
}

// SetStatus updates an incident's status via read-modify-write, the way the
// API's create-or-update contract requires. Closing sets a benign-positive
// classification alongside the status.
func (c *Client) SetStatus(ctx context.Context, incidentID string, status incident.Status) error {
	const op = "sentinel.SetStatus"

	props := map[string]any{"status": string(status)}
	if status == incident.StatusClosed {
		props["classification"] = "BenignPositive"
		props["classificationReason"] = "SuspiciousButExpected"
	}
	return c.patchIncident(ctx, op, incidentID, props)
}

// AddTags merges tags into the incident's labels.
func (c *Client) AddTags(ctx context.Context, incidentID string, tags []string) error {
	const op = "sentinel.AddTags"

	labels := make([]map[string]string, 0, len(tags))
	for _, t := range tags {
		labels = append(labels, map[string]string{"labelName": t})
	}
	return c.patchIncident(ctx, op, incidentID, map[string]any{"labels": labels})
}

// patchIncident fetches the incident, overlays the given properties, and
// writes it back.
func (c *Client) patchIncident(ctx context.Context, op, incidentID string, props map[string]any) error {
	raw, err := c.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}

	var current map[string]any
	if err := json.Unmarshal(raw, &current); err != nil {
		return &triage.TransportError{Op: op, Err: fmt.Errorf("decode incident: %w", err)}
	}

	cur, _ := current["properties"].(map[string]any)
	if cur == nil {
		cur = make(map[string]any)
	}
	if labels, ok := props["labels"]; ok {
		// merge instead of replace; existing labels survive
		props["labels"] = mergeLabels(cur["labels"], labels)
	}
	for k, v := range props {
		cur[k] = v
	}

	u := fmt.Sprintf("%s/incidents/%s?api-version=%s", c.baseURL, url.PathEscape(incidentID), apiVersion)
	_, err = c.do(ctx, op, http.MethodPut, u, map[string]any{
		"properties": cur,
		"etag":       current["etag"],
	})
	return err
}

func mergeLabels(existing any, added any) []any {
	var out []any
	seen := make(map[string]bool)

	appendAll := func(v any) {
		list, _ := v.([]any)
		for _, item := range list {
			m, _ := item.(map[string]any)
			name, _ := m["labelName"].(string)
			if name != "" && !seen[name] {
				seen[name] = true
				out = append(out, item)
			}
		}
	}

	appendAll(existing)
	if list, ok := added.([]map[string]string); ok {
		for _, m := range list {
			if name := m["labelName"]; name != "" && !seen[name] {
				seen[name] = true
				out = append(out, map[string]any{"labelName": name})
			}
		}
	}
	return out
}

// do issues one request and maps failures onto the triage error taxonomy:
// network errors, 5xx, 429 and 408 are transport (retryable) errors, any
// other non-2xx is a validation error.
func (c *Client) do(ctx context.Context, op, method, u string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal payload: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &triage.TransportError{Op: op, Err: fmt.Errorf("acquire token: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &triage.TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &triage.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout:
		return nil, &triage.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", truncateBody(respBody)),
		}
	default:
		return nil, &triage.ValidationError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    truncateBody(respBody),
		}
	}
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
