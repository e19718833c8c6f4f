// Package claude implements triage.Classifier on top of the Anthropic API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage"
)

const responseTokens = 1024

const systemPrompt = `You are a security analyst triaging SIEM incidents. For each incident you
receive, judge whether it is benign, genuinely malicious, or needs a human
analyst, and reply with ONLY a JSON object in exactly this shape:

{"disposition": "benign" | "needs_human" | "malicious",
 "confidence": <number between 0.0 and 1.0>,
 "rationale": "<one or two sentences explaining the judgment>",
 "tags": ["<short-lowercase-tag>", ...]}

Be conservative: when in doubt, use "needs_human" with appropriate
confidence rather than guessing. Do not include any text outside the JSON.`

// Hooks receives per-call telemetry for metrics wiring.
type Hooks struct {
	OnCall func(inputTokens, outputTokens int64, duration float64)
}

// Client classifies incident prompts via the Anthropic Messages API.
// It carries no retry logic; transient failures surface as
// triage.ErrBackendUnavailable for the caller to retry.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
	hooks  Hooks
}

// New creates a Claude classifier with the given API key and model name.
func New(apiKey, model string, hooks Hooks) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		hooks:  hooks,
	}
}

// Classify sends the prompt and parses the reply into a Verdict.
func (c *Client) Classify(ctx context.Context, prompt string) (*triage.Verdict, error) {
	start := time.Now()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: responseTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyErr(err)
	}

	if c.hooks.OnCall != nil {
		c.hooks.OnCall(msg.Usage.InputTokens, msg.Usage.OutputTokens, time.Since(start).Seconds())
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return ParseVerdict(text.String())
}

// classifyErr maps an SDK error onto the triage error taxonomy. Network
// failures, throttling and server errors are retryable; anything else is a
// permanent failure that routes to escalation.
func classifyErr(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode >= 500,
			apierr.StatusCode == http.StatusTooManyRequests,
			apierr.StatusCode == http.StatusRequestTimeout:
			return fmt.Errorf("%w: anthropic api status %d", triage.ErrBackendUnavailable, apierr.StatusCode)
		default:
			return fmt.Errorf("anthropic api rejected request (status %d): %w", apierr.StatusCode, err)
		}
	}
	// no API response at all: connection error, timeout, cancelled context
	return fmt.Errorf("%w: %v", triage.ErrBackendUnavailable, err)
}

// ParseVerdict extracts a Verdict from raw model output. The model is told
// to reply with bare JSON but occasionally wraps it in code fences or prose,
// so parsing tolerates surrounding text and takes the outermost JSON object.
// Missing or mistyped disposition/confidence is a *BackendFormatError,
// never a defaulted verdict.
func ParseVerdict(raw string) (*triage.Verdict, error) {
	body := extractJSON(raw)
	if body == "" || !gjson.Valid(body) {
		return nil, &triage.BackendFormatError{Reason: "no JSON object in response", Raw: raw}
	}

	disp := gjson.Get(body, "disposition")
	if disp.Type != gjson.String {
		return nil, &triage.BackendFormatError{Reason: "disposition missing or not a string", Raw: raw}
	}
	disposition, ok := triage.ParseDisposition(disp.String())
	if !ok {
		return nil, &triage.BackendFormatError{Reason: fmt.Sprintf("unknown disposition %q", disp.String()), Raw: raw}
	}

	conf := gjson.Get(body, "confidence")
	if conf.Type != gjson.Number {
		return nil, &triage.BackendFormatError{Reason: "confidence missing or not numeric", Raw: raw}
	}
	confidence := conf.Float()
	if confidence < 0 || confidence > 1 {
		return nil, &triage.BackendFormatError{Reason: fmt.Sprintf("confidence %v out of range", confidence), Raw: raw}
	}

	rationale := gjson.Get(body, "rationale").String()
	if len(rationale) > triage.MaxRationaleLen {
		rationale = rationale[:triage.MaxRationaleLen]
	}

	var tags []string
	for _, t := range gjson.Get(body, "tags").Array() {
		if t.Type == gjson.String && t.String() != "" {
			tags = append(tags, t.String())
		}
	}

	return &triage.Verdict{
		Disposition: disposition,
		Confidence:  confidence,
		Rationale:   rationale,
		Tags:        tags,
	}, nil
}

// extractJSON returns the outermost {...} slice of s, or "" when there is
// none.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
