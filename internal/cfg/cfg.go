// Package cfg holds the application-specific configuration, registered and
// validated the same way as the shared go-core config packages.
package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Classifier backend selectors.
const (
	BackendClaude = "claude"
	BackendRules  = "rules"
)

// Config carries the triage application's own settings. Shared concerns
// (http server, logging, tracing, profiling, ops listener) have their own
// config structs in go-core.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	SentinelBaseURL string
	SentinelToken   string

	Backend      string
	ClaudeAPIKey string
	ClaudeModel  string

	CloseThreshold    float64
	PromptMaxChars    int
	Workers           int
	RunTimeoutSeconds int
	ClassifyAttempts  int

	RetryMaxAttempts      int
	RetryBaseDelaySeconds int
	RetryMaxDelaySeconds  int
	RetryMultiplier       float64

	PollSchedule string
	RunOnStart   bool

	DatabaseURL     string
	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token protecting the triage API")

	fs.StringVar(&c.SentinelBaseURL, "sentinel-base-url", "", "workspace-scoped base URL of the incident API")
	fs.StringVar(&c.SentinelToken, "sentinel-token", "", "bearer token for the incident API")

	fs.StringVar(&c.Backend, "backend", BackendClaude, "reasoning backend: claude or rules")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude reasoning backend")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")

	fs.Float64Var(&c.CloseThreshold, "close-threshold", 0.85, "minimum benign confidence for auto-close (0..1]")
	fs.IntVar(&c.PromptMaxChars, "prompt-max-chars", 4000, "max incident description characters in prompts")
	fs.IntVar(&c.Workers, "workers", 4, "parallel incident workers per run (1..64)")
	fs.IntVar(&c.RunTimeoutSeconds, "run-timeout-seconds", 600, "budget for one triage run (1..3600)")
	fs.IntVar(&c.ClassifyAttempts, "classify-attempts", 3, "max reasoning backend attempts per incident (1..10)")

	fs.IntVar(&c.RetryMaxAttempts, "retry-max-attempts", 5, "max case-update attempts per decision (1..10)")
	fs.IntVar(&c.RetryBaseDelaySeconds, "retry-base-delay-seconds", 1, "initial case-update retry delay")
	fs.IntVar(&c.RetryMaxDelaySeconds, "retry-max-delay-seconds", 30, "case-update retry delay cap")
	fs.Float64Var(&c.RetryMultiplier, "retry-multiplier", 2, "case-update retry delay multiplier")

	fs.StringVar(&c.PollSchedule, "poll-schedule", "*/10 * * * *", "cron schedule for triage runs")
	fs.BoolVar(&c.RunOnStart, "run-on-start", false, "run one triage cycle immediately on startup")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the audit log (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for escalation notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.SentinelBaseURL == "" {
		errs = append(errs, errors.New("SENTINEL_BASE_URL is required"))
	}
	if c.SentinelToken == "" {
		errs = append(errs, errors.New("SENTINEL_TOKEN is required"))
	}

	switch c.Backend {
	case BackendClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required for the claude backend"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required for the claude backend"))
		}
	case BackendRules:
	default:
		errs = append(errs, fmt.Errorf("invalid BACKEND %q (must be claude or rules)", c.Backend))
	}

	if c.CloseThreshold <= 0 || c.CloseThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid CLOSE_THRESHOLD %v (must be in (0..1])", c.CloseThreshold))
	}
	if c.PromptMaxChars <= 0 {
		errs = append(errs, fmt.Errorf("invalid PROMPT_MAX_CHARS %d (must be positive)", c.PromptMaxChars))
	}
	if c.Workers <= 0 || c.Workers > 64 {
		errs = append(errs, fmt.Errorf("invalid WORKERS %d (must be 1..64)", c.Workers))
	}
	if c.RunTimeoutSeconds <= 0 || c.RunTimeoutSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid RUN_TIMEOUT_SECONDS %d (must be 1..3600)", c.RunTimeoutSeconds))
	}
	if c.ClassifyAttempts <= 0 || c.ClassifyAttempts > 10 {
		errs = append(errs, fmt.Errorf("invalid CLASSIFY_ATTEMPTS %d (must be 1..10)", c.ClassifyAttempts))
	}

	if c.RetryMaxAttempts <= 0 || c.RetryMaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS %d (must be 1..10)", c.RetryMaxAttempts))
	}
	if c.RetryBaseDelaySeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid RETRY_BASE_DELAY_SECONDS %d (must be positive)", c.RetryBaseDelaySeconds))
	}
	if c.RetryMaxDelaySeconds < c.RetryBaseDelaySeconds {
		errs = append(errs, fmt.Errorf("RETRY_MAX_DELAY_SECONDS %d must be >= RETRY_BASE_DELAY_SECONDS %d", c.RetryMaxDelaySeconds, c.RetryBaseDelaySeconds))
	}
	if c.RetryMultiplier < 1 {
		errs = append(errs, fmt.Errorf("invalid RETRY_MULTIPLIER %v (must be >= 1)", c.RetryMultiplier))
	}

	if c.PollSchedule == "" {
		errs = append(errs, errors.New("POLL_SCHEDULE is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
