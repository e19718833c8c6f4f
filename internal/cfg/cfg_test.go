package cfg

import (
	"flag"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		APIToken:              "test-token-123",
		SentinelBaseURL:       "https://management.azure.com/subscriptions/x",
		SentinelToken:         "sentinel-token",
		Backend:               BackendClaude,
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-20250514",
		CloseThreshold:        0.85,
		PromptMaxChars:        4000,
		Workers:               4,
		RunTimeoutSeconds:     600,
		ClassifyAttempts:      3,
		RetryMaxAttempts:      5,
		RetryBaseDelaySeconds: 1,
		RetryMaxDelaySeconds:  30,
		RetryMultiplier:       2,
		PollSchedule:          "*/10 * * * *",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.Backend != BackendClaude {
		t.Errorf("Backend = %q, want %q", c.Backend, BackendClaude)
	}
	if c.ClaudeModel != "claude-sonnet-4-20250514" {
		t.Errorf("ClaudeModel = %q, want %q", c.ClaudeModel, "claude-sonnet-4-20250514")
	}
	if c.CloseThreshold != 0.85 {
		t.Errorf("CloseThreshold = %v, want 0.85", c.CloseThreshold)
	}
	if c.Workers != 4 {
		t.Errorf("Workers = %d, want 4", c.Workers)
	}
	if c.PollSchedule != "*/10 * * * *" {
		t.Errorf("PollSchedule = %q, want %q", c.PollSchedule, "*/10 * * * *")
	}
	if c.RunOnStart {
		t.Error("RunOnStart = true, want false by default")
	}
	if c.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty (in-memory store)", c.DatabaseURL)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-http-port", "9090",
		"-sentinel-base-url", "https://example.test/ws",
		"-backend", "rules",
		"-close-threshold", "0.9",
		"-workers", "8",
		"-poll-schedule", "*/5 * * * *",
		"-run-on-start",
		"-database-url", "postgres://localhost/triage",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.SentinelBaseURL != "https://example.test/ws" {
		t.Errorf("SentinelBaseURL = %q", c.SentinelBaseURL)
	}
	if c.Backend != BackendRules {
		t.Errorf("Backend = %q, want %q", c.Backend, BackendRules)
	}
	if c.CloseThreshold != 0.9 {
		t.Errorf("CloseThreshold = %v, want 0.9", c.CloseThreshold)
	}
	if c.Workers != 8 {
		t.Errorf("Workers = %d, want 8", c.Workers)
	}
	if !c.RunOnStart {
		t.Error("RunOnStart = false, want true")
	}
	if c.DatabaseURL != "postgres://localhost/triage" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	mutate := func(f func(*Config)) Config {
		c := validBase()
		f(&c)
		return c
	}

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "base is valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name:    "rules backend needs no claude key",
			cfg:     mutate(func(c *Config) { c.Backend = BackendRules; c.ClaudeAPIKey = ""; c.ClaudeModel = "" }),
			wantErr: false,
		},
		{
			name:      "drain zero",
			cfg:       mutate(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain over max",
			cfg:       mutate(func(c *Config) { c.DrainSeconds = 301; c.ShutdownBudgetSeconds = 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "shutdown budget not above drain",
			cfg:       mutate(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS", "DRAIN_SECONDS"},
		},
		{
			name:      "port out of range",
			cfg:       mutate(func(c *Config) { c.APIPort = 70000 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "missing sentinel base url",
			cfg:       mutate(func(c *Config) { c.SentinelBaseURL = "" }),
			wantErr:   true,
			errSubstr: []string{"SENTINEL_BASE_URL"},
		},
		{
			name:      "missing sentinel token",
			cfg:       mutate(func(c *Config) { c.SentinelToken = "" }),
			wantErr:   true,
			errSubstr: []string{"SENTINEL_TOKEN"},
		},
		{
			name:      "claude backend without api key",
			cfg:       mutate(func(c *Config) { c.ClaudeAPIKey = "" }),
			wantErr:   true,
			errSubstr: []string{"CLAUDE_API_KEY"},
		},
		{
			name:      "unknown backend",
			cfg:       mutate(func(c *Config) { c.Backend = "gpt" }),
			wantErr:   true,
			errSubstr: []string{"BACKEND"},
		},
		{
			name:      "close threshold zero",
			cfg:       mutate(func(c *Config) { c.CloseThreshold = 0 }),
			wantErr:   true,
			errSubstr: []string{"CLOSE_THRESHOLD"},
		},
		{
			name:      "close threshold above one",
			cfg:       mutate(func(c *Config) { c.CloseThreshold = 1.2 }),
			wantErr:   true,
			errSubstr: []string{"CLOSE_THRESHOLD"},
		},
		{
			name:      "workers zero",
			cfg:       mutate(func(c *Config) { c.Workers = 0 }),
			wantErr:   true,
			errSubstr: []string{"WORKERS"},
		},
		{
			name:      "run timeout over max",
			cfg:       mutate(func(c *Config) { c.RunTimeoutSeconds = 7200 }),
			wantErr:   true,
			errSubstr: []string{"RUN_TIMEOUT_SECONDS"},
		},
		{
			name:      "classify attempts zero",
			cfg:       mutate(func(c *Config) { c.ClassifyAttempts = 0 }),
			wantErr:   true,
			errSubstr: []string{"CLASSIFY_ATTEMPTS"},
		},
		{
			name:      "retry max below base delay",
			cfg:       mutate(func(c *Config) { c.RetryMaxDelaySeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"RETRY_MAX_DELAY_SECONDS"},
		},
		{
			name:      "retry multiplier below one",
			cfg:       mutate(func(c *Config) { c.RetryMultiplier = 0.5 }),
			wantErr:   true,
			errSubstr: []string{"RETRY_MULTIPLIER"},
		},
		{
			name:      "missing poll schedule",
			cfg:       mutate(func(c *Config) { c.PollSchedule = "" }),
			wantErr:   true,
			errSubstr: []string{"POLL_SCHEDULE"},
		},
		{
			name: "multiple errors joined",
			cfg: mutate(func(c *Config) {
				c.SentinelBaseURL = ""
				c.Workers = 0
				c.PollSchedule = ""
			}),
			wantErr:   true,
			errSubstr: []string{"SENTINEL_BASE_URL", "WORKERS", "POLL_SCHEDULE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			for _, sub := range tt.errSubstr {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error %q does not mention %s", err, sub)
				}
			}
		})
	}
}
