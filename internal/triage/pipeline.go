package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/linnemanlabs/go-core/log"
	"golang.org/x/sync/errgroup"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/incident"
)

// PipelineConfig carries the tunables for one pipeline instance.
type PipelineConfig struct {
	// Workers bounds batch parallelism. Processing is I/O bound on the
	// reasoning backend and the case API, so a small pool is enough.
	Workers int

	// RunTimeout aborts remaining in-flight incidents of a run. Applied
	// actions are not rolled back.
	RunTimeout time.Duration

	// PromptMaxChars caps the incident description inside prompts.
	PromptMaxChars int

	// ClassifyAttempts bounds retries of transient backend failures.
	ClassifyAttempts uint

	// ClassifyBaseDelay is the initial classify retry delay.
	ClassifyBaseDelay time.Duration
}

// DefaultPipelineConfig returns the operational defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:           4,
		RunTimeout:        10 * time.Minute,
		PromptMaxChars:    4000,
		ClassifyAttempts:  3,
		ClassifyBaseDelay: time.Second,
	}
}

// Report summarizes one pipeline run. Incident counts are terminal-state
// counts: every fetched incident lands in exactly one of malformed,
// applied, skipped-duplicate or failed.
type Report struct {
	RunID            string         `json:"run_id"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      time.Time      `json:"completed_at,omitempty"`
	Duration         float64        `json:"duration_seconds,omitempty"`
	Fetched          int            `json:"fetched"`
	Malformed        int            `json:"malformed"`
	Applied          int            `json:"applied"`
	SkippedDuplicate int            `json:"skipped_duplicate"`
	Failed           int            `json:"failed"`
	Decisions        map[Action]int `json:"decisions,omitempty"`
	Err              string         `json:"error,omitempty"`
}

// Pipeline orchestrates one batch: fetch, normalize, classify, decide,
// apply, record. Incidents are processed independently; one incident's
// failure never aborts the batch.
type Pipeline struct {
	source     Source
	classifier Classifier
	policy     Policy
	exec       *Executor
	notifier   Notifier
	cfg        PipelineConfig
	logger     log.Logger
	hooks      PipelineHooks
}

// PipelineHooks receives pipeline events for metrics wiring.
type PipelineHooks struct {
	OnDecision func(action Action)
	OnIncident func(outcome Outcome)
	OnClassify func(duration float64, failed bool)
	OnRun      func(rep *Report)
}

// NewPipeline assembles a pipeline. Notifier may be nil.
func NewPipeline(source Source, classifier Classifier, policy Policy, exec *Executor, notifier Notifier, cfg PipelineConfig, logger log.Logger, hooks PipelineHooks) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPipelineConfig().Workers
	}
	if cfg.ClassifyAttempts == 0 {
		cfg.ClassifyAttempts = DefaultPipelineConfig().ClassifyAttempts
	}
	return &Pipeline{
		source:     source,
		classifier: classifier,
		policy:     policy,
		exec:       exec,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		hooks:      hooks,
	}
}

// Run executes one triage cycle and returns its report. The returned error
// is non-nil only for run-level failures (the incident source itself);
// per-incident failures are counted in the report and logged.
func (p *Pipeline) Run(ctx context.Context, runID string) (*Report, error) {
	start := time.Now()
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	L := p.logger.With("run_id", runID)

	rep := &Report{
		RunID:     runID,
		StartedAt: start.UTC(),
		Decisions: make(map[Action]int),
	}

	payloads, err := p.source.ListActiveIncidents(ctx)
	if err != nil {
		rep.Err = err.Error()
		p.finish(rep, start)
		return rep, fmt.Errorf("list active incidents: %w", err)
	}
	rep.Fetched = len(payloads)
	L.Info(ctx, "fetched incident batch", "count", len(payloads))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for _, raw := range payloads {
		g.Go(func() error {
			outcome, action := p.processOne(gctx, L, raw)
			mu.Lock()
			switch outcome {
			case "":
				rep.Malformed++
			case OutcomeApplied:
				rep.Applied++
			case OutcomeSkippedDuplicate:
				rep.SkippedDuplicate++
			case OutcomeFailed:
				rep.Failed++
			}
			if action != "" {
				rep.Decisions[action]++
			}
			mu.Unlock()
			// per-incident failures never abort the batch
			return nil
		})
	}
	_ = g.Wait()

	p.finish(rep, start)
	L.Info(ctx, "run complete",
		"fetched", rep.Fetched,
		"malformed", rep.Malformed,
		"applied", rep.Applied,
		"skipped_duplicate", rep.SkippedDuplicate,
		"failed", rep.Failed,
		"duration", rep.Duration,
	)
	return rep, nil
}

func (p *Pipeline) finish(rep *Report, start time.Time) {
	rep.CompletedAt = time.Now().UTC()
	rep.Duration = time.Since(start).Seconds()
	if p.hooks.OnRun != nil {
		p.hooks.OnRun(rep)
	}
}

// processOne walks a single incident through normalize, classify, decide
// and apply. The empty outcome marks a malformed payload that never reached
// the decision stage.
func (p *Pipeline) processOne(ctx context.Context, L log.Logger, raw json.RawMessage) (Outcome, Action) {
	inc, err := incident.Normalize(raw)
	if err != nil {
		L.Warn(ctx, "skipping malformed incident", "error", err)
		if p.hooks.OnIncident != nil {
			p.hooks.OnIncident("")
		}
		return "", ""
	}

	L = L.With("incident_id", inc.ID, "severity", inc.Severity.String())

	verdict := p.classify(ctx, L, inc)
	decision := p.policy.Decide(inc, verdict)
	if p.hooks.OnDecision != nil {
		p.hooks.OnDecision(decision.Action)
	}
	L.Info(ctx, "decision made", "action", string(decision.Action))

	rec, err := p.exec.Apply(ctx, inc, decision)
	if rec == nil {
		// audit append failed; the incident counts as failed for this run
		L.Error(ctx, err, "audit append failed")
		if p.hooks.OnIncident != nil {
			p.hooks.OnIncident(OutcomeFailed)
		}
		return OutcomeFailed, decision.Action
	}

	if p.notifier != nil && decision.Action == ActionEscalate {
		if nerr := p.notifier.Send(ctx, inc, rec); nerr != nil {
			L.Warn(ctx, "escalation notification failed", "error", nerr)
		}
	}

	if p.hooks.OnIncident != nil {
		p.hooks.OnIncident(rec.Outcome)
	}
	return rec.Outcome, decision.Action
}

// classify calls the reasoning backend with bounded retries for transient
// failures. Any terminal failure returns a nil verdict, which the policy
// resolves to escalate; no error path can yield a close.
func (p *Pipeline) classify(ctx context.Context, L log.Logger, inc *incident.Incident) *Verdict {
	prompt := inc.AsPrompt(p.cfg.PromptMaxChars)

	call := func() (*Verdict, error) {
		start := time.Now()
		v, err := p.classifier.Classify(ctx, prompt)
		if p.hooks.OnClassify != nil {
			p.hooks.OnClassify(time.Since(start).Seconds(), err != nil)
		}
		if err != nil && !errors.Is(err, ErrBackendUnavailable) {
			// format errors and anything else non-transient: do not retry
			return nil, backoff.Permanent(err)
		}
		return v, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.ClassifyBaseDelay

	v, err := backoff.Retry(ctx, call,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(p.cfg.ClassifyAttempts),
	)
	if err != nil {
		var ferr *BackendFormatError
		if errors.As(err, &ferr) {
			L.Warn(ctx, "backend returned unparseable verdict", "reason", ferr.Reason)
		} else {
			L.Warn(ctx, "classification failed, escalating", "error", err)
		}
		return nil
	}
	if !v.Valid() {
		L.Warn(ctx, "backend returned invalid verdict", "disposition", string(v.Disposition), "confidence", v.Confidence)
		return nil
	}

	L.Info(ctx, "incident classified",
		"disposition", string(v.Disposition),
		"confidence", v.Confidence,
	)
	return v
}
