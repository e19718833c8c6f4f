package triage

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/incident"
)

// RetryConfig bounds the executor's exponential backoff.
type RetryConfig struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the operational defaults: 5 attempts,
// 1s base delay, doubling, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Executor applies decisions to the case-management system, idempotently
// and with bounded retries. The audit log is consulted before any external
// call and appended to after every one.
type Executor struct {
	sink   CaseSink
	store  Store
	retry  RetryConfig
	logger log.Logger
	hooks  ExecutorHooks
}

// ExecutorHooks receives executor events for metrics wiring.
type ExecutorHooks struct {
	OnApply func(outcome Outcome, attempts int, duration float64)
	OnRetry func()
}

// NewExecutor creates an Executor. A nil logger falls back to a no-op.
func NewExecutor(sink CaseSink, store Store, retry RetryConfig, logger log.Logger, hooks ExecutorHooks) *Executor {
	if logger == nil {
		logger = log.Nop()
	}
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	return &Executor{sink: sink, store: store, retry: retry, logger: logger, hooks: hooks}
}

// Apply records and applies one decision against one incident.
//
// Idempotence: when the audit log already holds an applied record with the
// same (incident id, decision hash), Apply appends and returns a
// skipped-duplicate record without touching the external system. Transient
// sink failures are retried with exponential backoff; validation failures
// are recorded as failed without retry. Exactly one record is appended per
// call.
func (e *Executor) Apply(ctx context.Context, inc *incident.Incident, d Decision) (*Record, error) {
	start := time.Now()
	hash := d.Hash(inc.ID)

	L := e.logger.With("incident_id", inc.ID, "action", string(d.Action), "decision_hash", hash)

	rec := &Record{
		ID:           ulid.Make().String(),
		IncidentID:   inc.ID,
		DecisionHash: hash,
		Decision:     d,
		CreatedAt:    time.Now().UTC(),
	}

	if prev, ok, err := e.store.Find(ctx, inc.ID, hash); err != nil {
		return nil, err
	} else if ok && prev.Outcome == OutcomeApplied {
		rec.Outcome = OutcomeSkippedDuplicate
		if err := e.store.Append(ctx, rec); err != nil {
			return nil, err
		}
		L.Info(ctx, "decision already applied, skipping", "prior_record", prev.ID)
		e.observe(rec, start)
		return rec, nil
	}

	attempts := 0
	apply := func() (struct{}, error) {
		attempts++
		if attempts > 1 && e.hooks.OnRetry != nil {
			e.hooks.OnRetry()
		}
		err := e.applyOnce(ctx, inc, d)
		var verr *ValidationError
		if errors.As(err, &verr) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			L.Warn(ctx, "apply attempt failed", "attempt", attempts, "error", err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retry.BaseDelay
	bo.Multiplier = e.retry.Multiplier
	bo.MaxInterval = e.retry.MaxDelay

	_, err := backoff.Retry(ctx, apply,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(e.retry.MaxAttempts),
	)

	rec.Attempts = attempts
	if err != nil {
		rec.Outcome = OutcomeFailed
		rec.Error = err.Error()
		L.Error(ctx, err, "decision could not be applied", "attempts", attempts)
	} else {
		rec.Outcome = OutcomeApplied
		L.Info(ctx, "decision applied", "attempts", attempts)
	}

	if aerr := e.store.Append(ctx, rec); aerr != nil {
		return nil, aerr
	}
	e.observe(rec, start)

	if err != nil {
		return rec, err
	}
	return rec, nil
}

// applyOnce makes the external calls for one attempt. A no-op decision
// makes none.
func (e *Executor) applyOnce(ctx context.Context, inc *incident.Incident, d Decision) error {
	if d.Action == ActionNoOp {
		return nil
	}

	if d.Comment != "" {
		if err := e.sink.AddComment(ctx, inc.ID, d.Comment); err != nil {
			return err
		}
	}
	if len(d.Tags) > 0 {
		if err := e.sink.AddTags(ctx, inc.ID, d.Tags); err != nil {
			return err
		}
	}
	if d.Action == ActionClose {
		if err := e.sink.SetStatus(ctx, inc.ID, incident.StatusClosed); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) observe(rec *Record, start time.Time) {
	if e.hooks.OnApply != nil {
		e.hooks.OnApply(rec.Outcome, rec.Attempts, time.Since(start).Seconds())
	}
}
