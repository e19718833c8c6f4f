package triage

import (
	"context"
	"sync"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// maxRetainedRuns bounds how many run reports the service keeps for the API.
const maxRetainedRuns = 100

// TriggerResult is the outcome of asking the service to start a run.
type TriggerResult struct {
	RunID   string `json:"run_id,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Service owns the run lifecycle: ULID run IDs, single-flight dispatch and
// report retention. Triggers arriving while a run is in flight are skipped
// rather than queued; failed incidents are picked up by the next run.
type Service struct {
	pipeline *Pipeline
	logger   log.Logger

	mu      sync.Mutex
	running bool
	reports map[string]*Report
	order   []string
}

// NewService creates a triage service around a pipeline.
func NewService(pipeline *Pipeline, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		pipeline: pipeline,
		logger:   logger,
		reports:  make(map[string]*Report),
	}
}

// Trigger starts a run asynchronously and returns its ID, or a skipped
// result when a run is already in flight.
func (s *Service) Trigger(ctx context.Context) *TriggerResult {
	id, ok := s.acquire()
	if !ok {
		return &TriggerResult{Skipped: true, Reason: "run in progress"}
	}

	// detach from the caller's cancellation; the run is bounded by the
	// pipeline's own run timeout
	go s.run(context.WithoutCancel(ctx), id)

	return &TriggerResult{RunID: id}
}

// RunNow executes a run synchronously and returns its report. Used by the
// cron scheduler; the single-flight guard still applies, so an overlapping
// schedule fire returns (nil, nil) instead of a second run.
func (s *Service) RunNow(ctx context.Context) (*Report, error) {
	id, ok := s.acquire()
	if !ok {
		s.logger.Info(ctx, "scheduled run skipped", "reason", "run in progress")
		return nil, nil
	}
	s.run(ctx, id)
	rep, _ := s.GetRun(id)
	return rep, nil
}

// GetRun returns a copy of the report for a run ID. A run that has not
// completed yet reports only its ID.
func (s *Service) GetRun(id string) (*Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reports[id]
	if !ok {
		return nil, false
	}
	cp := *rep
	return &cp, true
}

// acquire takes the single-flight slot and registers a new run ID.
func (s *Service) acquire() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "", false
	}
	s.running = true
	id := ulid.Make().String()
	s.retain(&Report{RunID: id})
	return id, true
}

func (s *Service) run(ctx context.Context, id string) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	rep, err := s.pipeline.Run(ctx, id)
	if err != nil {
		s.logger.Error(ctx, err, "triage run failed", "run_id", id)
	}

	s.mu.Lock()
	s.reports[id] = rep
	s.mu.Unlock()
}

// retain stores a report and evicts the oldest beyond maxRetainedRuns.
// Caller must hold s.mu.
func (s *Service) retain(rep *Report) {
	s.reports[rep.RunID] = rep
	s.order = append(s.order, rep.RunID)
	for len(s.order) > maxRetainedRuns {
		delete(s.reports, s.order[0])
		s.order = s.order[1:]
	}
}
