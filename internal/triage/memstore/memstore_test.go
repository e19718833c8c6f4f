package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage"
)

func rec(id, incidentID, hash string, outcome triage.Outcome) *triage.Record {
	return &triage.Record{
		ID:           id,
		IncidentID:   incidentID,
		DecisionHash: hash,
		Outcome:      outcome,
	}
}

func TestAppendAndFind(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if _, ok, err := s.Find(ctx, "inc-1", "h1"); err != nil || ok {
		t.Fatalf("Find() on empty store = (ok=%v, err=%v), want not found", ok, err)
	}

	if err := s.Append(ctx, rec("r1", "inc-1", "h1", triage.OutcomeApplied)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, ok, err := s.Find(ctx, "inc-1", "h1")
	if err != nil || !ok {
		t.Fatalf("Find() = (ok=%v, err=%v), want found", ok, err)
	}
	if got.ID != "r1" {
		t.Errorf("Find() record = %q, want r1", got.ID)
	}

	// a different hash for the same incident is a different entry
	if _, ok, _ := s.Find(ctx, "inc-1", "h2"); ok {
		t.Error("Find() matched a hash that was never appended")
	}
}

func TestFindKeepsAppliedWitness(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	// failed attempt first, then applied, then a skip
	_ = s.Append(ctx, rec("r1", "inc-1", "h1", triage.OutcomeFailed))
	_ = s.Append(ctx, rec("r2", "inc-1", "h1", triage.OutcomeApplied))
	_ = s.Append(ctx, rec("r3", "inc-1", "h1", triage.OutcomeSkippedDuplicate))

	got, ok, err := s.Find(ctx, "inc-1", "h1")
	if err != nil || !ok {
		t.Fatalf("Find() = (ok=%v, err=%v), want found", ok, err)
	}
	// the applied record stays the witness; the later skip must not shadow it
	if got.ID != "r2" || got.Outcome != triage.OutcomeApplied {
		t.Errorf("Find() = %q/%q, want r2/applied", got.ID, got.Outcome)
	}
}

func TestRecordsAreCopiedInAndOut(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	r := rec("r1", "inc-1", "h1", triage.OutcomeApplied)
	_ = s.Append(ctx, r)
	r.Outcome = triage.OutcomeFailed // caller mutation after append

	got, _, _ := s.Find(ctx, "inc-1", "h1")
	if got.Outcome != triage.OutcomeApplied {
		t.Error("Append() did not copy the record")
	}

	got.ID = "mutated"
	again, _, _ := s.Find(ctx, "inc-1", "h1")
	if again.ID != "r1" {
		t.Error("Find() did not return a copy")
	}
}

func TestListByIncident(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_ = s.Append(ctx, rec("r1", "inc-1", "h1", triage.OutcomeApplied))
	_ = s.Append(ctx, rec("r2", "inc-2", "h2", triage.OutcomeApplied))
	_ = s.Append(ctx, rec("r3", "inc-1", "h3", triage.OutcomeFailed))

	recs, err := s.ListByIncident(ctx, "inc-1")
	if err != nil {
		t.Fatalf("ListByIncident() error = %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "r1" || recs[1].ID != "r3" {
		t.Errorf("ListByIncident() = %v, want [r1 r3] in append order", recs)
	}

	empty, err := s.ListByIncident(ctx, "inc-unknown")
	if err != nil {
		t.Fatalf("ListByIncident() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("ListByIncident() for unknown incident = %v, want empty", empty)
	}
}

func TestConcurrentAppend(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			incID := fmt.Sprintf("inc-%d", i%5)
			_ = s.Append(ctx, rec(fmt.Sprintf("r%d", i), incID, "h", triage.OutcomeApplied))
			_, _, _ = s.Find(ctx, incID, "h")
		}(i)
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Errorf("Len() = %d, want 50", s.Len())
	}
}
