// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage"
)

// Store holds audit records in memory. Suitable for dev/testing. Appends
// are serialized under one mutex, so duplicate detection never races.
type Store struct {
	mu      sync.RWMutex
	records []*triage.Record            // append order
	byPair  map[string]*triage.Record   // incident id + hash -> latest record
	byInc   map[string][]*triage.Record // incident id -> records
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		byPair: make(map[string]*triage.Record),
		byInc:  make(map[string][]*triage.Record),
	}
}

func pairKey(incidentID, hash string) string {
	return incidentID + "\x00" + hash
}

// Append stores a copy of the record. Records are never mutated after write.
func (s *Store) Append(_ context.Context, rec *triage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records = append(s.records, &cp)
	s.byInc[cp.IncidentID] = append(s.byInc[cp.IncidentID], &cp)

	// keep the first applied record as the dedup witness; later skips must
	// not shadow it
	key := pairKey(cp.IncidentID, cp.DecisionHash)
	if prev, ok := s.byPair[key]; !ok || prev.Outcome != triage.OutcomeApplied {
		s.byPair[key] = &cp
	}
	return nil
}

// Find retrieves the dedup witness for (incident id, decision hash).
// Returns a copy.
func (s *Store) Find(_ context.Context, incidentID, decisionHash string) (*triage.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byPair[pairKey(incidentID, decisionHash)]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

// ListByIncident returns the incident's audit trail in append order.
func (s *Store) ListByIncident(_ context.Context, incidentID string) ([]*triage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.byInc[incidentID]
	out := make([]*triage.Record, 0, len(recs))
	for _, r := range recs {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// Len returns the total number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
