package storage

import (
	"maps"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory slice.
// Runs are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	runs []Run
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make([]Run, 0),
	}
}

// Save stores a run.
func (s *MemoryStore) Save(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *run
	stored.ByType = maps.Clone(run.ByType)
	s.runs = append(s.runs, stored)
	return nil
}

// Query retrieves runs matching the given criteria, newest first.
func (s *MemoryStore) Query(opts QueryOptions) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Run, 0)

	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]

		// Apply filters
		if opts.Since != nil && run.Timestamp.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && run.Timestamp.After(*opts.Until) {
			continue
		}
		if opts.Mode != "" && run.Mode != opts.Mode {
			continue
		}
		if opts.Source != "" && run.Source != opts.Source {
			continue
		}
		if opts.MinFindings > 0 && run.TotalFindings < opts.MinFindings {
			continue
		}

		results = append(results, run)
	}

	// Apply offset and limit
	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []Run{}, nil
		}
		results = results[opts.Offset:]
	}

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results, nil
}

// Stats aggregates all stored runs.
func (s *MemoryStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := startOfDay(time.Now())
	stats := Stats{ByType: make(map[string]int64)}

	for _, run := range s.runs {
		stats.TotalRuns++
		if !run.Timestamp.Before(today) {
			stats.RunsToday++
		}
		stats.TotalFindings += int64(run.TotalFindings)
		if run.LimitHit {
			stats.LimitHits++
		}
		for category, n := range run.ByType {
			stats.ByType[category] += int64(n)
		}
	}

	return stats, nil
}

// Clear removes all stored runs (for testing).
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make([]Run, 0)
}

// Close closes the storage connection (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}
