// Package gap computes which item ids are still missing from the store.
//
// A Scanner walks candidate ids from the remote maximum down to zero and merges
// them against the ascending list of persisted ids, yielding only the gaps. It
// never materializes the missing set: state is one cursor into the persisted
// list plus the next candidate. Next is safe for concurrent callers; each
// missing id is handed out exactly once, so workers sharing a Scanner never
// see the same id.
package gap

import (
	"slices"
	"sync"
)

// DefaultReportingInterval is the number of processed ids between progress
// observations.
const DefaultReportingInterval = 1000

// Observer receives a progress observation every reporting interval. It is
// called outside the Scanner lock and must not block.
type Observer interface {
	Observe(processed, total int64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(processed, total int64)

// Observe calls f.
func (f ObserverFunc) Observe(processed, total int64) {
	f(processed, total)
}

// Config controls progress reporting.
type Config struct {
	ReportingInterval int64
	Observer          Observer
}

// Scanner lazily yields {0..maxID} \ persisted in strictly descending order.
// It is not restartable; build a new Scanner to scan again.
type Scanner struct {
	mu        sync.Mutex
	persisted []int64
	cursor    int
	next      int64
	maxID     int64
	processed int64
	interval  int64
	observer  Observer
}

// New builds a Scanner over the persisted ids and the remote maximum id.
// Persisted ids are expected ascending and unique; other input is sorted and
// compacted into a private copy.
func New(persisted []int64, maxID int64, cfg Config) *Scanner {
	ids := persisted
	if !slices.IsSorted(ids) || hasDuplicates(ids) {
		ids = slices.Clone(persisted)
		slices.Sort(ids)
		ids = slices.Compact(ids)
	}
	interval := cfg.ReportingInterval
	if interval <= 0 {
		interval = DefaultReportingInterval
	}
	return &Scanner{
		persisted: ids,
		cursor:    len(ids) - 1,
		next:      maxID,
		maxID:     maxID,
		// Persisted ids count as already processed.
		processed: int64(len(ids)),
		interval:  interval,
		observer:  cfg.Observer,
	}
}

// Next returns the next missing id, or false once the range is exhausted.
func (s *Scanner) Next() (int64, bool) {
	s.mu.Lock()
	id, ok := s.advance()
	report := false
	var processed int64
	if ok {
		s.processed++
		processed = s.processed
		report = s.observer != nil && processed%s.interval == 0
	}
	s.mu.Unlock()

	if report {
		s.observer.Observe(processed, s.maxID)
	}
	return id, ok
}

// advance runs one step of the descending merge. Callers hold s.mu.
func (s *Scanner) advance() (int64, bool) {
	for s.next >= 0 {
		candidate := s.next
		s.next--
		for s.cursor >= 0 && s.persisted[s.cursor] > candidate {
			s.cursor--
		}
		if s.cursor >= 0 && s.persisted[s.cursor] == candidate {
			s.cursor--
			continue
		}
		return candidate, true
	}
	return 0, false
}

// Processed returns the persisted count plus the ids yielded so far.
func (s *Scanner) Processed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// MaxID returns the fixed upper bound of the scan.
func (s *Scanner) MaxID() int64 {
	return s.maxID
}

func hasDuplicates(sorted []int64) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return true
		}
	}
	return false
}
