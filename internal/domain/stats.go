package domain

import "time"

// InstanceStats aggregates the attempts made against one instance since the
// counters were first persisted.
type InstanceStats struct {
	Instance    string        `json:"instance"`
	Successes   int64         `json:"successes"`
	Terminals   int64         `json:"terminals"`
	Failures    int64         `json:"failures"`
	LastStatus  int           `json:"last_status,omitempty"`
	LastLatency time.Duration `json:"last_latency_ns,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	LastSeen    time.Time     `json:"last_seen,omitzero"`
}

// Attempts returns the total number of attempts recorded.
func (s InstanceStats) Attempts() int64 {
	return s.Successes + s.Terminals + s.Failures
}

// Apply folds one attempt into the counters.
func (s *InstanceStats) Apply(a Attempt, at time.Time) {
	switch a.Kind {
	case OutcomeSuccess:
		s.Successes++
	case OutcomeTerminal:
		s.Terminals++
	default:
		s.Failures++
	}
	s.LastStatus = a.StatusCode
	s.LastLatency = a.Duration
	s.LastError = a.Err
	s.LastSeen = at
}

// DispatchTotals counts dispatch results by kind.
type DispatchTotals struct {
	Success   int64 `json:"success"`
	Terminal  int64 `json:"terminal"`
	Exhausted int64 `json:"exhausted"`
	Rejected  int64 `json:"rejected"`
	CacheHits int64 `json:"cache_hits"`
}
