package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-stock-sync/mapping"
	"github.com/aluiziolira/go-stock-sync/models"
	"github.com/aluiziolira/go-stock-sync/thumbs"
)

// State is the lifecycle of one key within a run.
type State int

const (
	StateUnseen State = iota
	StateCreated
	StateMerged
)

// Run carries everything one pass over the feed accumulates. It is shared by
// all workers; methods are safe for concurrent use.
type Run struct {
	ID     string
	Live   *thumbs.LiveSet
	Report *mapping.Report

	mu        sync.Mutex
	states    map[string]State
	outcomes  []models.Outcome
	counts    map[models.Status]int
	generated int
	hits      int
	thumbErrs int
}

// NewRun starts an empty run with a fresh id.
func NewRun() *Run {
	return &Run{
		ID:     uuid.NewString(),
		Live:   thumbs.NewLiveSet(),
		Report: mapping.NewReport(),
		states: make(map[string]State),
		counts: make(map[models.Status]int),
	}
}

// State returns the lifecycle state of key.
func (r *Run) State(key string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[key]
}

func (r *Run) record(o models.Outcome, res thumbs.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	r.counts[o.Status]++
	r.generated += res.Generated
	r.hits += res.Hits
	r.thumbErrs += res.Failed
	switch o.Status {
	case models.StatusCreated:
		r.states[o.Key] = StateCreated
	case models.StatusMerged:
		r.states[o.Key] = StateMerged
	}
}

// Outcomes returns a copy of every outcome recorded so far, in completion order.
func (r *Run) Outcomes() []models.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Result summarises the run. Sweep fields are left for the caller.
func (r *Run) Result() models.RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.RunResult{
		RunID:       r.ID,
		Records:     len(r.outcomes),
		Created:     r.counts[models.StatusCreated],
		Merged:      r.counts[models.StatusMerged],
		Rejected:    r.counts[models.StatusRejected],
		Failed:      r.counts[models.StatusFailed],
		Generated:   r.generated,
		CacheHits:   r.hits,
		ThumbErrors: r.thumbErrs,
		Missing:     r.Report.Pairs(),
	}
}
