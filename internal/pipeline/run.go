package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"lexiscan/internal/document"
	"lexiscan/internal/prompt"
)

// RunMode selects the stage chain a run executes.
type RunMode string

const (
	ModeAnalyze RunMode = "analyze"
	ModeCompare RunMode = "compare"
)

// RunState represents the lifecycle of a run.
type RunState string

const (
	StateQueued    RunState = "queued"
	StateRunning   RunState = "running"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
	StateCancelled RunState = "cancelled"
)

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// StageStatus represents the state of a single stage within a run.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
)

// StageState is the per-stage progress record. Degraded marks a completed
// stage whose model response could not be parsed; Reason carries the
// parse or failure reason. A failed run leaves the failing stage in its
// running state; the run-level FailedStage names it.
type StageState struct {
	Name     string      `json:"name"`
	Title    string      `json:"title"`
	Status   StageStatus `json:"status"`
	Attempts int         `json:"attempts"`
	Degraded bool        `json:"degraded,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// Run tracks the state of a single analysis or comparison.
type Run struct {
	mu sync.Mutex

	ID        string   `json:"run_id"`
	Mode      RunMode  `json:"mode"`
	Filenames []string `json:"filenames"`

	State       RunState     `json:"state"`
	FailedStage string       `json:"failed_stage,omitempty"`
	Error       string       `json:"error,omitempty"`
	Stages      []StageState `json:"stages"`

	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	docs    []document.Document
	results map[string]map[string]any
	report  string
}

// NewRun builds a queued run over the given parsed documents with one
// StageState per stage in the chain.
func NewRun(mode RunMode, filenames []string, docs []document.Document, stages []prompt.Stage) *Run {
	now := time.Now()
	states := make([]StageState, len(stages))
	for i, s := range stages {
		states[i] = StageState{Name: s.Name, Title: s.Title, Status: StagePending}
	}
	return &Run{
		ID:          newRunID(),
		Mode:        mode,
		Filenames:   filenames,
		State:       StateQueued,
		Stages:      states,
		ContentHash: contentHash(docs),
		CreatedAt:   now,
		UpdatedAt:   now,
		docs:        docs,
		results:     make(map[string]map[string]any),
	}
}

// Documents returns the parsed documents the run operates on.
func (r *Run) Documents() []document.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs
}

// SetState updates the run state atomically.
func (r *Run) SetState(state RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.State = state
	r.UpdatedAt = time.Now()
}

// StartStage marks a stage as running.
func (r *Run) StartStage(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.stageIndex(name); i >= 0 {
		r.Stages[i].Status = StageRunning
	}
	r.UpdatedAt = time.Now()
}

// RecordAttempt increments the attempt counter for a stage.
func (r *Run) RecordAttempt(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.stageIndex(name); i >= 0 {
		r.Stages[i].Attempts++
	}
	r.UpdatedAt = time.Now()
}

// CompleteStage marks a stage completed. A degraded completion records
// the parse reason but still advances the chain.
func (r *Run) CompleteStage(name string, degraded bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.stageIndex(name); i >= 0 {
		r.Stages[i].Status = StageCompleted
		r.Stages[i].Degraded = degraded
		r.Stages[i].Reason = reason
	}
	r.UpdatedAt = time.Now()
}

// Fail marks the run failed at the given stage.
func (r *Run) Fail(stage, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.State = StateFailed
	r.FailedStage = stage
	r.Error = reason
	r.UpdatedAt = time.Now()
}

// SetResult records the parsed fields of a model stage. A nil fields map
// marks a malformed response; downstream prompt building degrades to the
// not-available marker for every field of that stage.
func (r *Run) SetResult(name string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = fields
	r.UpdatedAt = time.Now()
}

// Result returns the parsed fields of a stage. ok is false when the stage
// has not produced a result; a nil map with ok=true marks a malformed
// response.
func (r *Run) Result(name string) (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields, ok := r.results[name]
	return fields, ok
}

// Results returns a copy of the stage result map. The field maps are
// shared and must be treated as read-only.
func (r *Run) Results() map[string]map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]any, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

// SetReport stores the rendered Markdown report.
func (r *Run) SetReport(md string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report = md
	r.UpdatedAt = time.Now()
}

// Report returns the rendered report, available once the render stage
// has completed.
func (r *Run) Report() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report, r.report != ""
}

func (r *Run) stageIndex(name string) int {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return i
		}
	}
	return -1
}

// RunSnapshot is a read-only, JSON-safe copy of run state. Results holds
// the parsed fields of completed stages; malformed stages are absent and
// flagged on their StageState instead.
type RunSnapshot struct {
	ID          string                    `json:"run_id"`
	Mode        RunMode                   `json:"mode"`
	State       RunState                  `json:"state"`
	Filenames   []string                  `json:"filenames"`
	FailedStage string                    `json:"failed_stage,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Stages      []StageState              `json:"stages"`
	Results     map[string]map[string]any `json:"results,omitempty"`
	ContentHash string                    `json:"content_hash"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	stages := make([]StageState, len(r.Stages))
	copy(stages, r.Stages)
	var results map[string]map[string]any
	for name, fields := range r.results {
		if fields == nil {
			continue
		}
		if results == nil {
			results = make(map[string]map[string]any)
		}
		results[name] = fields
	}
	return RunSnapshot{
		ID:          r.ID,
		Mode:        r.Mode,
		State:       r.State,
		Filenames:   r.Filenames,
		FailedStage: r.FailedStage,
		Error:       r.Error,
		Stages:      stages,
		Results:     results,
		ContentHash: r.ContentHash,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// RunStore is a thread-safe in-memory run registry with TTL eviction.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRunStore(ttl time.Duration) *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

// CountByState returns the number of stored runs in each state.
func (s *RunStore) CountByState() map[RunState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[RunState]int)
	for _, run := range s.runs {
		run.mu.Lock()
		counts[run.State]++
		run.mu.Unlock()
	}
	return counts
}

// Cleanup removes expired runs.
func (s *RunStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, run := range s.runs {
		run.mu.Lock()
		updated := run.UpdatedAt
		run.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.runs, id)
		}
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

func contentHash(docs []document.Document) string {
	h := sha256.New()
	for i, d := range docs {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(d.Text))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
