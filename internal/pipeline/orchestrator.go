// Package pipeline runs the staged document analysis: a coordinator that
// walks the stage chain for one run, and an orchestrator that feeds a
// worker pool from a bounded queue in server mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lexiscan/internal/config"
	"lexiscan/internal/document"
	"lexiscan/internal/llm"
	"lexiscan/internal/prompt"
)

var (
	// ErrRunNotFound is returned for lookups of unknown or expired runs.
	ErrRunNotFound = errors.New("run not found")
	// ErrQueueFull is returned when the submit queue is saturated.
	ErrQueueFull = errors.New("run queue is full")
)

// Orchestrator manages the analysis worker pool and run registry.
type Orchestrator struct {
	runs  *RunStore
	queue chan *Run
	coord *Coordinator
	lib   *prompt.Library
	log   *slog.Logger
	cfg   config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Start must be called before
// submitted runs are processed.
func NewOrchestrator(cfg config.Config, client llm.ModelClient, lib *prompt.Library, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runs:  NewRunStore(cfg.RunTTL),
		queue: make(chan *Run, cfg.MaxQueueSize),
		coord: NewCoordinator(cfg, client, lib, log),
		lib:   lib,
		log:   log,
		cfg:   cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case run, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, run)
				}
			}
		}()
	}

	// Start run store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.runs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline. In-flight runs end Cancelled.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

func (o *Orchestrator) process(ctx context.Context, run *Run) {
	switch run.Mode {
	case ModeCompare:
		o.coord.Compare(ctx, run)
	default:
		o.coord.Analyze(ctx, run)
	}
}

// NewAnalysisRun builds a queued single-document run over the full
// analysis chain.
func (o *Orchestrator) NewAnalysisRun(filename string, doc document.Document) *Run {
	return NewRun(ModeAnalyze, []string{filename}, []document.Document{doc}, o.lib.Analysis)
}

// NewComparisonRun builds a queued two-document comparison run.
func (o *Orchestrator) NewComparisonRun(filenameA, filenameB string, docA, docB document.Document) *Run {
	return NewRun(ModeCompare, []string{filenameA, filenameB}, []document.Document{docA, docB}, o.lib.ComparisonStages())
}

// Submit registers a run and queues it for processing. The run is kept in
// the store even when the queue rejects it, so its failure is observable.
func (o *Orchestrator) Submit(run *Run) error {
	o.runs.Put(run)
	select {
	case o.queue <- run:
		return nil
	default:
		run.Fail("queue", "run queue is full")
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// Run returns a run by ID.
func (o *Orchestrator) Run(id string) (*Run, error) {
	run := o.runs.Get(id)
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// RunCounts returns the number of stored runs per state.
func (o *Orchestrator) RunCounts() map[RunState]int {
	return o.runs.CountByState()
}
