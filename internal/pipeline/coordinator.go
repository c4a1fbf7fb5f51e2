package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lexiscan/internal/config"
	"lexiscan/internal/document"
	"lexiscan/internal/llm"
	"lexiscan/internal/prompt"
	"lexiscan/internal/report"
)

// Coordinator executes the stage chain for a run, strictly in order.
// Stage N+1 never starts before stage N completes, so each prompt is
// built from a settled set of earlier results.
type Coordinator struct {
	client       llm.ModelClient
	lib          *prompt.Library
	log          *slog.Logger
	maxAttempts  int
	stageTimeout time.Duration
	minChars     int

	// Overridable in tests to avoid real sleeps.
	backoff func(attempt int) time.Duration
}

func NewCoordinator(cfg config.Config, client llm.ModelClient, lib *prompt.Library, log *slog.Logger) *Coordinator {
	return &Coordinator{
		client:       client,
		lib:          lib,
		log:          log,
		maxAttempts:  cfg.MaxAttempts,
		stageTimeout: cfg.StageTimeout,
		minChars:     cfg.MinDocumentChars,
		backoff:      Backoff,
	}
}

// Analyze runs the full analysis chain over the run's single document.
// The run ends Succeeded, Failed, or Cancelled; a malformed model
// response degrades its stage instead of failing the run.
func (c *Coordinator) Analyze(ctx context.Context, run *Run) {
	log := c.log.With("run_id", run.ID, "mode", run.Mode)
	run.SetState(StateRunning)
	log.Info("pipeline.run.started", "filenames", run.Filenames)

	docs := run.Documents()
	var text string
	for _, stage := range c.lib.Analysis {
		if ctx.Err() != nil {
			log.Info("pipeline.run.cancelled", "stage", stage.Name)
			run.SetState(StateCancelled)
			return
		}
		run.StartStage(stage.Name)

		var degraded bool
		var reason string
		switch stage.Kind {
		case prompt.KindExtract:
			text = document.Normalize(docs[0].Text)
			if len(text) < c.minChars {
				r := fmt.Sprintf("document too short after extraction: %d chars, need at least %d", len(text), c.minChars)
				log.Warn("pipeline.stage.failed", "stage", stage.Name, "reason", r)
				run.Fail(stage.Name, r)
				return
			}

		case prompt.KindModel:
			var err error
			degraded, reason, err = c.runModelStage(ctx, run, stage, map[string]string{"document": text})
			if err != nil {
				if ctx.Err() != nil {
					log.Info("pipeline.run.cancelled", "stage", stage.Name)
					run.SetState(StateCancelled)
					return
				}
				log.Error("pipeline.stage.failed", "stage", stage.Name, "error", err)
				run.Fail(stage.Name, err.Error())
				return
			}

		case prompt.KindRender:
			md := report.Render(report.Analysis{
				Filename:    fileAt(run, 0),
				Pages:       docs[0].Pages,
				GeneratedAt: time.Now(),
				Results:     run.Results(),
			})
			run.SetReport(md)
		}

		run.CompleteStage(stage.Name, degraded, reason)
		log.Info("pipeline.stage.completed", "stage", stage.Name, "degraded", degraded)
	}

	run.SetState(StateSucceeded)
	log.Info("pipeline.run.succeeded")
}

// Compare runs the shorter two-document chain: extract both, one joint
// comparison invocation, then the comparison renderer.
func (c *Coordinator) Compare(ctx context.Context, run *Run) {
	log := c.log.With("run_id", run.ID, "mode", run.Mode)
	run.SetState(StateRunning)
	log.Info("pipeline.run.started", "filenames", run.Filenames)

	docs := run.Documents()
	texts := make([]string, len(docs))
	for _, stage := range c.lib.ComparisonStages() {
		if ctx.Err() != nil {
			log.Info("pipeline.run.cancelled", "stage", stage.Name)
			run.SetState(StateCancelled)
			return
		}
		run.StartStage(stage.Name)

		var degraded bool
		var reason string
		switch stage.Kind {
		case prompt.KindExtract:
			labels := []string{"document A", "document B"}
			for i, d := range docs {
				texts[i] = document.Normalize(d.Text)
				if len(texts[i]) < c.minChars {
					r := fmt.Sprintf("%s too short after extraction: %d chars, need at least %d", labels[i], len(texts[i]), c.minChars)
					log.Warn("pipeline.stage.failed", "stage", stage.Name, "reason", r)
					run.Fail(stage.Name, r)
					return
				}
			}

		case prompt.KindModel:
			var err error
			degraded, reason, err = c.runModelStage(ctx, run, stage, map[string]string{
				"document_a": texts[0],
				"document_b": texts[1],
			})
			if err != nil {
				if ctx.Err() != nil {
					log.Info("pipeline.run.cancelled", "stage", stage.Name)
					run.SetState(StateCancelled)
					return
				}
				log.Error("pipeline.stage.failed", "stage", stage.Name, "error", err)
				run.Fail(stage.Name, err.Error())
				return
			}

		case prompt.KindRender:
			fields, _ := run.Result(c.lib.Comparison.Name)
			md := report.RenderComparison(report.Comparison{
				FilenameA:   fileAt(run, 0),
				FilenameB:   fileAt(run, 1),
				GeneratedAt: time.Now(),
				Fields:      fields,
			})
			run.SetReport(md)
		}

		run.CompleteStage(stage.Name, degraded, reason)
		log.Info("pipeline.stage.completed", "stage", stage.Name, "degraded", degraded)
	}

	run.SetState(StateSucceeded)
	log.Info("pipeline.run.succeeded")
}

// runModelStage invokes the model for one stage and records the parsed
// result on the run. A malformed response is recorded as a nil result and
// reported as a degraded completion, never an error.
func (c *Coordinator) runModelStage(ctx context.Context, run *Run, stage prompt.Stage, docs map[string]string) (degraded bool, reason string, err error) {
	res, err := c.invokeStage(ctx, run, stage, docs)
	if err != nil {
		return false, "", err
	}
	if res.Malformed {
		c.log.Warn("pipeline.stage.malformed", "run_id", run.ID, "stage", stage.Name, "reason", res.Reason)
		run.SetResult(stage.Name, nil)
		return true, res.Reason, nil
	}
	run.SetResult(stage.Name, res.Fields)
	return false, "", nil
}

// invokeStage calls the model under the per-stage deadline, retrying
// transient errors with backoff up to the attempt budget. The prompt is
// built once; retries resend the same request.
func (c *Coordinator) invokeStage(ctx context.Context, run *Run, stage prompt.Stage, docs map[string]string) (*llm.Result, error) {
	req := llm.Request{
		Stage:  stage.Name,
		Prompt: prompt.Build(stage, docs, run.Results()),
		System: stage.System,
		Shape:  stage.OutputShape(),
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		run.RecordAttempt(stage.Name)
		stageCtx, cancel := context.WithTimeout(ctx, c.stageTimeout)
		res, err := c.client.Invoke(stageCtx, req)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) || attempt == c.maxAttempts-1 {
			break
		}
		c.log.Warn("pipeline.stage.retry",
			"run_id", run.ID, "stage", stage.Name, "attempt", attempt+1, "error", err)
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func fileAt(run *Run, i int) string {
	if i < len(run.Filenames) {
		return run.Filenames[i]
	}
	return ""
}
