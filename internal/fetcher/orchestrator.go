package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/iqfetch/internal/iqserver"
)

// AppResolver is the per-application work unit the orchestrator fans out.
type AppResolver interface {
	Resolve(ctx context.Context, app iqserver.Application) Outcome
}

// Result is one application's completed work item: its resolver outcome plus
// the artifact path when the payload was persisted.
type Result struct {
	Outcome      Outcome
	ArtifactPath string
}

// Succeeded reports whether this application produced a usable artifact.
func (r Result) Succeeded() bool {
	return r.Outcome.Status == StatusOK && r.ArtifactPath != ""
}

// Summary is the tally of one orchestrator run.
type Summary struct {
	Total         int
	Succeeded     int
	Failed        int
	ArtifactPaths []string
}

// Orchestrator dispatches per-application fetches across a bounded pool of
// workers and persists each successful payload as a JSON artifact.
type Orchestrator struct {
	resolver  AppResolver
	outputDir string
	workers   int
	log       *zap.Logger
}

// NewOrchestrator builds an orchestrator. A workers value below 1 falls back
// to a single worker.
func NewOrchestrator(resolver AppResolver, outputDir string, workers int, logger *zap.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		resolver:  resolver,
		outputDir: outputDir,
		workers:   workers,
		log:       logger.Named("orchestrator"),
	}
}

// Run processes every application exactly once and blocks until all of them
// have completed. Individual failures are counted, never propagated; the
// summary always accounts for len(apps) work items.
func (o *Orchestrator) Run(ctx context.Context, apps []iqserver.Application) Summary {
	total := len(apps)
	summary := Summary{Total: total}
	if total == 0 {
		return summary
	}

	o.log.Info("Starting fetch worker pool",
		zap.Int("workers", o.workers),
		zap.Int("applications", total))

	tasks := make(chan iqserver.Application, total)
	results := make(chan Result, total)

	var wg sync.WaitGroup
	var completed atomic.Int64

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go o.runWorker(ctx, tasks, results, &wg, &completed, total)
	}

	for _, app := range apps {
		tasks <- app
	}
	close(tasks)

	// Close the results channel once every worker has drained its share, so
	// the collection loop below is the synchronization barrier.
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.Succeeded() {
			summary.Succeeded++
			summary.ArtifactPaths = append(summary.ArtifactPaths, res.ArtifactPath)
		} else {
			summary.Failed++
		}
	}

	return summary
}

// runWorker drains the task channel until it is closed. Every task yields
// exactly one result; a panic inside one application's processing is caught
// here and demoted to a failed result.
func (o *Orchestrator) runWorker(
	ctx context.Context,
	tasks <-chan iqserver.Application,
	results chan<- Result,
	wg *sync.WaitGroup,
	completed *atomic.Int64,
	total int,
) {
	defer wg.Done()

	for app := range tasks {
		res := o.processOne(ctx, app)
		done := completed.Add(1)
		o.log.Info("Progress",
			zap.Int64("completed", done),
			zap.Int("total", total),
			zap.String("application", app.Name),
			zap.String("status", res.Outcome.Status.String()))
		results <- res
	}
}

// processOne resolves one application and persists its payload on success.
func (o *Orchestrator) processOne(ctx context.Context, app iqserver.Application) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Unexpected fault while processing application",
				zap.String("application", app.Name),
				zap.String("public_id", app.PublicID),
				zap.Any("panic", r))
			res = Result{Outcome: Outcome{App: app, Status: StatusRequestFailed}}
		}
	}()

	outcome := o.resolver.Resolve(ctx, app)
	if outcome.Status != StatusOK {
		return Result{Outcome: outcome}
	}

	path := o.artifactPath(outcome)
	if err := writeArtifact(path, outcome.Payload); err != nil {
		o.log.Error("Failed to write artifact",
			zap.String("application", app.Name),
			zap.String("path", path),
			zap.Error(err))
		return Result{Outcome: outcome}
	}

	o.log.Debug("Saved artifact",
		zap.String("application", app.Name),
		zap.String("path", path))
	return Result{Outcome: outcome, ArtifactPath: path}
}

// artifactPath is unique per application because (publicId, reportId) is, so
// no two workers ever write the same file.
func (o *Orchestrator) artifactPath(outcome Outcome) string {
	name := fmt.Sprintf("%s_%s.json", outcome.App.PublicID, outcome.ReportID)
	return filepath.Join(o.outputDir, name)
}

// writeArtifact stores the raw payload as indented JSON. If indentation
// fails the payload is written as received.
func writeArtifact(path string, payload json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return os.WriteFile(path, payload, 0o644)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
