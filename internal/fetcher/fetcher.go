// Package fetcher implements the fetch-and-consolidate pipeline: discover
// applications and organizations, fan per-application report fetches out
// across a worker pool, consolidate the staged payloads into one CSV, and
// clean the staging files up.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/iqfetch/internal/iqserver"
	"github.com/xkilldash9x/iqfetch/internal/reporting/csvreport"
)

// API is the full IQ client surface the pipeline consumes.
type API interface {
	ReportAPI
	GetApplications(ctx context.Context, orgID string) ([]iqserver.Application, error)
	GetOrganizations(ctx context.Context) ([]iqserver.Organization, error)
}

// Options configures one pipeline run.
type Options struct {
	// OutputDir receives the intermediate artifacts and the final CSV.
	OutputDir string
	// OrganizationID optionally scopes application discovery.
	OrganizationID string
	// Workers bounds the fetch concurrency.
	Workers int
}

// Fetcher runs the whole pipeline.
type Fetcher struct {
	api  API
	opts Options
	log  *zap.Logger

	// now is swapped in tests to pin the CSV filename.
	now func() time.Time
}

// New builds a Fetcher.
func New(api API, opts Options, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		api:  api,
		opts: opts,
		log:  logger.Named("fetcher"),
		now:  time.Now,
	}
}

// Run executes a full fetch-and-consolidate cycle. Per-application failures
// never fail the run; only conditions that prevent the run from starting
// (such as an unwritable output directory) surface as an error.
func (f *Fetcher) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := f.log.With(zap.String("run_id", runID))

	if err := os.MkdirAll(f.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", f.opts.OutputDir, err)
	}

	log.Info("Starting report fetch", zap.String("output_dir", f.opts.OutputDir))

	orgNames := f.fetchOrgNames(ctx, log)

	apps, err := f.discoverApplications(ctx, log)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		log.Warn("No applications to process")
		return nil
	}

	orchestrator := NewOrchestrator(NewResolver(f.api, log), f.opts.OutputDir, f.opts.Workers, log)
	summary := orchestrator.Run(ctx, apps)
	f.logSummary(log, summary)

	reports := f.loadArtifacts(log, summary.ArtifactPaths)

	consolidator := csvreport.NewConsolidator(orgNames, log)
	rows := consolidator.Consolidate(reports)
	if len(rows) == 0 {
		log.Warn("No data was consolidated")
	} else {
		csvPath := filepath.Join(f.opts.OutputDir, csvreport.ReportFilename(f.now()))
		reporter := csvreport.NewReporter(log)
		if err := reporter.WriteFile(csvPath, rows); err != nil {
			return fmt.Errorf("failed to write consolidated CSV: %w", err)
		}
		log.Info("Consolidated CSV saved",
			zap.String("path", csvPath),
			zap.Int("rows", len(rows)))
	}

	f.cleanup(log, summary.ArtifactPaths)
	return nil
}

// fetchOrgNames builds the organization id -> name mapping once per run.
// Failure is non-fatal: consumers fall back to the raw id.
func (f *Fetcher) fetchOrgNames(ctx context.Context, log *zap.Logger) map[string]string {
	log.Info("Fetching organizations")

	orgs, err := f.api.GetOrganizations(ctx)
	if err != nil {
		log.Warn("Could not fetch organizations; raw ids will be used", zap.Error(err))
		return map[string]string{}
	}

	names := make(map[string]string, len(orgs))
	for _, org := range orgs {
		names[org.ID] = org.Name
	}
	log.Info("Organizations resolved", zap.Int("count", len(names)))
	return names
}

// discoverApplications lists the applications in scope and logs a short
// preview of what was found.
func (f *Fetcher) discoverApplications(ctx context.Context, log *zap.Logger) ([]iqserver.Application, error) {
	log.Info("Fetching applications", zap.String("organization_id", f.opts.OrganizationID))

	apps, err := f.api.GetApplications(ctx, f.opts.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch applications: %w", err)
	}
	log.Info("Applications found", zap.Int("count", len(apps)))

	for i, app := range apps {
		if i >= 5 {
			log.Info(fmt.Sprintf("... and %d more", len(apps)-5))
			break
		}
		log.Info(fmt.Sprintf("%d. %s (%s)", i+1, app.Name, app.PublicID))
	}
	return apps, nil
}

func (f *Fetcher) logSummary(log *zap.Logger, summary Summary) {
	log.Info("Processing completed",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("total", summary.Total))

	switch {
	case summary.Succeeded == summary.Total:
		log.Info("All reports fetched successfully")
	case summary.Succeeded > 0:
		log.Warn("Some reports failed to fetch", zap.Int("failed", summary.Failed))
	default:
		log.Error("No reports were successfully fetched")
	}
}

// loadArtifacts reads the staged payloads back. A file that cannot be read or
// parsed is skipped with an error log.
func (f *Fetcher) loadArtifacts(log *zap.Logger, paths []string) []iqserver.PolicyReport {
	reports := make([]iqserver.PolicyReport, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error("Failed to load artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		var report iqserver.PolicyReport
		if err := json.Unmarshal(data, &report); err != nil {
			log.Error("Failed to parse artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		reports = append(reports, report)
	}
	return reports
}

// cleanup deletes the intermediate artifacts. A failed deletion is a warning,
// nothing more.
func (f *Fetcher) cleanup(log *zap.Logger, paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			log.Warn("Could not delete artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		log.Debug("Deleted artifact", zap.String("path", path))
	}
}
