package csvreport

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// header is the fixed column set of the consolidated report.
var header = []string{
	"No.",
	"Application",
	"Organization",
	"Policy",
	"Component",
	"Threat",
	"Policy/Action",
	"Constraint Name",
	"Condition",
	"CVE",
}

// ReportFilename returns the timestamped name of the consolidated CSV.
func ReportFilename(now time.Time) string {
	return now.Format("20060102-1504") + "-security_report.csv"
}

// RowWriter writes consolidated rows to some sink.
type RowWriter interface {
	WriteHeader() error
	Write(row Row) error
	Flush() error
}

type csvRowWriter struct {
	w *csv.Writer
}

// NewRowWriter returns a RowWriter emitting CSV to w.
func NewRowWriter(w io.Writer) RowWriter {
	return &csvRowWriter{w: csv.NewWriter(w)}
}

func (c *csvRowWriter) WriteHeader() error {
	return c.w.Write(header)
}

func (c *csvRowWriter) Write(row Row) error {
	return c.w.Write([]string{
		strconv.Itoa(row.Number),
		row.Application,
		row.Organization,
		row.Policy,
		row.Component,
		strconv.Itoa(row.ThreatLevel),
		row.PolicyAction,
		row.ConstraintName,
		row.Condition,
		row.CVE,
	})
}

func (c *csvRowWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// Reporter writes the consolidated table to disk.
type Reporter struct {
	log *zap.Logger
}

// NewReporter builds a Reporter.
func NewReporter(logger *zap.Logger) *Reporter {
	return &Reporter{log: logger.Named("csvreport")}
}

// WriteFile writes the header and all rows to path, creating parent
// directories as needed.
func (r *Reporter) WriteFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := NewRowWriter(f)
	if err := w.WriteHeader(); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", row.Number, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	r.log.Debug("Report written", zap.String("path", path), zap.Int("rows", len(rows)))
	return nil
}
