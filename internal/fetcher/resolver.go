package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/iqfetch/internal/iqserver"
)

// ReportAPI is the slice of the IQ client the resolver needs.
type ReportAPI interface {
	GetLatestReportInfo(ctx context.Context, appID string) (*iqserver.ReportInfo, error)
	GetPolicyViolations(ctx context.Context, publicID, reportID string) (json.RawMessage, error)
}

// Status classifies the result of resolving one application's report.
type Status int

const (
	// StatusOK means the violation payload was fetched.
	StatusOK Status = iota
	// StatusNoReports means the server has no reports for the application.
	StatusNoReports
	// StatusNoReportID means no identifier could be derived from the latest
	// report info.
	StatusNoReportID
	// StatusNoViolationData means the report exists but its payload is empty.
	StatusNoViolationData
	// StatusRequestFailed means a request failed at the transport/HTTP level.
	StatusRequestFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoReports:
		return "no reports"
	case StatusNoReportID:
		return "no report id"
	case StatusNoViolationData:
		return "no violation data"
	case StatusRequestFailed:
		return "request failed"
	}
	return "unknown"
}

// Outcome is the discriminated result of resolving one application. ReportID
// and Payload are set only when Status is StatusOK. Nothing escapes the
// resolver as an error; every failure mode is a Status.
type Outcome struct {
	App      iqserver.Application
	Status   Status
	ReportID string
	Payload  json.RawMessage
}

// Resolver turns one application into its latest violation payload.
type Resolver struct {
	api ReportAPI
	log *zap.Logger
}

// NewResolver builds a resolver on top of the given API slice.
func NewResolver(api ReportAPI, logger *zap.Logger) *Resolver {
	return &Resolver{api: api, log: logger.Named("resolver")}
}

// Resolve fetches the latest report info, derives a report identifier and
// fetches the violation payload for one application. Each step failing ends
// the sequence with the matching Status.
func (r *Resolver) Resolve(ctx context.Context, app iqserver.Application) Outcome {
	log := r.log.With(
		zap.String("application", app.Name),
		zap.String("public_id", app.PublicID))

	info, err := r.api.GetLatestReportInfo(ctx, app.ID)
	if err != nil {
		log.Warn("Report info request failed", zap.Error(err))
		return Outcome{App: app, Status: StatusRequestFailed}
	}
	if info == nil {
		log.Warn("No reports found")
		return Outcome{App: app, Status: StatusNoReports}
	}

	reportID := ExtractReportID(info)
	if reportID == "" {
		log.Warn("No report ID could be derived")
		return Outcome{App: app, Status: StatusNoReportID}
	}

	payload, err := r.api.GetPolicyViolations(ctx, app.PublicID, reportID)
	if err != nil {
		log.Warn("Violation data request failed", zap.String("report_id", reportID), zap.Error(err))
		return Outcome{App: app, Status: StatusRequestFailed}
	}
	if emptyPayload(payload) {
		log.Warn("No violation data in report", zap.String("report_id", reportID))
		return Outcome{App: app, Status: StatusNoViolationData}
	}

	return Outcome{App: app, Status: StatusOK, ReportID: reportID, Payload: payload}
}

// ExtractReportID derives a report identifier from report info. Strategies in
// order: the path segment of ReportDataURL following "/reports/", then ScanID,
// then ReportID. Returns "" when all three are absent or unparsable.
func ExtractReportID(info *iqserver.ReportInfo) string {
	if info.ReportDataURL != "" {
		if _, rest, found := strings.Cut(info.ReportDataURL, "/reports/"); found {
			id, _, _ := strings.Cut(rest, "/")
			if id != "" {
				return id
			}
		}
	}
	if info.ScanID != "" {
		return info.ScanID
	}
	return info.ReportID
}

// emptyPayload reports whether a raw payload carries no usable report data.
func emptyPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err == nil && len(fields) == 0 {
		return true
	}
	return false
}
