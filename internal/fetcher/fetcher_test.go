package fetcher

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/iqfetch/internal/iqserver"
)

// newFakeIQServer serves the three-application scenario: app1 has no reports,
// app2's report lookup fails at the HTTP level, app3 succeeds with two
// violations on one component.
func newFakeIQServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/organizations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organizations": [{"id": "org-1", "name": "Platform"}]}`))
	})
	mux.HandleFunc("/api/v2/applications", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"applications": [
			{"id": "a1", "publicId": "app1", "name": "App 1"},
			{"id": "a2", "publicId": "app2", "name": "App 2"},
			{"id": "a3", "publicId": "app3", "name": "App 3"}
		]}`))
	})
	mux.HandleFunc("/api/v2/reports/applications/a1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/v2/reports/applications/a2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v2/reports/applications/a3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"reportDataUrl": "api/v2/applications/app3/reports/R3/raw"}]`))
	})
	mux.HandleFunc("/api/v2/applications/app3/reports/R3/policy", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"application": {"publicId": "app3", "organizationId": "org-1"},
			"components": [
				{
					"displayName": "left-pad 1.0.0",
					"violations": [
						{
							"policyName": "Security-High",
							"policyThreatLevel": 9,
							"policyThreatCategory": "SECURITY",
							"constraints": [{
								"constraintName": "High CVSS score",
								"conditions": [{
									"conditionSummary": "found vulnerability CVE-2021-1234",
									"conditionReason": "CVSS 9.8"
								}]
							}]
						},
						{
							"policyName": "License-Copyleft",
							"policyThreatLevel": 5,
							"constraints": []
						}
					]
				},
				{"displayName": "clean-lib 2.0.0", "violations": []}
			]
		}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runPipeline(t *testing.T, workers int) (string, [][]string) {
	t.Helper()

	srv := newFakeIQServer(t)
	logger := zaptest.NewLogger(t)
	client := iqserver.NewClient(srv.URL, "admin", "secret", logger)

	dir := t.TempDir()
	f := New(client, Options{OutputDir: dir, Workers: workers}, logger)
	f.now = func() time.Time { return time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC) }

	require.NoError(t, f.Run(context.Background()))

	csvPath := filepath.Join(dir, "20260830-1405-security_report.csv")
	file, err := os.Open(csvPath)
	require.NoError(t, err, "consolidated CSV should exist")
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return dir, records
}

func TestRunEndToEnd(t *testing.T) {
	dir, records := runPipeline(t, 4)

	// Header plus one row per violation of the one successful application.
	require.Len(t, records, 3)
	assert.Equal(t, []string{
		"No.", "Application", "Organization", "Policy", "Component",
		"Threat", "Policy/Action", "Constraint Name", "Condition", "CVE",
	}, records[0])

	first := records[1]
	assert.Equal(t, "1", first[0])
	assert.Equal(t, "app3", first[1])
	assert.Equal(t, "Platform", first[2])
	assert.Equal(t, "Security-High", first[3])
	assert.Equal(t, "left-pad 1.0.0", first[4])
	assert.Equal(t, "9", first[5])
	assert.Equal(t, "Security-Critical", first[6])
	assert.Equal(t, "High CVSS score", first[7])
	assert.Equal(t, "CVSS 9.8", first[8])
	assert.Equal(t, "CVE-2021-1234", first[9])

	second := records[2]
	assert.Equal(t, "2", second[0])
	assert.Equal(t, "app3", second[1])
	assert.Equal(t, "Severe", second[6])

	// Cleanup property: intermediate JSON artifacts are gone, the CSV stays.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotEqual(t, ".json", filepath.Ext(entry.Name()),
			"intermediate artifact %s should have been deleted", entry.Name())
	}
}

func TestRunWorkerCountInvariance(t *testing.T) {
	_, baseline := runPipeline(t, 1)
	for _, workers := range []int{2, 8} {
		_, records := runPipeline(t, workers)
		assert.Equal(t, baseline, records, "workers=%d", workers)
	}
}

func TestRunWithNoApplications(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/organizations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organizations": []}`))
	})
	mux.HandleFunc("/api/v2/applications", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"applications": []}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	client := iqserver.NewClient(srv.URL, "admin", "secret", logger)
	dir := t.TempDir()

	f := New(client, Options{OutputDir: dir, Workers: 4}, logger)
	require.NoError(t, f.Run(context.Background()))

	// No consolidation happened, so the directory stays empty.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunWithAllFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/organizations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v2/applications", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"applications": [{"id": "a1", "publicId": "app1", "name": "App 1"}]}`))
	})
	mux.HandleFunc("/api/v2/reports/applications/a1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	client := iqserver.NewClient(srv.URL, "admin", "secret", logger)
	dir := t.TempDir()

	f := New(client, Options{OutputDir: dir, Workers: 2}, logger)
	// A fully failed run still exits cleanly.
	require.NoError(t, f.Run(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
