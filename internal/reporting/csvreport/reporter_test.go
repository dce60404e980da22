package csvreport

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestReportFilename(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 7, 42, 0, time.UTC)
	assert.Equal(t, "20260830-0907-security_report.csv", ReportFilename(now))
}

func TestRowWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRowWriter(&buf)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Write(Row{
		Number:         1,
		Application:    "app",
		Organization:   "org",
		Policy:         "Security-High",
		Component:      "lib 1.0",
		ThreatLevel:    9,
		PolicyAction:   "Security-Critical",
		ConstraintName: "High CVSS score",
		Condition:      "has | pipes, and commas",
		CVE:            "CVE-2021-1234",
	}))
	require.NoError(t, w.Flush())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "No.", records[0][0])
	assert.Equal(t, "CVE", records[0][9])
	assert.Equal(t, "9", records[1][5])
	assert.Equal(t, "has | pipes, and commas", records[1][8])
}

func TestReporterWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "report.csv")

	r := NewReporter(zaptest.NewLogger(t))
	require.NoError(t, r.WriteFile(path, []Row{
		{Number: 1, Application: "a"},
		{Number: 2, Application: "b"},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[1][1])
	assert.Equal(t, "b", records[2][1])
}
