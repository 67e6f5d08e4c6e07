package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/sante-etl/internal/etl"
	"github.com/BartekS5/sante-etl/internal/ledger"
	"github.com/BartekS5/sante-etl/pkg/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CATALOG_FILE", "")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTablesListsBuiltInCatalog(t *testing.T) {
	out, err := execute(t, "tables")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 11)
	assert.Contains(t, lines[0], "DATE COLUMN")
	assert.Regexp(t, `^dim_temps\s+dimension\s+date\s+-$`, lines[1])
	assert.Regexp(t, `^dim_patient\s+dimension\s+-\s+date_naissance:date,age:integer$`, lines[2])
	assert.Regexp(t, `^fact_consultation\s+fact\s+date_consultation\s+`, lines[7])
}

func TestTablesReadsCatalogFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tables:\n  - {name: fact_x, category: fact, dateColumn: jour}\n"), 0o644))

	out, err := execute(t, "--catalog", path, "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "fact_x")
	assert.NotContains(t, out, "dim_patient")
}

func TestStageCommandsRequireDate(t *testing.T) {
	for _, args := range [][]string{
		{"extract", "--table", "dim_patient"},
		{"clean", "--table", "dim_patient"},
		{"aggregate"},
		{"load", "facts"},
		{"run"},
		{"run", "--dry-run"},
		{"history"},
		{"unlock"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), `"date"`, args)
	}
}

func TestStageCommandsRejectBadDate(t *testing.T) {
	_, err := execute(t, "extract", "--table", "dim_patient", "--date", "01/02/2024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --date")
}

func TestLoadFailures(t *testing.T) {
	assert.NoError(t, loadFailures([]etl.Outcome{
		{Stage: etl.StageLoad, Table: "dim_patient", Status: etl.StatusLoaded},
		{Stage: etl.StageLoad, Table: "dim_medecin", Status: etl.StatusSkipped},
	}))

	err := loadFailures([]etl.Outcome{
		{Stage: etl.StageLoad, Table: "dim_patient", Status: etl.StatusRolledBack},
		{Stage: etl.StageLoad, Table: "fact_analyse", Status: etl.StatusFailed},
	})
	require.Error(t, err)
	assert.Equal(t, "2 table(s) failed to load: dim_patient, fact_analyse", err.Error())
}

func TestDryRunNeedsOnlyTheSource(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "")
	t.Setenv("SOURCE_DSN", "")
	t.Setenv("WAREHOUSE_DSN", "")

	_, err := execute(t, "run", "--dry-run", "--date", "2024-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOURCE_DSN", "memory store opened, source checked next")

	_, err = execute(t, "run", "--date", "2024-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_ENDPOINT")
}

func TestLedgerCommandsNeedMongo(t *testing.T) {
	t.Setenv("MONGO_CONNECTION_STRING", "")
	for _, cmd := range []string{"history", "unlock"} {
		_, err := execute(t, cmd, "--date", "2024-01-01")
		require.Error(t, err, cmd)
		assert.Contains(t, err.Error(), "MONGO_CONNECTION_STRING", cmd)
	}
}

func TestPrintHistory(t *testing.T) {
	date := models.Date{Year: 2024, Month: time.January, Day: 1}
	at := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	require.NoError(t, printHistory(&out, date, []ledger.Entry{
		{RunID: "run-1", Stage: "extract", Table: "dim_patient", Status: "saved", Records: 12, RecordedAt: at},
		{RunID: "run-1", Stage: "aggregate", Status: "no_data", RecordedAt: at.Add(time.Second)},
		{RunID: "run-1", Stage: "load", Table: "fact_analyse", Status: "rolled_back", Error: "row insert failed", RecordedAt: at.Add(2 * time.Second)},
	}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^RECORDED AT\s+RUN\s+STAGE\s+TABLE\s+STATUS\s+RECORDS\s+ERROR$`, lines[0])
	assert.Regexp(t, `^2024-01-02T01:00:00Z\s+run-1\s+extract\s+dim_patient\s+saved\s+12\s+-$`, lines[1])
	assert.Regexp(t, `\s+aggregate\s+-\s+no_data\s+0\s+-$`, lines[2])
	assert.Regexp(t, `\s+fact_analyse\s+rolled_back\s+0\s+row insert failed$`, lines[3])

	out.Reset()
	require.NoError(t, printHistory(&out, date, nil))
	assert.Equal(t, "No runs recorded for 2024-01-01\n", out.String())
}
