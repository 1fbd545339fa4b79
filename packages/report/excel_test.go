package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "cases.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func sheetCase(sheet string, row int, label string) model.TestCase {
	return model.TestCase{
		ID:             fmt.Sprintf("%s!R%d", sheet, row),
		Name:           label,
		Method:         "GET",
		Path:           "/users",
		ExpectedStatus: 200,
		Origin:         model.Origin{Sheet: sheet, Row: row, Label: label},
	}
}

func fillColor(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	id, err := f.GetCellStyle(sheet, cell)
	require.NoError(t, err)
	style, err := f.GetStyle(id)
	require.NoError(t, err)
	require.NotEmpty(t, style.Fill.Color)
	return strings.ToUpper(style.Fill.Color[0])
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		outputDir string
		want      string
	}{
		{"next to input", filepath.Join("in", "cases.xlsx"), "", filepath.Join("in", "cases_results.xlsx")},
		{"output dir", filepath.Join("in", "cases.xlsx"), "out", filepath.Join("out", "cases_results.xlsx")},
		{"no extension", filepath.Join("in", "cases"), "", filepath.Join("in", "cases_results.xlsx")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputPath(tt.input, tt.outputDir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteSpreadsheet(t *testing.T) {
	input := writeWorkbook(t, "Users", [][]any{
		{"ID", "Name", "Method", "Path", "Expected Status", "Notes"},
		{"TC-1", "list", "GET", "/users", 200, "a"},
		{"TC-2", "create", "POST", "/users", 201, "b"},
		{"TC-3", "delete", "DELETE", "/users/1", 204, "c"},
	})

	cases := []model.TestCase{
		sheetCase("Users", 2, "TC-1"),
		sheetCase("Users", 3, "TC-2"),
		sheetCase("Users", 4, "TC-3"),
	}
	run := model.NewRunResult([]model.ReconciledResult{
		{CaseID: cases[0].ID, Classification: model.Pass, ActualStatus: 200, Duration: 20 * time.Millisecond},
		{CaseID: cases[1].ID, Classification: model.Fail, ActualStatus: 500, Detail: "Status code is 201"},
		{CaseID: cases[2].ID, Classification: model.NoResult},
	}, nil)

	outDir := t.TempDir()
	w := NewWriter(outDir)
	out, err := w.WriteSpreadsheet(input, cases, run, Summary{Collection: "Users API", Source: input, StartedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "cases_results.xlsx"), out)
	assert.NotEqual(t, input, out)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Users")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Name", "Method", "Path", "Expected Status", "ActualStatus", "Status", "Notes"}, rows[0])
	assert.Equal(t, "200", rows[1][5])
	assert.Equal(t, "PASSED", rows[1][6])
	assert.Equal(t, "a", rows[1][7])
	assert.Equal(t, "500", rows[2][5])
	assert.Equal(t, "FAILED", rows[2][6])
	assert.Equal(t, "", rows[3][5])
	assert.Equal(t, "NO RESULT", rows[3][6])

	assert.Contains(t, fillColor(t, f, "Users", "G2"), "C6EFCE")
	assert.Contains(t, fillColor(t, f, "Users", "G3"), "FFC7CE")
	assert.Contains(t, fillColor(t, f, "Users", "G4"), "D9D9D9")

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Contains(t, summary, []string{"Total", "3"})
	assert.Contains(t, summary, []string{"Passed", "1"})
	assert.Contains(t, summary, []string{"Failed", "1"})
	assert.Contains(t, summary, []string{"No Result", "1"})
	assert.Contains(t, summary, []string{"Collection", "Users API"})

	// the input workbook is left untouched
	src, err := excelize.OpenFile(input)
	require.NoError(t, err)
	defer src.Close()
	srcRows, err := src.GetRows("Users")
	require.NoError(t, err)
	assert.Len(t, srcRows[0], 6)
}

func TestWriteSpreadsheetAppendsWithoutExpectedColumn(t *testing.T) {
	input := writeWorkbook(t, "Cases", [][]any{
		{"Name", "URL"},
		{"health", "http://localhost/health"},
	})
	cases := []model.TestCase{sheetCase("Cases", 2, "health")}
	run := model.NewRunResult([]model.ReconciledResult{
		{CaseID: cases[0].ID, Classification: model.Error, Detail: "connect ECONNREFUSED"},
	}, nil)

	out, err := NewWriter("").WriteSpreadsheet(input, cases, run, Summary{StartedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(input), "cases_results.xlsx"), out)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Cases")
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "URL", "ActualStatus", "Status"}, rows[0])
	assert.Equal(t, "ERROR", rows[1][3])
	assert.Contains(t, fillColor(t, f, "Cases", "D2"), "FFEB9C")
}

func TestWriteSpreadsheetReusesResultColumns(t *testing.T) {
	input := writeWorkbook(t, "Users", [][]any{
		{"Path", "Expected Status", "ActualStatus", "Status"},
		{"/users", 200, 500, "FAILED"},
	})
	cases := []model.TestCase{sheetCase("Users", 2, "list")}
	run := model.NewRunResult([]model.ReconciledResult{
		{CaseID: cases[0].ID, Classification: model.Pass, ActualStatus: 200},
	}, nil)

	out, err := NewWriter(t.TempDir()).WriteSpreadsheet(input, cases, run, Summary{StartedAt: time.Now()})
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Users")
	require.NoError(t, err)
	assert.Equal(t, []string{"Path", "Expected Status", "ActualStatus", "Status"}, rows[0])
	assert.Equal(t, []string{"/users", "200", "200", "PASSED"}, rows[1])
}

func TestWriteSpreadsheetSummaryNameCollision(t *testing.T) {
	input := writeWorkbook(t, "Summary", [][]any{
		{"Path", "Expected Status"},
		{"/users", 200},
	})
	cases := []model.TestCase{sheetCase("Summary", 2, "list")}
	run := model.NewRunResult([]model.ReconciledResult{
		{CaseID: cases[0].ID, Classification: model.Pass, ActualStatus: 200},
	}, nil)

	out, err := NewWriter(t.TempDir()).WriteSpreadsheet(input, cases, run, Summary{StartedAt: time.Now()})
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Run Summary"}, f.GetSheetList())
	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, "PASSED", rows[1][3])
}

func TestWriteSpreadsheetKeepsUserSummarySheet(t *testing.T) {
	input := writeWorkbook(t, "Cases", [][]any{
		{"Path", "Expected Status"},
		{"/users", 200},
	})

	f, err := excelize.OpenFile(input)
	require.NoError(t, err)
	_, err = f.NewSheet("Summary")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Summary", "A1", "Owner notes: do not delete"))
	_, err = f.NewSheet("Run Summary")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetVisible("Run Summary", false))
	require.NoError(t, f.Save())
	require.NoError(t, f.Close())

	cases := []model.TestCase{sheetCase("Cases", 2, "list")}
	run := model.NewRunResult([]model.ReconciledResult{
		{CaseID: cases[0].ID, Classification: model.Pass, ActualStatus: 200},
	}, nil)

	out, err := NewWriter(t.TempDir()).WriteSpreadsheet(input, cases, run, Summary{Collection: "API Tests", StartedAt: time.Now()})
	require.NoError(t, err)

	res, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, []string{"Cases", "Summary", "Run Summary", "Run Summary 2"}, res.GetSheetList())
	notes, err := res.GetCellValue("Summary", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Owner notes: do not delete", notes)

	collection, err := res.GetCellValue("Run Summary 2", "B1")
	require.NoError(t, err)
	assert.Equal(t, "API Tests", collection)
}

func TestWriteSpreadsheetMissingInput(t *testing.T) {
	_, err := NewWriter(t.TempDir()).WriteSpreadsheet(filepath.Join(t.TempDir(), "missing.xlsx"), nil, model.NewRunResult(nil, nil), Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening workbook")
}

func TestWriteFresh(t *testing.T) {
	endpoint := &model.EndpointSpec{Method: "POST", PathTemplate: "/users"}
	cases := []model.TestCase{
		{
			ID:             "POST /users#0",
			Name:           "Create user",
			Endpoint:       endpoint,
			Method:         "POST",
			Body:           `{"name":"x"}`,
			ExpectedStatus: 201,
			Assertions:     []model.FieldAssertion{{Field: "id", Operator: "notempty"}},
		},
		{
			ID:             "GET /health#0",
			Name:           "Health",
			Endpoint:       &model.EndpointSpec{Method: "GET", PathTemplate: "/health"},
			Method:         "GET",
			ExpectedStatus: 204,
		},
	}
	run := model.NewRunResult([]model.ReconciledResult{
		{CaseID: cases[0].ID, Classification: model.Pass, ActualStatus: 201, Duration: 12 * time.Millisecond},
		{CaseID: cases[1].ID, Classification: model.Fail, ActualStatus: 200, Detail: "Status code is 204"},
	}, nil)

	started := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	outDir := filepath.Join(t.TempDir(), "reports")
	out, err := NewWriter(outDir).WriteFresh(cases, run, Summary{Collection: "Pets", StartedAt: started, Duration: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, FreshWorkbookName), out)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ResultsSheet, "Summary"}, f.GetSheetList())

	rows, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, freshHeaders, rows[0])
	assert.Equal(t, "POST /users#0", rows[1][0])
	assert.Equal(t, "/users", rows[1][3])
	assert.Equal(t, `{"name":"x"}`, rows[1][4])
	assert.Equal(t, "Status code is 201\nid notempty", rows[1][7])
	assert.Equal(t, "PASSED", rows[1][8])
	assert.Equal(t, "2026-03-01 10:30:00", rows[1][10])
	assert.Equal(t, "—", rows[2][4])
	assert.Equal(t, "FAILED", rows[2][8])
	assert.Equal(t, "Status code is 204", rows[2][9])

	assert.Contains(t, fillColor(t, f, ResultsSheet, "I2"), "C6EFCE")
	assert.Contains(t, fillColor(t, f, ResultsSheet, "A1"), "4F81BD")

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Contains(t, summary, []string{"Execution Time", "2s"})
	assert.Contains(t, summary, []string{"Case ID", "Name", "Result", "Actual Status", "Detail"})
	assert.Contains(t, summary, []string{"GET /health#0", "Health", "FAILED", "200", "Status code is 204"})
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "PASSED", Label(model.Pass))
	assert.Equal(t, "FAILED", Label(model.Fail))
	assert.Equal(t, "ERROR", Label(model.Error))
	assert.Equal(t, "NO RESULT", Label(model.NoResult))
}
