package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/import/excel"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
)

const (
	// FreshWorkbookName is the results file written for API specification input
	FreshWorkbookName = "api_test_results.xlsx"
	// ResultsSheet holds one row per case in a fresh workbook
	ResultsSheet = "API Test Results"

	summarySheet    = "Summary"
	timeLayout      = "2006-01-02 15:04:05"
	headerFill      = "4F81BD"
	maxColumnWidth  = 70
	columnWidthPads = 3
)

// Fills per classification
var fills = map[model.Classification]string{
	model.Pass:     "C6EFCE",
	model.Fail:     "FFC7CE",
	model.Error:    "FFEB9C",
	model.NoResult: "D9D9D9",
}

var freshHeaders = []string{
	"Case ID", "Name", "Method", "Endpoint", "Payload", "Expected Status",
	"Actual Status", "Assertions", "Result", "Detail", "Executed At",
}

// Label is the text written to the Status column
func Label(c model.Classification) string {
	switch c {
	case model.Pass:
		return "PASSED"
	case model.Fail:
		return "FAILED"
	case model.Error:
		return "ERROR"
	default:
		return "NO RESULT"
	}
}

// Summary describes the run for the summary sheet
type Summary struct {
	Collection string
	Source     string
	StartedAt  time.Time
	Duration   time.Duration
}

// Writer writes result workbooks into an output directory
type Writer struct {
	outputDir string
	log       *zap.Logger
}

type Option func(*Writer)

func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) {
		w.log = logging.OrNop(l)
	}
}

// NewWriter creates a writer. An empty outputDir writes next to the input.
func NewWriter(outputDir string, opts ...Option) *Writer {
	w := &Writer{
		outputDir: outputDir,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OutputPath returns <name>_results<ext> for the input workbook, placed in
// outputDir when set. It never returns the input path.
func OutputPath(input, outputDir string) (string, error) {
	ext := filepath.Ext(input)
	root := strings.TrimSuffix(filepath.Base(input), ext)
	if ext == "" {
		ext = ".xlsx"
	}
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	out := filepath.Join(dir, root+"_results"+ext)

	inAbs, err := filepath.Abs(input)
	if err != nil {
		return "", err
	}
	outAbs, err := filepath.Abs(out)
	if err != nil {
		return "", err
	}
	if inAbs == outAbs {
		return "", fmt.Errorf("output path %s equals the input workbook", out)
	}
	return out, nil
}

// WriteSpreadsheet copies the input workbook with result columns for every
// case and returns the path written.
func (w *Writer) WriteSpreadsheet(input string, cases []model.TestCase, run *model.RunResult, sum Summary) (string, error) {
	out, err := OutputPath(input, w.outputDir)
	if err != nil {
		return "", err
	}

	f, err := excelize.OpenFile(input)
	if err != nil {
		return "", fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	styles, err := newStyles(f)
	if err != nil {
		return "", err
	}

	bySheet := make(map[string][]model.TestCase)
	var order []string
	for _, tc := range cases {
		if tc.Origin.Sheet == "" || tc.Origin.Row < 2 {
			continue
		}
		if _, ok := bySheet[tc.Origin.Sheet]; !ok {
			order = append(order, tc.Origin.Sheet)
		}
		bySheet[tc.Origin.Sheet] = append(bySheet[tc.Origin.Sheet], tc)
	}

	for _, sheet := range order {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			w.log.Warn("result sheet not found in workbook", zap.String("sheet", sheet))
			continue
		}
		if err := w.writeSheet(f, sheet, bySheet[sheet], run, styles); err != nil {
			return "", fmt.Errorf("writing sheet %s: %w", sheet, err)
		}
	}

	if err := writeSummary(f, summaryName(f.GetSheetList()), cases, run, sum); err != nil {
		return "", err
	}

	if err := save(f, out); err != nil {
		return "", err
	}
	w.log.Info("results workbook written", zap.String("path", out))
	return out, nil
}

func (w *Writer) writeSheet(f *excelize.File, sheet string, cases []model.TestCase, run *model.RunResult, styles map[model.Classification]int) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}

	actualCol, statusCol, err := resultColumns(f, sheet, header)
	if err != nil {
		return err
	}

	for _, tc := range cases {
		res, ok := run.Result(tc.ID)
		if !ok {
			w.log.Warn("no result for case", zap.String("case", tc.ID))
			continue
		}

		actualCell, err := excelize.CoordinatesToCellName(actualCol+1, tc.Origin.Row)
		if err != nil {
			return err
		}
		var actual any = ""
		if res.ActualStatus > 0 {
			actual = res.ActualStatus
		}
		if err := f.SetCellValue(sheet, actualCell, actual); err != nil {
			return err
		}

		statusCell, err := excelize.CoordinatesToCellName(statusCol+1, tc.Origin.Row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, statusCell, Label(res.Classification)); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, statusCell, statusCell, styles[res.Classification]); err != nil {
			return err
		}
	}
	return nil
}

// resultColumns finds or inserts the ActualStatus and Status columns and
// returns their 0-based indexes. New columns go right after the expected
// status column, or at the end when there is none.
func resultColumns(f *excelize.File, sheet string, header []string) (int, int, error) {
	expected := excel.NewHeaderIndex(header).Find(excel.ColExpectedStatus)
	actual := exactColumn(header, excel.ActualStatusHeader, expected)
	status := exactColumn(header, excel.StatusHeader, expected)

	setHeader := func(col int, name string) error {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, cell, name)
	}
	insert := func(col, n int) error {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		return f.InsertCols(sheet, name, n)
	}

	if expected < 0 {
		next := len(header)
		if actual < 0 {
			actual = next
			next++
			if err := setHeader(actual, excel.ActualStatusHeader); err != nil {
				return 0, 0, err
			}
		}
		if status < 0 {
			status = next
			if status == actual {
				status++
			}
			if err := setHeader(status, excel.StatusHeader); err != nil {
				return 0, 0, err
			}
		}
		return actual, status, nil
	}

	if actual < 0 && status < 0 {
		if err := insert(expected+1, 2); err != nil {
			return 0, 0, err
		}
		actual, status = expected+1, expected+2
		if err := setHeader(actual, excel.ActualStatusHeader); err != nil {
			return 0, 0, err
		}
		return actual, status, setHeader(status, excel.StatusHeader)
	}

	if actual < 0 {
		if err := insert(expected+1, 1); err != nil {
			return 0, 0, err
		}
		actual = expected + 1
		if status >= actual {
			status++
		}
		if err := setHeader(actual, excel.ActualStatusHeader); err != nil {
			return 0, 0, err
		}
	}
	if status < 0 {
		status = actual + 1
		if err := insert(status, 1); err != nil {
			return 0, 0, err
		}
		if err := setHeader(status, excel.StatusHeader); err != nil {
			return 0, 0, err
		}
	}
	return actual, status, nil
}

// exactColumn finds a header by exact text, ignoring the skip column
func exactColumn(header []string, name string, skip int) int {
	for i, h := range header {
		if i != skip && strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// WriteFresh writes a new results workbook for cases that have no source
// rows and returns the path written.
func (w *Writer) WriteFresh(cases []model.TestCase, run *model.RunResult, sum Summary) (string, error) {
	dir := w.outputDir
	if dir == "" {
		dir = "."
	}
	out := filepath.Join(dir, FreshWorkbookName)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ResultsSheet); err != nil {
		return "", err
	}

	styles, err := newStyles(f)
	if err != nil {
		return "", err
	}
	headStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return "", err
	}

	widths := make([]int, len(freshHeaders))
	header := make([]any, len(freshHeaders))
	for i, h := range freshHeaders {
		header[i] = h
		widths[i] = len(h)
	}
	if err := f.SetSheetRow(ResultsSheet, "A1", &header); err != nil {
		return "", err
	}
	last, _ := excelize.ColumnNumberToName(len(freshHeaders))
	if err := f.SetCellStyle(ResultsSheet, "A1", last+"1", headStyle); err != nil {
		return "", err
	}

	executed := sum.StartedAt.Format(timeLayout)
	for i, tc := range cases {
		res, ok := run.Result(tc.ID)
		if !ok {
			res = model.ReconciledResult{CaseID: tc.ID, Classification: model.NoResult}
		}

		row := []any{
			tc.ID,
			tc.DisplayName(),
			tc.Method,
			endpointOf(&tc),
			orDash(tc.Body),
			tc.ExpectedStatus,
			statusValue(res.ActualStatus),
			orDash(describeAssertions(&tc)),
			Label(res.Classification),
			res.Detail,
			executed,
		}
		for j, v := range row {
			if n := len(fmt.Sprint(v)); n > widths[j] {
				widths[j] = n
			}
		}

		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ResultsSheet, cell, &row); err != nil {
			return "", err
		}
		resultCell, _ := excelize.CoordinatesToCellName(9, i+2)
		if err := f.SetCellStyle(ResultsSheet, resultCell, resultCell, styles[res.Classification]); err != nil {
			return "", err
		}
	}

	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(ResultsSheet, col, col, float64(min(width+columnWidthPads, maxColumnWidth))); err != nil {
			return "", err
		}
	}

	if err := writeSummary(f, summaryName(f.GetSheetList()), cases, run, sum); err != nil {
		return "", err
	}

	if err := save(f, out); err != nil {
		return "", err
	}
	w.log.Info("results workbook written", zap.String("path", out))
	return out, nil
}

func endpointOf(tc *model.TestCase) string {
	switch {
	case tc.Endpoint != nil:
		return tc.Endpoint.PathTemplate
	case tc.Path != "":
		return tc.Path
	default:
		return orDash(tc.URL)
	}
}

func describeAssertions(tc *model.TestCase) string {
	lines := []string{fmt.Sprintf("Status code is %d", tc.ExpectedStatus)}
	for _, a := range tc.Assertions {
		if a.Expected == nil {
			lines = append(lines, a.Field+" "+a.Operator)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %v", a.Field, a.Operator, a.Expected))
	}
	return strings.Join(lines, "\n")
}

func statusValue(code int) any {
	if code > 0 {
		return code
	}
	return ""
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

func newStyles(f *excelize.File) (map[model.Classification]int, error) {
	styles := make(map[model.Classification]int, len(fills))
	for c, color := range fills {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return nil, fmt.Errorf("creating style: %w", err)
		}
		styles[c] = id
	}
	return styles, nil
}

// summaryName picks a summary sheet name that collides with no existing
// sheet, hidden ones included, so user sheets are never replaced
func summaryName(existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, s := range existing {
		taken[strings.ToLower(s)] = true
	}
	name := summarySheet
	for i := 1; taken[strings.ToLower(name)]; i++ {
		name = "Run Summary"
		if i > 1 {
			name = fmt.Sprintf("Run Summary %d", i)
		}
	}
	return name
}

func writeSummary(f *excelize.File, sheet string, cases []model.TestCase, run *model.RunResult, sum Summary) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return err
	}

	counts := run.Counts()
	rows := [][]any{
		{"Collection", sum.Collection},
		{"Source", sum.Source},
		{"Started At", sum.StartedAt.Format(timeLayout)},
		{"Execution Time", sum.Duration.Round(time.Millisecond).String()},
		{"Total", counts.Total},
		{"Passed", counts.Passed},
		{"Failed", counts.Failed},
		{"Errors", counts.Errored},
		{"No Result", counts.NoResult},
		{"Anomalies", len(run.Anomalies())},
	}

	lat := ComputeLatency(run.Results())
	if !lat.Empty() {
		rows = append(rows,
			[]any{"Latency Min (ms)", ms(lat.Min)},
			[]any{"Latency Mean (ms)", ms(lat.Mean)},
			[]any{"Latency P50 (ms)", ms(lat.P50)},
			[]any{"Latency P90 (ms)", ms(lat.P90)},
			[]any{"Latency P95 (ms)", ms(lat.P95)},
			[]any{"Latency P99 (ms)", ms(lat.P99)},
			[]any{"Latency Max (ms)", ms(lat.Max)},
		)
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return err
	}

	notPassed := run.NotPassed()
	if len(notPassed) == 0 {
		return f.SetColWidth(sheet, "A", "A", 20)
	}

	names := make(map[string]string, len(cases))
	for _, tc := range cases {
		names[tc.ID] = tc.DisplayName()
	}
	sort.Strings(notPassed)

	start := len(rows) + 2
	header := []any{"Case ID", "Name", "Result", "Actual Status", "Detail"}
	cell, _ := excelize.CoordinatesToCellName(1, start)
	if err := f.SetSheetRow(sheet, cell, &header); err != nil {
		return err
	}
	for i, id := range notPassed {
		res, _ := run.Result(id)
		row := []any{id, names[id], Label(res.Classification), statusValue(res.ActualStatus), res.Detail}
		cell, _ := excelize.CoordinatesToCellName(1, start+1+i)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "B", 30)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func save(f *excelize.File, out string) error {
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := f.SaveAs(out); err != nil {
		return fmt.Errorf("saving workbook %s: %w", out, err)
	}
	return nil
}
