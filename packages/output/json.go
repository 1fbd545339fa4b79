package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary    JSONSummary   `json:"summary"`
	Tests      []JSONTest    `json:"tests"`
	Anomalies  []JSONAnomaly `json:"anomalies,omitempty"`
	Latency    *JSONLatency  `json:"latency,omitempty"`
	Collection string        `json:"collection,omitempty"`
	Workbook   string        `json:"workbook,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   float64       `json:"duration"`
	Time       string        `json:"time"`
}

// JSONSummary represents the run summary
type JSONSummary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
	NoResult int `json:"noResult"`
}

// JSONTest represents a single test case result
type JSONTest struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Folder         string  `json:"folder,omitempty"`
	Method         string  `json:"method"`
	Result         string  `json:"result"`
	ExpectedStatus int     `json:"expectedStatus"`
	ActualStatus   int     `json:"actualStatus,omitempty"`
	Detail         string  `json:"detail,omitempty"`
	Duration       float64 `json:"duration"`
}

// JSONAnomaly represents a record that could not be attributed
type JSONAnomaly struct {
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlationId"`
	ItemName      string `json:"itemName,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// JSONLatency holds response time percentiles in milliseconds
type JSONLatency struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// JSONFormatter formats run results as JSON
type JSONFormatter struct {
	writer     io.Writer
	results    []JSONTest
	anomalies  []JSONAnomaly
	latency    *JSONLatency
	collection string
	workbook   string
	errors     []string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:  os.Stdout,
		results: make([]JSONTest, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (f *JSONFormatter) FormatResult(result *runner.Result) {
	if result == nil {
		return
	}
	for _, r := range collect(result) {
		f.results = append(f.results, JSONTest{
			ID:             r.Case.ID,
			Name:           r.Case.DisplayName(),
			Folder:         r.Case.Folder,
			Method:         r.Case.Method,
			Result:         string(r.Result.Classification),
			ExpectedStatus: r.Case.ExpectedStatus,
			ActualStatus:   r.Result.ActualStatus,
			Detail:         r.Result.Detail,
			Duration:       millis(r.Result.Duration),
		})
	}

	if result.Run != nil {
		for _, a := range result.Run.Anomalies() {
			f.anomalies = append(f.anomalies, JSONAnomaly{
				Kind:          string(a.Kind),
				CorrelationID: a.CorrelationID,
				ItemName:      a.ItemName,
				Detail:        a.Detail,
			})
		}
	}

	if lat := result.Latency; !lat.Empty() {
		f.latency = &JSONLatency{
			Count: lat.Count,
			Min:   millis(lat.Min),
			Mean:  millis(lat.Mean),
			P50:   millis(lat.P50),
			P90:   millis(lat.P90),
			P95:   millis(lat.P95),
			P99:   millis(lat.P99),
			Max:   millis(lat.Max),
		}
	}
	f.collection = result.CollectionPath
	f.workbook = result.WorkbookPath
}

func (f *JSONFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var summary JSONSummary
	for _, t := range f.results {
		summary.Total++
		switch model.Classification(t.Result) {
		case model.Pass:
			summary.Passed++
		case model.Fail:
			summary.Failed++
		case model.Error:
			summary.Errors++
		default:
			summary.NoResult++
		}
	}

	output := JSONOutput{
		Summary:    summary,
		Tests:      f.results,
		Anomalies:  f.anomalies,
		Latency:    f.latency,
		Collection: f.collection,
		Workbook:   f.workbook,
		Errors:     f.errors,
		Duration:   float64(totalDuration.Milliseconds()),
		Time:       time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
