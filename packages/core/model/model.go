package model

import (
	"sort"
	"time"
)

// Parameter is a declared operation parameter
type Parameter struct {
	Name     string
	In       string // path, query or header
	Required bool
	Example  string
}

// EndpointSpec describes one operation of an API specification
type EndpointSpec struct {
	Method         string
	PathTemplate   string
	OperationID    string
	Summary        string
	Tags           []string
	Parameters     []Parameter
	DefaultHeaders map[string]string
}

// Key returns the "METHOD /path" identity of the endpoint
func (e *EndpointSpec) Key() string {
	return e.Method + " " + e.PathTemplate
}

// FieldAssertion is a single expectation on a JSON response field
type FieldAssertion struct {
	Field    string
	Operator string
	Expected any
}

// Origin locates the source record of a test case. It is only used for
// writing results back.
type Origin struct {
	Sheet string
	Row   int
	// Label is the user facing identifier (ID column value or case name)
	Label string
}

// TestCase is one executable expectation against an API.
type TestCase struct {
	ID       string
	Name     string
	Folder   string
	Endpoint *EndpointSpec

	Method  string
	URL     string
	BaseURL string
	Path    string

	Headers     map[string]string
	PathParams  map[string]string
	QueryParams map[string]string
	Body        string

	ExpectedStatus int
	Assertions     []FieldAssertion

	Origin Origin
}

// DisplayName returns the case label used in reports and notifications
func (tc *TestCase) DisplayName() string {
	if tc.Origin.Label != "" {
		return tc.Origin.Label
	}
	if tc.Name != "" {
		return tc.Name
	}
	return tc.ID
}

// AssertionOutcome is the runner's verdict for one embedded test
type AssertionOutcome struct {
	Name    string
	Passed  bool
	Skipped bool
	Message string
}

// ExecutionRecord is the runner's report for one executed collection item
type ExecutionRecord struct {
	CorrelationID  string
	ItemName       string
	StatusCode     int
	Assertions     []AssertionOutcome
	TransportError bool
	ErrorMessage   string
	ResponseTime   time.Duration
}

// FailedAssertions returns the assertions that did not pass
func (r *ExecutionRecord) FailedAssertions() []AssertionOutcome {
	var failed []AssertionOutcome
	for _, a := range r.Assertions {
		if !a.Passed && !a.Skipped {
			failed = append(failed, a)
		}
	}
	return failed
}

// Classification is the final verdict for a test case
type Classification string

const (
	Pass     Classification = "Pass"
	Fail     Classification = "Fail"
	Error    Classification = "Error"
	NoResult Classification = "NoResult"
)

// Severity orders classifications from best to worst
func (c Classification) Severity() int {
	switch c {
	case Pass:
		return 0
	case Fail:
		return 1
	case Error:
		return 2
	default:
		return 3
	}
}

// ReconciledResult is the terminal outcome of one test case
type ReconciledResult struct {
	CaseID         string
	Classification Classification
	ActualStatus   int
	Detail         string
	Duration       time.Duration
}

// AnomalyKind names a reconciliation anomaly
type AnomalyKind string

const (
	AnomalyOrphan    AnomalyKind = "orphan"
	AnomalyDuplicate AnomalyKind = "duplicate"
)

// Anomaly is an execution record that could not be attributed cleanly
type Anomaly struct {
	Kind          AnomalyKind
	CorrelationID string
	ItemName      string
	Detail        string
}

// Counts tallies results per classification
type Counts struct {
	Total    int
	Passed   int
	Failed   int
	Errored  int
	NoResult int
}

// OK reports whether every case passed
func (c Counts) OK() bool {
	return c.Total > 0 && c.Passed == c.Total
}

// RunResult is the reconciliation table of a run: exactly one result per
// test case plus the anomalies found. It cannot be modified once built.
type RunResult struct {
	results   []ReconciledResult
	index     map[string]int
	anomalies []Anomaly
}

// NewRunResult copies results and anomalies into a new RunResult. Results
// keep the given order; anomalies are sorted by correlation id.
func NewRunResult(results []ReconciledResult, anomalies []Anomaly) *RunResult {
	r := &RunResult{
		results:   make([]ReconciledResult, len(results)),
		index:     make(map[string]int, len(results)),
		anomalies: make([]Anomaly, len(anomalies)),
	}
	copy(r.results, results)
	copy(r.anomalies, anomalies)
	for i, res := range r.results {
		r.index[res.CaseID] = i
	}
	sort.SliceStable(r.anomalies, func(i, j int) bool {
		if r.anomalies[i].CorrelationID != r.anomalies[j].CorrelationID {
			return r.anomalies[i].CorrelationID < r.anomalies[j].CorrelationID
		}
		return r.anomalies[i].Kind < r.anomalies[j].Kind
	})
	return r
}

// Len returns the number of results
func (r *RunResult) Len() int {
	return len(r.results)
}

// Results returns a copy of the results in case order
func (r *RunResult) Results() []ReconciledResult {
	out := make([]ReconciledResult, len(r.results))
	copy(out, r.results)
	return out
}

// Result looks up the result of a case
func (r *RunResult) Result(caseID string) (ReconciledResult, bool) {
	i, ok := r.index[caseID]
	if !ok {
		return ReconciledResult{}, false
	}
	return r.results[i], true
}

// ByCase returns the results keyed by case id
func (r *RunResult) ByCase() map[string]ReconciledResult {
	out := make(map[string]ReconciledResult, len(r.results))
	for _, res := range r.results {
		out[res.CaseID] = res
	}
	return out
}

// Anomalies returns a copy of the anomalies
func (r *RunResult) Anomalies() []Anomaly {
	out := make([]Anomaly, len(r.anomalies))
	copy(out, r.anomalies)
	return out
}

// Counts tallies the results
func (r *RunResult) Counts() Counts {
	c := Counts{Total: len(r.results)}
	for _, res := range r.results {
		switch res.Classification {
		case Pass:
			c.Passed++
		case Fail:
			c.Failed++
		case Error:
			c.Errored++
		default:
			c.NoResult++
		}
	}
	return c
}

// NotPassed returns the case ids whose classification is not Pass
func (r *RunResult) NotPassed() []string {
	var ids []string
	for _, res := range r.results {
		if res.Classification != Pass {
			ids = append(ids, res.CaseID)
		}
	}
	return ids
}
