// Package reconcile maps execution records back onto test cases by
// correlation id and classifies every case.
package reconcile

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/logging"
	"go.uber.org/zap"
)

// Reasons recorded on cases that never produced a usable record
const (
	ReasonAuthFailed        = "authentication failed"
	ReasonTimedOut          = "execution timed out"
	ReasonReportUnavailable = "execution report unavailable"
	ReasonNotExecuted       = "no execution record"
)

// Execution is the runner-side input of reconciliation
type Execution struct {
	Records []model.ExecutionRecord
	// TimedOut turns missing records into Error instead of NoResult
	TimedOut bool
	// ReportUnavailable means no report could be read at all
	ReportUnavailable bool
}

// Reconciler classifies test cases against execution records
type Reconciler struct {
	log *zap.Logger
}

// Option is a functional option for Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger anomalies are reported to
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		r.log = logging.OrNop(l)
	}
}

// New creates a Reconciler
func New(opts ...Option) *Reconciler {
	r := &Reconciler{log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var nameSuffix = regexp.MustCompile(`\[([^\[\]]+)\]\s*$`)

// correlationKey returns the case id a record belongs to. A non-empty item
// id is authoritative even when it matches no case; the "[id]" name suffix
// is only consulted when the runner dropped the id.
func correlationKey(rec *model.ExecutionRecord) string {
	if rec.CorrelationID != "" {
		return rec.CorrelationID
	}
	if m := nameSuffix.FindStringSubmatch(rec.ItemName); m != nil {
		return m[1]
	}
	return rec.ItemName
}

// Reconcile produces exactly one result per case. buildFailures are cases
// that never became collection items. Records are keyed by correlation id,
// so their order has no effect on the outcome.
func (r *Reconciler) Reconcile(cases []model.TestCase, buildFailures []*model.BuildError, exec Execution) *model.RunResult {
	failed := make(map[string]string, len(buildFailures))
	for _, bf := range buildFailures {
		failed[bf.CaseID] = bf.Reason
	}

	grouped := make(map[string][]model.ExecutionRecord)
	for _, rec := range exec.Records {
		key := correlationKey(&rec)
		grouped[key] = append(grouped[key], rec)
	}

	var anomalies []model.Anomaly
	results := make([]model.ReconciledResult, 0, len(cases))
	for _, tc := range cases {
		if reason, ok := failed[tc.ID]; ok {
			results = append(results, model.ReconciledResult{
				CaseID:         tc.ID,
				Classification: model.Error,
				Detail:         "build failed: " + reason,
			})
			// a record for a case that was never built is still an orphan
			continue
		}

		records, ok := grouped[tc.ID]
		if !ok {
			results = append(results, missing(tc.ID, exec))
			continue
		}
		delete(grouped, tc.ID)

		res := classify(tc, records)
		if len(records) > 1 {
			anomalies = append(anomalies, model.Anomaly{
				Kind:          model.AnomalyDuplicate,
				CorrelationID: tc.ID,
				ItemName:      firstName(records),
				Detail:        fmt.Sprintf("%d execution records for one case", len(records)),
			})
		}
		results = append(results, res)
	}

	orphanIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		orphanIDs = append(orphanIDs, id)
	}
	sort.Strings(orphanIDs)
	for _, id := range orphanIDs {
		recs := grouped[id]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].ItemName < recs[j].ItemName })
		for _, rec := range recs {
			anomalies = append(anomalies, model.Anomaly{
				Kind:          model.AnomalyOrphan,
				CorrelationID: id,
				ItemName:      rec.ItemName,
				Detail:        "execution record matches no test case",
			})
		}
	}

	for _, a := range anomalies {
		r.log.Warn("reconciliation anomaly",
			zap.String("kind", string(a.Kind)),
			zap.String("correlation_id", a.CorrelationID),
			zap.String("item", a.ItemName),
			zap.String("detail", a.Detail))
	}

	return model.NewRunResult(results, anomalies)
}

func missing(caseID string, exec Execution) model.ReconciledResult {
	res := model.ReconciledResult{CaseID: caseID, Classification: model.NoResult, Detail: ReasonNotExecuted}
	switch {
	case exec.TimedOut:
		res.Classification = model.Error
		res.Detail = ReasonTimedOut
	case exec.ReportUnavailable:
		res.Classification = model.Error
		res.Detail = ReasonReportUnavailable
	}
	return res
}

// classifyRecord classifies a single record
func classifyRecord(tc model.TestCase, rec model.ExecutionRecord) model.ReconciledResult {
	res := model.ReconciledResult{
		CaseID:       tc.ID,
		ActualStatus: rec.StatusCode,
		Duration:     rec.ResponseTime,
	}

	if rec.TransportError {
		res.Classification = model.Error
		res.Detail = rec.ErrorMessage
		if res.Detail == "" {
			res.Detail = "transport error"
		}
		return res
	}

	if !hasAssertions(rec) && tc.ExpectedStatus != 0 && rec.StatusCode != tc.ExpectedStatus {
		// no test script ran; fall back to comparing status codes
		res.Classification = model.Fail
		res.Detail = fmt.Sprintf("expected status %d, got %d", tc.ExpectedStatus, rec.StatusCode)
		return res
	}
	if failed := rec.FailedAssertions(); len(failed) > 0 {
		msgs := make([]string, 0, len(failed))
		for _, a := range failed {
			if a.Message != "" {
				msgs = append(msgs, a.Name+": "+a.Message)
			} else {
				msgs = append(msgs, a.Name)
			}
		}
		res.Classification = model.Fail
		res.Detail = strings.Join(msgs, "; ")
		return res
	}

	res.Classification = model.Pass
	return res
}

func firstName(records []model.ExecutionRecord) string {
	name := records[0].ItemName
	for _, rec := range records[1:] {
		if rec.ItemName < name {
			name = rec.ItemName
		}
	}
	return name
}

func hasAssertions(rec model.ExecutionRecord) bool {
	for _, a := range rec.Assertions {
		if !a.Skipped {
			return true
		}
	}
	return false
}

// classify merges the records of one case. The worst classification wins.
func classify(tc model.TestCase, records []model.ExecutionRecord) model.ReconciledResult {
	best := classifyRecord(tc, records[0])
	for _, rec := range records[1:] {
		res := classifyRecord(tc, rec)
		if worse(res, best) {
			best = res
		}
	}
	return best
}

// worse orders results by severity, then by content so duplicate merging
// does not depend on record order
func worse(a, b model.ReconciledResult) bool {
	if a.Classification.Severity() != b.Classification.Severity() {
		return a.Classification.Severity() > b.Classification.Severity()
	}
	if a.ActualStatus != b.ActualStatus {
		return a.ActualStatus > b.ActualStatus
	}
	if a.Detail != b.Detail {
		return a.Detail > b.Detail
	}
	return a.Duration > b.Duration
}

// AllError classifies every case as Error with the same reason. It is used
// when the run stops before execution, such as on authentication failure.
func AllError(cases []model.TestCase, reason string) *model.RunResult {
	results := make([]model.ReconciledResult, 0, len(cases))
	for _, tc := range cases {
		results = append(results, model.ReconciledResult{
			CaseID:         tc.ID,
			Classification: model.Error,
			Detail:         reason,
		})
	}
	return model.NewRunResult(results, nil)
}
