package reconcile

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func cases(n int) []model.TestCase {
	out := make([]model.TestCase, n)
	for i := range out {
		out[i] = model.TestCase{ID: fmt.Sprintf("S!R%d", i+2), Name: fmt.Sprintf("case %d", i), ExpectedStatus: 200}
	}
	return out
}

func pass(id string) model.ExecutionRecord {
	return model.ExecutionRecord{
		CorrelationID: id,
		ItemName:      "item [" + id + "]",
		StatusCode:    200,
		Assertions:    []model.AssertionOutcome{{Name: "Status code is 200", Passed: true}},
	}
}

func fail(id string, status int, msg string) model.ExecutionRecord {
	return model.ExecutionRecord{
		CorrelationID: id,
		ItemName:      "item [" + id + "]",
		StatusCode:    status,
		Assertions:    []model.AssertionOutcome{{Name: "Status code is 404", Message: msg}},
	}
}

func TestReconcile_AllPass(t *testing.T) {
	tcs := cases(3)
	recs := []model.ExecutionRecord{pass(tcs[0].ID), pass(tcs[1].ID), pass(tcs[2].ID)}

	res := New().Reconcile(tcs, nil, Execution{Records: recs})
	require.Equal(t, 3, res.Len())
	assert.Equal(t, model.Counts{Total: 3, Passed: 3}, res.Counts())
	assert.True(t, res.Counts().OK())
	assert.Empty(t, res.Anomalies())
}

func TestReconcile_AssertionFailure(t *testing.T) {
	tcs := cases(1)
	tcs[0].ExpectedStatus = 404

	res := New().Reconcile(tcs, nil, Execution{Records: []model.ExecutionRecord{fail(tcs[0].ID, 500, "expected 404 but got 500")}})
	r, ok := res.Result(tcs[0].ID)
	require.True(t, ok)
	assert.Equal(t, model.Fail, r.Classification)
	assert.Equal(t, 500, r.ActualStatus)
	assert.Contains(t, r.Detail, "expected 404 but got 500")
}

func TestReconcile_MissingRecordIsNoResult(t *testing.T) {
	tcs := cases(3)
	recs := []model.ExecutionRecord{pass(tcs[0].ID), pass(tcs[2].ID)}

	res := New().Reconcile(tcs, nil, Execution{Records: recs})
	assert.Equal(t, 3, res.Len())

	r, _ := res.Result(tcs[1].ID)
	assert.Equal(t, model.NoResult, r.Classification)
	for _, id := range []string{tcs[0].ID, tcs[2].ID} {
		r, _ := res.Result(id)
		assert.Equal(t, model.Pass, r.Classification)
	}
}

func TestReconcile_TransportError(t *testing.T) {
	tcs := cases(1)
	rec := model.ExecutionRecord{CorrelationID: tcs[0].ID, TransportError: true, ErrorMessage: "ECONNREFUSED"}

	res := New().Reconcile(tcs, nil, Execution{Records: []model.ExecutionRecord{rec}})
	r, _ := res.Result(tcs[0].ID)
	assert.Equal(t, model.Error, r.Classification)
	assert.Equal(t, "ECONNREFUSED", r.Detail)
}

func TestReconcile_StatusFallbackWithoutAssertions(t *testing.T) {
	tcs := cases(2)
	recs := []model.ExecutionRecord{
		{CorrelationID: tcs[0].ID, StatusCode: 200},
		{CorrelationID: tcs[1].ID, StatusCode: 503},
	}
	res := New().Reconcile(tcs, nil, Execution{Records: recs})

	r, _ := res.Result(tcs[0].ID)
	assert.Equal(t, model.Pass, r.Classification)
	r, _ = res.Result(tcs[1].ID)
	assert.Equal(t, model.Fail, r.Classification)
	assert.Equal(t, "expected status 200, got 503", r.Detail)
}

func TestReconcile_TimeoutAndUnavailableReport(t *testing.T) {
	tcs := cases(2)

	res := New().Reconcile(tcs, nil, Execution{Records: []model.ExecutionRecord{pass(tcs[0].ID)}, TimedOut: true})
	r, _ := res.Result(tcs[0].ID)
	assert.Equal(t, model.Pass, r.Classification, "salvaged records are still reconciled")
	r, _ = res.Result(tcs[1].ID)
	assert.Equal(t, model.Error, r.Classification)
	assert.Equal(t, ReasonTimedOut, r.Detail)

	res = New().Reconcile(tcs, nil, Execution{ReportUnavailable: true})
	for _, r := range res.Results() {
		assert.Equal(t, model.Error, r.Classification)
		assert.Equal(t, ReasonReportUnavailable, r.Detail)
	}
}

func TestReconcile_BuildFailures(t *testing.T) {
	tcs := cases(2)
	failures := []*model.BuildError{{CaseID: tcs[1].ID, Reason: "unresolved path parameter {id}"}}

	res := New().Reconcile(tcs, failures, Execution{Records: []model.ExecutionRecord{pass(tcs[0].ID)}})
	r, _ := res.Result(tcs[1].ID)
	assert.Equal(t, model.Error, r.Classification)
	assert.Equal(t, "build failed: unresolved path parameter {id}", r.Detail)
	assert.Empty(t, res.Anomalies())
}

func TestReconcile_OrphanIsolation(t *testing.T) {
	tcs := cases(2)
	recs := []model.ExecutionRecord{pass(tcs[0].ID), fail(tcs[1].ID, 500, "x")}
	baseline := New().Reconcile(tcs, nil, Execution{Records: recs})

	core, logs := observer.New(zap.WarnLevel)
	orphan := pass("S!R999")
	withOrphan := New(WithLogger(zap.New(core))).Reconcile(tcs, nil, Execution{Records: append(recs, orphan)})

	assert.Equal(t, baseline.ByCase(), withOrphan.ByCase())
	anomalies := withOrphan.Anomalies()
	require.Len(t, anomalies, 1)
	assert.Equal(t, model.AnomalyOrphan, anomalies[0].Kind)
	assert.Equal(t, "S!R999", anomalies[0].CorrelationID)
	assert.Equal(t, 1, logs.FilterMessage("reconciliation anomaly").Len())
}

func TestReconcile_ForeignIDWithCaseSuffixIsOrphan(t *testing.T) {
	tcs := cases(1)
	recs := []model.ExecutionRecord{pass(tcs[0].ID)}
	baseline := New().Reconcile(tcs, nil, Execution{Records: recs})

	foreign := fail("3f1c0a52-generated", 500, "expected 200")
	foreign.ItemName = "other [" + tcs[0].ID + "]"
	res := New().Reconcile(tcs, nil, Execution{Records: append(recs, foreign)})

	assert.Equal(t, baseline.ByCase(), res.ByCase())
	r, _ := res.Result(tcs[0].ID)
	assert.Equal(t, model.Pass, r.Classification)
	assert.Equal(t, 200, r.ActualStatus)

	anomalies := res.Anomalies()
	require.Len(t, anomalies, 1)
	assert.Equal(t, model.AnomalyOrphan, anomalies[0].Kind)
	assert.Equal(t, "3f1c0a52-generated", anomalies[0].CorrelationID)
}

func TestReconcile_NilLoggerFallsBackToNop(t *testing.T) {
	tcs := cases(1)
	recs := []model.ExecutionRecord{pass(tcs[0].ID), pass("S!R999")}

	var res *model.RunResult
	require.NotPanics(t, func() {
		res = New(WithLogger(nil)).Reconcile(tcs, nil, Execution{Records: recs})
	})
	assert.Len(t, res.Anomalies(), 1)
}

func TestReconcile_OrderIndependence(t *testing.T) {
	tcs := cases(20)
	var recs []model.ExecutionRecord
	for i, tc := range tcs {
		switch i % 4 {
		case 0:
			recs = append(recs, pass(tc.ID))
		case 1:
			recs = append(recs, fail(tc.ID, 500, "bad"))
		case 2:
			recs = append(recs, model.ExecutionRecord{CorrelationID: tc.ID, TransportError: true, ErrorMessage: "timeout"})
		}
	}
	recs = append(recs, pass("unknown-1"), pass("unknown-2"), pass(tcs[0].ID), fail(tcs[0].ID, 418, "teapot"))

	want := New().Reconcile(tcs, nil, Execution{Records: recs})
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 25; i++ {
		shuffled := append([]model.ExecutionRecord(nil), recs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := New().Reconcile(tcs, nil, Execution{Records: shuffled})
		require.Equal(t, len(tcs), got.Len())
		assert.Equal(t, want.ByCase(), got.ByCase())
		assert.Equal(t, want.Anomalies(), got.Anomalies())
	}
}

func TestReconcile_DuplicatesWorstWins(t *testing.T) {
	tcs := cases(1)
	recs := []model.ExecutionRecord{pass(tcs[0].ID), fail(tcs[0].ID, 500, "boom")}

	res := New().Reconcile(tcs, nil, Execution{Records: recs})
	r, _ := res.Result(tcs[0].ID)
	assert.Equal(t, model.Fail, r.Classification)

	anomalies := res.Anomalies()
	require.Len(t, anomalies, 1)
	assert.Equal(t, model.AnomalyDuplicate, anomalies[0].Kind)
}

func TestReconcile_NameSuffixFallback(t *testing.T) {
	tcs := cases(1)
	rec := pass(tcs[0].ID)
	rec.CorrelationID = ""

	res := New().Reconcile(tcs, nil, Execution{Records: []model.ExecutionRecord{rec}})
	r, _ := res.Result(tcs[0].ID)
	assert.Equal(t, model.Pass, r.Classification)
	assert.Empty(t, res.Anomalies())
}

func TestReconcile_Totality(t *testing.T) {
	for _, n := range []int{0, 1, 7, 50} {
		tcs := cases(n)
		var recs []model.ExecutionRecord
		for i := 0; i < n; i += 2 {
			recs = append(recs, pass(tcs[i].ID))
		}
		recs = append(recs, pass("orphan"))
		res := New().Reconcile(tcs, nil, Execution{Records: recs})
		assert.Equal(t, n, res.Len())
		assert.Equal(t, n, res.Counts().Total)
	}
}

func TestAllError(t *testing.T) {
	tcs := cases(3)
	res := AllError(tcs, ReasonAuthFailed)
	require.Equal(t, 3, res.Len())
	for _, r := range res.Results() {
		assert.Equal(t, model.Error, r.Classification)
		assert.Equal(t, "authentication failed", r.Detail)
	}
	assert.Equal(t, 3, res.Counts().Errored)
}
