package output

import (
	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/abdul-hamid-achik/apiregress/packages/core/runner"
)

// caseResult pairs a test case with its reconciled result
type caseResult struct {
	Case   *model.TestCase
	Result model.ReconciledResult
}

// collect returns the results of a run in case order. Runs that stopped
// before classification yield nothing.
func collect(res *runner.Result) []caseResult {
	if res == nil || res.Run == nil {
		return nil
	}
	out := make([]caseResult, 0, len(res.Cases))
	for i := range res.Cases {
		tc := &res.Cases[i]
		r, ok := res.Run.Result(tc.ID)
		if !ok {
			continue
		}
		out = append(out, caseResult{Case: tc, Result: r})
	}
	return out
}
