package newman

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
)

type reportError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    any    `json:"code"`
}

func (e *reportError) String() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "" && e.Name != "":
		return e.Name + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Code != nil:
		return fmt.Sprint(e.Code)
	}
	return e.Name
}

type execution struct {
	Item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"item"`
	Response *struct {
		Code         int     `json:"code"`
		Status       string  `json:"status"`
		ResponseTime float64 `json:"responseTime"`
	} `json:"response"`
	Assertions []struct {
		Assertion string       `json:"assertion"`
		Skipped   bool         `json:"skipped"`
		Error     *reportError `json:"error"`
	} `json:"assertions"`
	RequestError *reportError `json:"requestError"`
	TestScript   []struct {
		Error *reportError `json:"error"`
	} `json:"testScript"`
}

type report struct {
	Run *struct {
		Executions []execution `json:"executions"`
	} `json:"run"`
}

// ParseReport decodes a newman JSON reporter document into one record per
// execution, in report order
func ParseReport(data []byte) ([]model.ExecutionRecord, error) {
	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding newman report: %w", err)
	}
	if r.Run == nil {
		return nil, fmt.Errorf("decoding newman report: missing run section")
	}

	records := make([]model.ExecutionRecord, 0, len(r.Run.Executions))
	for _, ex := range r.Run.Executions {
		records = append(records, toRecord(ex))
	}
	return records, nil
}

// ParseReportFile reads and decodes a newman JSON report
func ParseReportFile(path string) ([]model.ExecutionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading newman report: %w", err)
	}
	return ParseReport(data)
}

func toRecord(ex execution) model.ExecutionRecord {
	rec := model.ExecutionRecord{
		CorrelationID: ex.Item.ID,
		ItemName:      ex.Item.Name,
	}

	if ex.Response != nil {
		rec.StatusCode = ex.Response.Code
		rec.ResponseTime = time.Duration(ex.Response.ResponseTime * float64(time.Millisecond))
	}

	for _, a := range ex.Assertions {
		rec.Assertions = append(rec.Assertions, model.AssertionOutcome{
			Name:    a.Assertion,
			Passed:  a.Error == nil && !a.Skipped,
			Skipped: a.Skipped,
			Message: a.Error.String(),
		})
	}

	var problems []string
	if ex.RequestError != nil {
		problems = append(problems, ex.RequestError.String())
	}
	for _, s := range ex.TestScript {
		if s.Error != nil {
			problems = append(problems, "test script: "+s.Error.String())
		}
	}
	if ex.Response == nil && ex.RequestError == nil {
		problems = append(problems, "no response received")
	}
	if len(problems) > 0 {
		rec.TransportError = true
		rec.ErrorMessage = strings.Join(problems, "; ")
	}
	return rec
}
