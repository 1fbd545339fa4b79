package newman

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `{
  "collection": {"info": {"name": "API Tests"}},
  "run": {
    "stats": {"requests": {"total": 3, "failed": 1}},
    "executions": [
      {
        "item": {"id": "Users!R3", "name": "get user [Users!R3]"},
        "response": {"code": 500, "status": "Internal Server Error", "responseTime": 12.5},
        "assertions": [
          {"assertion": "Status code is 404", "skipped": false,
           "error": {"name": "AssertionError", "message": "expected response to have status code 404 but got 500"}}
        ]
      },
      {
        "item": {"id": "Users!R2", "name": "list users [Users!R2]"},
        "response": {"code": 200, "status": "OK", "responseTime": 40},
        "assertions": [
          {"assertion": "Status code is 200", "skipped": false},
          {"assertion": "count > 1", "skipped": true}
        ]
      },
      {
        "item": {"id": "Users!R4", "name": "down [Users!R4]"},
        "requestError": {"code": "ECONNREFUSED", "message": "connect ECONNREFUSED 127.0.0.1:9", "errno": -111},
        "assertions": []
      },
      {
        "item": {"id": "Users!R5", "name": "broken script [Users!R5]"},
        "response": {"code": 200, "responseTime": 3},
        "testScript": [{"error": {"name": "ReferenceError", "message": "foo is not defined"}}]
      }
    ]
  }
}`

func TestParseReport(t *testing.T) {
	records, err := ParseReport([]byte(sampleReport))
	require.NoError(t, err)
	require.Len(t, records, 4)

	failed := records[0]
	assert.Equal(t, "Users!R3", failed.CorrelationID)
	assert.Equal(t, 500, failed.StatusCode)
	assert.False(t, failed.TransportError)
	require.Len(t, failed.FailedAssertions(), 1)
	assert.Equal(t, "AssertionError: expected response to have status code 404 but got 500", failed.Assertions[0].Message)
	assert.Equal(t, 12500*time.Microsecond, failed.ResponseTime)

	passed := records[1]
	assert.Equal(t, 200, passed.StatusCode)
	assert.Empty(t, passed.FailedAssertions())
	assert.True(t, passed.Assertions[1].Skipped)

	down := records[2]
	assert.True(t, down.TransportError)
	assert.Equal(t, 0, down.StatusCode)
	assert.Contains(t, down.ErrorMessage, "ECONNREFUSED")

	script := records[3]
	assert.True(t, script.TransportError)
	assert.Contains(t, script.ErrorMessage, "ReferenceError: foo is not defined")
}

func TestParseReportErrors(t *testing.T) {
	_, err := ParseReport([]byte(`{"run": `))
	assert.Error(t, err)

	_, err = ParseReport([]byte(`{"collection": {}}`))
	assert.Error(t, err)

	records, err := ParseReport([]byte(`{"run": {"executions": []}}`))
	require.NoError(t, err)
	assert.Empty(t, records)
}
