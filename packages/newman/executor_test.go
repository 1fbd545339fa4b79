package newman

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner writes an executable shell script standing in for newman. body
// runs after $REPORT has been set to the --reporter-json-export argument.
func fakeRunner(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake runner requires a POSIX shell")
	}
	dir := t.TempDir()
	script := `#!/bin/sh
REPORT=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "--reporter-json-export" ]; then REPORT="$arg"; fi
  prev="$arg"
done
` + body + "\n"
	path := filepath.Join(dir, "newman")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func collectionFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "API Tests_postman_collection.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))
	return path
}

func TestRun_ParsesReportDespiteNonZeroExit(t *testing.T) {
	fixture := writeFixture(t, sampleReport)
	runner := fakeRunner(t, fmt.Sprintf(`cp %q "$REPORT"; echo "3 requests"; exit 1`, fixture))

	out, err := NewExecutor(WithCommand(runner)).Run(context.Background(), collectionFile(t))
	require.NoError(t, err)
	assert.False(t, out.TimedOut)
	assert.Equal(t, 1, out.ExitCode)
	assert.NoError(t, out.ReportErr)
	assert.Len(t, out.Records, 4)
	assert.Equal(t, 1, out.Attempts)
	assert.Contains(t, string(out.Output), "3 requests")
	assert.Empty(t, out.ReportPath)
}

func TestRun_RunnerUnavailable(t *testing.T) {
	_, err := NewExecutor(WithCommand("apiregress-no-such-runner")).Run(context.Background(), collectionFile(t))

	var unavailable *model.RunnerUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "apiregress-no-such-runner", unavailable.Command)
	assert.True(t, model.IsFatal(err))
}

func TestRun_Timeout(t *testing.T) {
	runner := fakeRunner(t, `exec sleep 5`)

	start := time.Now()
	out, err := NewExecutor(WithCommand(runner), WithTimeout(200*time.Millisecond), WithRetries(3, time.Millisecond)).
		Run(context.Background(), collectionFile(t))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	assert.True(t, out.TimedOut)
	assert.Error(t, out.ReportErr)
	assert.Empty(t, out.Records)
	assert.Equal(t, 1, out.Attempts, "timeouts are not retried")
}

func TestRun_MissingReport(t *testing.T) {
	runner := fakeRunner(t, `exit 0`)

	out, err := NewExecutor(WithCommand(runner)).Run(context.Background(), collectionFile(t))
	require.NoError(t, err)
	assert.False(t, out.TimedOut)
	assert.Error(t, out.ReportErr)
	assert.Equal(t, 1, out.Attempts)
}

func TestRun_RetriesUntilReport(t *testing.T) {
	fixture := writeFixture(t, sampleReport)
	counter := filepath.Join(t.TempDir(), "attempts")
	runner := fakeRunner(t, fmt.Sprintf(`
echo x >> %q
if [ "$(wc -l < %q)" -lt 2 ]; then exit 3; fi
cp %q "$REPORT"`, counter, counter, fixture))

	out, err := NewExecutor(WithCommand(runner), WithRetries(2, 10*time.Millisecond)).
		Run(context.Background(), collectionFile(t))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.NoError(t, out.ReportErr)
	assert.Len(t, out.Records, 4)
}

func TestRun_RetriesExhausted(t *testing.T) {
	runner := fakeRunner(t, `exit 3`)

	out, err := NewExecutor(WithCommand(runner), WithRetries(2, time.Millisecond)).
		Run(context.Background(), collectionFile(t))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, out.ExitCode)
	assert.Error(t, out.ReportErr)
}

func TestRun_KeepReportAndExtraArgs(t *testing.T) {
	fixture := writeFixture(t, sampleReport)
	argsFile := filepath.Join(t.TempDir(), "args")
	runner := fakeRunner(t, fmt.Sprintf(`echo "$@" > %q; cp %q "$REPORT"`, argsFile, fixture))
	coll := collectionFile(t)

	out, err := NewExecutor(
		WithCommand(runner),
		WithArgs([]string{"--insecure", "--timeout-request", "5000"}),
		WithKeepReport(true),
	).Run(context.Background(), coll)
	require.NoError(t, err)

	assert.Equal(t, ReportPath(coll), out.ReportPath)
	assert.FileExists(t, out.ReportPath)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	got := strings.TrimSpace(string(args))
	assert.True(t, strings.HasPrefix(got, "run "+coll+" --reporters cli,json --reporter-json-export "))
	assert.True(t, strings.HasSuffix(got, "--insecure --timeout-request 5000"))
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, "/tmp/x_newman_report.json", ReportPath("/tmp/x.json"))
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(4)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "defg", string(b.Bytes()))
	assert.True(t, b.Truncated())
}
